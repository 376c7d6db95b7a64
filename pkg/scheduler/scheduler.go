package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(register),
)

// Job runs under a context that is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a UTC scheduler with seconds precision. Overlapping runs of the
// same job are skipped.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under schedule. An empty schedule disables the job.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	if schedule == "" {
		zap.L().Info("[Scheduler] job disabled", zap.String("job", name))
		return nil
	}

	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		log := zap.L().With(zap.String("job", name))
		log.Info("[Scheduler] job started")
		if err := job(s.ctx); err != nil {
			log.Error("[Scheduler] job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		log.Info("[Scheduler] job finished", zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		zap.L().Error("[Scheduler] failed to register job", zap.String("job", name), zap.String("schedule", schedule), zap.Error(err))
		return err
	}
	return nil
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	zap.L().Info("[Scheduler] starting", zap.Int("jobs", s.Entries()))
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		zap.L().Info("[Scheduler] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}
