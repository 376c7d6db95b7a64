package main

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/db"
	"rewardtask-controlplane/pkg/hashistack/secretmanager"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/otelcol"
	"rewardtask-controlplane/pkg/profiling"
	"rewardtask-controlplane/pkg/redis"
	"rewardtask-controlplane/pkg/scheduler"
	"rewardtask-controlplane/pkg/task"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/audit"
	"rewardtask-controlplane/services/ledger"
)

// The worker drains the audit queue into the database and runs the scheduled
// ledger chain sweep.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		fx.Provide(provideSnowflakeNode),
		task.Server,
		audit.Module,
		audit.Worker,
		account.Module,
		ledger.Module,
		fx.Provide(ledger.NewSweeper),
		scheduler.Module,
		fx.Invoke(registerJobs),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.Node)
}

func registerJobs(cfg *config.Config, s *scheduler.Scheduler, rdb *goredis.Client, sweeper *ledger.Sweeper) error {
	return s.Add("verify_ledger", cfg.Scheduler.VerifyLedger,
		scheduler.Exclusive(rdb, "verify_ledger", time.Hour, func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		}),
	)
}
