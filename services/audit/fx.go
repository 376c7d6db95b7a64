package audit

import (
	"context"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/task"
	"rewardtask-controlplane/pkg/taskname"
)

var Module = fx.Module("audit.sink",
	fx.Provide(NewDBSink, provideSink),
)

// Worker registers the audit:record handler. It expects Module in the same graph.
var Worker = fx.Module("audit.worker",
	fx.Provide(NewHandler),
	fx.Invoke(registerHandler),
)

type sinkParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	DBSink    *DBSink
	Enqueuer  task.Enqueuer `optional:"true"`
}

func provideSink(p sinkParams) (Sink, error) {
	switch strings.ToLower(p.Config.Audit.Sink) {
	case "queue":
		if p.Enqueuer != nil {
			return NewQueueSink(p.Enqueuer), nil
		}
		zap.L().Warn("audit sink queue requested without an enqueuer, writing to database")
	case "kafka":
		producer, err := NewKafkaProducer(p.Config.Kafka.Addrs)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				producer.Flush(5000)
				producer.Close()
				return nil
			},
		})
		zap.L().Info("audit entries published to kafka", zap.String("topic", p.Config.Kafka.AuditTopic))
		return NewKafkaSink(producer, p.Config.Kafka.AuditTopic), nil
	}
	return p.DBSink, nil
}

func registerHandler(mux *asynq.ServeMux, h *Handler) {
	mux.Handle(taskname.AuditRecord, h)
}
