package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/task"
	"rewardtask-controlplane/pkg/taskname"
)

type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Record hands e to sink and swallows any failure after logging it. Audit
// bookkeeping never blocks or fails the balance or order change it describes.
func Record(ctx context.Context, sink Sink, e Entry) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	if err := sink.Write(ctx, e); err != nil {
		sc := trace.SpanContextFromContext(ctx)
		zap.L().Warn("failed to write audit entry",
			zap.String("action", string(e.Action)),
			zap.String("account_id", e.AccountID),
			zap.String("trace_id", sc.TraceID().String()),
			zap.Error(err),
		)
	}
}

type DBSink struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewDBSink(db *gorm.DB, node *snowflake.Node) *DBSink {
	return &DBSink{db: db, node: node}
}

func (s *DBSink) Write(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}

	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return s.db.WithContext(ctx).Create(&AuditLog{
		ID:        s.node.Generate().String(),
		ActorID:   e.ActorID,
		AccountID: e.AccountID,
		Action:    e.Action,
		Summary:   e.Summary,
		Payload:   datatypes.JSON(payload),
		CreatedAt: at,
	}).Error
}

// QueueSink defers the write to the audit worker.
type QueueSink struct {
	enqueuer task.Enqueuer
}

func NewQueueSink(enqueuer task.Enqueuer) *QueueSink {
	return &QueueSink{enqueuer: enqueuer}
}

func (s *QueueSink) Write(ctx context.Context, e Entry) error {
	t, err := NewRecordTask(e)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(ctx, t)
	return err
}

func NewRecordTask(e Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.AuditRecord, payload,
		asynq.Queue(taskname.QueueLow),
		asynq.MaxRetry(5),
	), nil
}

// Handler consumes audit:record tasks produced by QueueSink.
type Handler struct {
	sink *DBSink
}

func NewHandler(sink *DBSink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var e Entry
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		zap.L().Error("invalid audit payload", zap.Error(err))
		return asynq.SkipRetry
	}
	return h.sink.Write(ctx, e)
}
