package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "rewardtask-controlplane/services/order"

type metrics struct {
	submitted metric.Int64Counter
	resolved  metric.Int64Counter
	rewarded  metric.Float64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	fallback := noop.Meter{}

	m := &metrics{}
	var err error
	if m.submitted, err = meter.Int64Counter("rewardtask.orders.submitted",
		metric.WithDescription("Orders submitted, by approval outcome")); err != nil {
		zap.L().Warn("failed to create counter", zap.String("name", "rewardtask.orders.submitted"), zap.Error(err))
		m.submitted, _ = fallback.Int64Counter("rewardtask.orders.submitted")
	}
	if m.resolved, err = meter.Int64Counter("rewardtask.orders.resolved",
		metric.WithDescription("Orders resolved by an admin, by outcome")); err != nil {
		zap.L().Warn("failed to create counter", zap.String("name", "rewardtask.orders.resolved"), zap.Error(err))
		m.resolved, _ = fallback.Int64Counter("rewardtask.orders.resolved")
	}
	if m.rewarded, err = meter.Float64Counter("rewardtask.orders.reward",
		metric.WithDescription("Rewards credited on completion")); err != nil {
		zap.L().Warn("failed to create counter", zap.String("name", "rewardtask.orders.reward"), zap.Error(err))
		m.rewarded, _ = fallback.Float64Counter("rewardtask.orders.reward")
	}
	return m
}

func (m *metrics) submit(ctx context.Context, res *SubmitResult) {
	m.submitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(res.Decision.Outcome)),
		attribute.String("reason", string(res.Decision.Reason)),
	))
	m.reward(ctx, res.Order)
}

func (m *metrics) resolve(ctx context.Context, o *TaskOrder) {
	m.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(o.State))))
	m.reward(ctx, o)
}

func (m *metrics) reward(ctx context.Context, o *TaskOrder) {
	if o.State != StateCompleted || !o.RewardAmount.IsPositive() {
		return
	}
	m.rewarded.Add(ctx, o.RewardAmount.InexactFloat64())
}
