package otelcol

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/otelcol/exporters"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		ProvideTracerProvider,
		ProvideMeterProvider,
	),
)

func Resource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	if len(opts) == 0 {
		opts = []sdktrace.TracerProviderOption{sdktrace.WithResource(resource.Default())}
	}

	opts = append(opts, sdktrace.WithBatcher(exporter))

	return sdktrace.NewTracerProvider(opts...)
}

// ProvideTracerProvider installs an OTLP backed provider as the global one when
// OTEL.ENABLE is set. Otherwise the global no-op provider is returned.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if !cfg.Otel.Enable {
		return otel.GetTracerProvider(), nil
	}

	exporter, err := exporters.Provide(cfg)
	if err != nil {
		return nil, err
	}

	tp := ProvideTrace(exporter, sdktrace.WithResource(Resource(cfg)))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	zap.L().Info("tracing enabled", zap.String("exporter", cfg.Otel.Exporter), zap.String("addr", cfg.Otel.Addr))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

func ProvideMetric(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	if len(opts) == 0 {
		opts = []sdkmetric.Option{sdkmetric.WithResource(resource.Default())}
	}

	opts = append(opts, sdkmetric.WithReader(reader))

	return sdkmetric.NewMeterProvider(opts...)
}

type meterParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Reader    sdkmetric.Reader `optional:"true"`
}

// ProvideMeterProvider builds an sdk provider around the injected reader and
// installs it globally. Without a reader the global no-op provider is returned.
func ProvideMeterProvider(p meterParams) metric.MeterProvider {
	if p.Reader == nil {
		return otel.GetMeterProvider()
	}

	mp := ProvideMetric(p.Reader, sdkmetric.WithResource(Resource(p.Config)))
	otel.SetMeterProvider(mp)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return mp
}
