package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rewardtask-controlplane/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func ProvideHttp(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Otel.Addr != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Otel.Addr))
	}

	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}

// Provide picks the exporter named by OTEL.EXPORTER.
func Provide(cfg *config.Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Otel.Exporter) {
	case "grpc", "":
		return ProvideGrpc(cfg)
	case "http":
		return ProvideHttp(cfg)
	default:
		return nil, fmt.Errorf("unsupported otel exporter %q", cfg.Otel.Exporter)
	}
}
