package ops

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/sandwichfarm/herdwatch/internal/config"
)

// Tracing owns the process tracer provider
type Tracing struct {
	provider *sdktrace.TracerProvider
	logger   *Logger
}

// InitTracing installs a global OTLP/HTTP tracer provider. When tracing is
// disabled the global no-op provider is left in place and the returned
// Tracing shuts down as a no-op.
func InitTracing(ctx context.Context, cfg *config.Tracing, version string, logger *Logger) (*Tracing, error) {
	if logger == nil {
		logger = Default()
	}
	t := &Tracing{logger: logger.WithComponent("tracing")}
	if !cfg.Enabled {
		return t, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	)

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.provider)

	t.logger.Info("tracing initialized", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)
	return t, nil
}

// Enabled reports whether spans are exported
func (t *Tracing) Enabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes pending spans
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	t.logger.Info("tracer shutdown complete")
	return nil
}
