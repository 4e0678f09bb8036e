// Package telemetry installs the OpenTelemetry tracer provider used for
// pipeline stage spans and HTTP server spans.
package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// InitTracer installs a global tracer provider exporting spans as JSON to w
// (stderr when nil). When enabled is false the global no-op provider is left
// in place and the returned shutdown does nothing.
func InitTracer(serviceName string, enabled bool, w io.Writer) (ShutdownFunc, error) {
	if !enabled {
		log.Debug().Msg("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if w == nil {
		w = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	// Schemaless so the merge never conflicts with resource.Default's schema URL.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("service", serviceName).Msg("OpenTelemetry initialized")
	return tp.Shutdown, nil
}
