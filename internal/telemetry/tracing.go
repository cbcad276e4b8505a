// Package telemetry sets up OpenTelemetry tracing for the inspector.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
)

const tracerName = "github.com/hybroai/a2a-agent-inspector"

// ShutdownFunc flushes and shuts down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider according to cfg. With tracing
// disabled the global no-op provider stays in place. stdout is where the
// "stdout" exporter writes.
func Setup(ctx context.Context, cfg config.TracingConfig, version string, stdout io.Writer) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(stdout))
	default:
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s trace exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// StartOperation starts a span for one inspector operation against target.
func StartOperation(ctx context.Context, operation, target string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "inspector."+operation,
		trace.WithAttributes(
			attribute.String("a2a.operation", operation),
			attribute.String("a2a.target", target),
		),
	)
}

// StartAgentCall starts a span for one call to a remote agent.
func StartAgentCall(ctx context.Context, call, generation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("a2a.call", call),
			attribute.String("a2a.client_generation", generation),
		),
	)
}

// IDs returns the trace and span ids of the span in ctx, or empty strings.
func IDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
