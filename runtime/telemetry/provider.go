// Package telemetry wires the engine's node and session lifecycle into
// OpenTelemetry distributed tracing.
package telemetry

import (
	"context"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName identifies this package as a tracer's instrumentation
	// scope.
	InstrumentationName = "github.com/AltairaLabs/remotemedia/runtime/telemetry"
	// InstrumentationVersion is the version reported alongside spans created
	// by Tracer.
	InstrumentationVersion = "1.0.0"
)

// Tracer returns a tracer scoped to this package. If tp is nil, the global
// TracerProvider is used, so callers that never configure tracing still get
// a working (no-op) tracer.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

// NewTracerProvider builds a TracerProvider that batches spans to an
// OTLP/HTTP collector at endpoint. serviceName is attached as the
// service.name resource attribute so spans from multiple engine instances
// can be told apart in the backend.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}

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
	return tp, nil
}

// SetupPropagation installs the composite text-map propagator used to carry
// trace context across any HTTP-exposed surface the engine instruments with
// otelhttp (e.g. the Prometheus /metrics endpoint). W3C tracecontext and
// baggage cover the common case; the X-Ray propagator lets a scrape that
// originated behind an AWS load balancer keep its trace ID intact.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}
