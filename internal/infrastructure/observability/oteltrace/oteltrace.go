// Package oteltrace adapts OpenTelemetry to the tracer port. Spans are only
// exported once an SDK TracerProvider is installed with otel.SetTracerProvider.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer for service. Spans started through it are internal;
// the HTTP layer opens the server span.
func New(service string) observability.Tracer {
	if service == "" {
		service = "minishop-checkout"
	}
	return &tracer{t: otel.Tracer(service)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
}

// InstallPropagator makes the global propagator read and write W3C
// traceparent and baggage headers. Without it inbound trace context from the
// storefront is ignored.
func InstallPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
