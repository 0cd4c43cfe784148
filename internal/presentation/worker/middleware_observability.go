package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext prepares ctx for handling e off the request path: the
// publisher's span becomes the remote parent and a logger carrying the event
// identity is stored for logctx. Every delivery gets a fresh delivery_id.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	e domoutbox.Event,
	publisher trace.SpanContext,
	component string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}
	if publisher.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, publisher)
	}

	fields := []observability.Field{
		observability.F("delivery_id", uuid.NewString()),
		observability.F("event", e.EventName()),
	}
	if key := e.EventKey(); key != "" {
		fields = append(fields, observability.F("event_key", key))
	}
	if component != "" {
		fields = append(fields, observability.F("use_case", component))
	}
	// Trace ids are the publisher's; handlers add their own span ids.
	fields = append(fields, observability.TraceFields(ctx)...)

	return logctx.With(ctx, base.With(fields...))
}
