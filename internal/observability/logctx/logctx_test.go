package logctx

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	observability.Logger
	fields []observability.Field
}

func (l *recordingLogger) With(fields ...observability.Field) observability.Logger {
	return &recordingLogger{Logger: l.Logger, fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}

func TestFromOrFallsBack(t *testing.T) {
	fallback := &recordingLogger{Logger: observability.NopLogger()}
	assert.Same(t, fallback, FromOr(context.Background(), fallback))
	assert.NotNil(t, FromOr(context.Background(), nil))
}

func TestEnrichStoresDerivedLogger(t *testing.T) {
	base := &recordingLogger{Logger: observability.NopLogger()}
	ctx := With(context.Background(), base)

	ctx, logger := Enrich(ctx, nil, observability.F("order_number", "EDX-100042"))
	_, logger = Enrich(ctx, nil, observability.F("use_case", "order.worker.order_placed"))

	got := logger.(*recordingLogger).fields
	assert.Equal(t, []observability.Field{
		observability.F("order_number", "EDX-100042"),
		observability.F("use_case", "order.worker.order_placed"),
	}, got)
	assert.Len(t, FromOr(ctx, nil).(*recordingLogger).fields, 1)
}
