package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func placedEvent() domorder.OrderPlacedEvent {
	return domorder.OrderPlacedEvent{
		OrderNumber: "EDX-100042",
		BasketID:    42,
		OwnerID:     "u1",
		Total:       decimal.RequireFromString("49.00"),
		Currency:    "USD",
	}
}

func TestFulfillWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := NewFulfillmentPublisher(w, "", nil)

	require.NoError(t, p.Fulfill(context.Background(), placedEvent()))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "EDX-100042", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.placed", string(msg.Headers[0].Value))

	var got domorder.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, int64(42), got.BasketID)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("49")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestFulfillWrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := NewFulfillmentPublisher(&fakeWriter{err: boom}, "orders", nil)

	err := p.Fulfill(context.Background(), placedEvent())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "EDX-100042")
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092,,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestNewWriterDefaultsTopic(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "")
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
