package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFulfillment struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (f *recordingFulfillment) Fulfill(_ context.Context, e domorder.OrderPlacedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, e.OrderNumber)
	return f.err
}

func (f *recordingFulfillment) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...)
}

func TestBusDeliversToFulfillmentWorker(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil, nil)
	f := &recordingFulfillment{}
	apporder.NewFulfillmentWorker(bus, f, nil).Start()
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, domorder.OrderPlacedEvent{OrderNumber: "EDX-100042"}))
	require.NoError(t, bus.Publish(ctx, domorder.OrderPlacedEvent{OrderNumber: "EDX-100043"}))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	bus.Stop(stopCtx)

	assert.ElementsMatch(t, []string{"EDX-100042", "EDX-100043"}, f.seen())
}

func TestBusSurvivesHandlerFailures(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil, nil)
	var calls sync.WaitGroup
	calls.Add(2)
	bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
		defer calls.Done()
		panic("handler bug")
	})
	bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
		defer calls.Done()
		return errors.New("downstream unavailable")
	})
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, domorder.OrderPlacedEvent{OrderNumber: "EDX-100042"}))
	calls.Wait()

	bus.Stop(ctx)
}

func TestBusRejectsAfterStop(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil, nil)
	bus.Start(ctx)
	bus.Stop(ctx)

	err := bus.Publish(ctx, domorder.OrderPlacedEvent{OrderNumber: "EDX-100042"})
	assert.ErrorIs(t, err, ErrClosed)
	// A second Stop is a no-op.
	bus.Stop(ctx)
}
