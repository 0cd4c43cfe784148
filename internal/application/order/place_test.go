package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var site = application.Site{Code: "EDX", At: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

type fixture struct {
	store  *memory.Store
	basket *dombasket.Basket
	uc     *apporder.PlaceOrderUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	b, err := dombasket.New(42, "u1", "EDX", "USD", []dombasket.Line{
		{ProductID: "seat", Title: "Verified seat", Quantity: 1, UnitPrice: decimal.RequireFromString("49.00")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Baskets().Save(context.Background(), b))
	return &fixture{
		store:  store,
		basket: b,
		uc:     apporder.NewPlaceOrderUseCase(store.Orders(), store.Baskets(), nil),
	}
}

func (f *fixture) input(amount string) apporder.PlaceOrderInput {
	total := domorder.CalculateTotal(f.basket, decimal.Zero)
	return apporder.PlaceOrderInput{
		Site:    site,
		Basket:  f.basket,
		OwnerID: f.basket.OwnerID,
		Payment: &dompay.HandledPayment{
			ID:            "pay-1",
			BasketID:      f.basket.ID,
			Processor:     "payflow",
			TransactionID: "T1",
			Amount:        decimal.RequireFromString(amount),
			Currency:      "USD",
		},
		ShippingMethod: domorder.NoShippingRequired{},
		ShippingCharge: decimal.Zero,
		Billing:        domorder.Billing{FirstName: "Ada", Country: "US"},
		OrderTotal:     total,
	}
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.uc.Execute(ctx, f.input("49.00"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "EDX-100042", res.Order.Number)
	assert.Equal(t, "no-shipping-required", res.Order.ShippingMethod)
	assert.Equal(t, "T1", res.Order.TransactionID)
	assert.Equal(t, "US", res.Order.Billing.Country)

	b, err := f.store.Baskets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusSubmitted, b.Status)

	stored, err := f.store.Orders().GetByNumber(ctx, "EDX-100042")
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("49")))
}

func TestPlaceOrderReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.uc.Execute(ctx, f.input("49.00"))
	require.NoError(t, err)

	in := f.input("49.00")
	in.Payment = nil // an already-handled replay may carry none
	second, err := f.uc.Execute(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.Number, second.Order.Number)
	assert.Equal(t, first.Order.PaymentID, second.Order.PaymentID)
}

func TestPlaceOrderAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Execute(ctx, f.input("48.99"))
	require.ErrorIs(t, err, apporder.ErrAmountMismatch)

	in := f.input("49.00")
	in.Payment.Currency = "EUR"
	_, err = f.uc.Execute(ctx, in)
	require.ErrorIs(t, err, apporder.ErrAmountMismatch)

	b, err := f.store.Baskets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusOpen, b.Status)
	_, err = f.store.Orders().GetByNumber(ctx, "EDX-100042")
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestPlaceOrderCancelledBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok, err := f.store.Baskets().Transition(ctx, 42, dombasket.StatusCancelled, dombasket.SourcesFor(dombasket.StatusCancelled)...)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.uc.Execute(ctx, f.input("49.00"))
	assert.ErrorIs(t, err, apporder.ErrBasketNotSubmittable)
}

func TestPlaceOrderRequiresPayment(t *testing.T) {
	f := newFixture(t)
	in := f.input("49.00")
	in.Payment = nil
	_, err := f.uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, domorder.ErrNoPayment)
}

func TestPlaceOrderConcurrentCallsPlaceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	results := make([]*apporder.PlaceOrderResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.store.WithinTx(ctx, func(ctx context.Context) error {
				res, err := f.uc.Execute(ctx, f.input("49.00"))
				results[i] = res
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	placed := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "EDX-100042", r.Order.Number)
		if !r.Replayed {
			placed++
		}
	}
	assert.Equal(t, 1, placed)
}
