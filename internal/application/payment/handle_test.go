package payment_test

import (
	"context"
	"fmt"
	"testing"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("pay-%d", s.n)
}

func newBasket(t *testing.T, store *memory.Store) *dombasket.Basket {
	t.Helper()
	b, err := dombasket.New(42, "u1", "EDX", "USD", []dombasket.Line{
		{ProductID: "seat", Quantity: 1, UnitPrice: decimal.RequireFromString("49.00")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Baskets().Save(context.Background(), b))
	return b
}

func notification(status dompay.Status, code int, msg string) *dompay.Notification {
	return &dompay.Notification{
		TransactionID:  "T1",
		OrderReference: "EDX-100042",
		Status:         status,
		ResultCode:     code,
		Message:        msg,
		Amount:         decimal.RequireFromString("49.00"),
		Currency:       "USD",
		Instrument:     dompay.Instrument{Type: "Visa", MaskedNumber: "XXXX1111"},
	}
}

func TestHandleApprovedStoresPaymentOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := newBasket(t, store)
	uc := apppay.NewHandlePaymentUseCase(store.Payments(), &seqIDs{}, nil)

	first, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusApproved, 0, "Approved"), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, dompay.ResultApproved, first.Kind)
	assert.False(t, first.AlreadyHandled)
	require.NotNil(t, first.Payment)
	assert.Equal(t, "pay-1", first.Payment.ID)
	assert.Equal(t, "XXXX1111", first.Payment.Instrument.MaskedNumber)

	second, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusApproved, 0, "Approved"), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", second.Payment.ID)
}

func TestHandleDeclinedAndError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := newBasket(t, store)
	uc := apppay.NewHandlePaymentUseCase(store.Payments(), &seqIDs{}, nil)

	declined, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusDeclined, 12, "Declined"), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, dompay.ResultDeclined, declined.Kind)
	assert.Equal(t, "Declined", declined.Reason)

	fallback, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusDeclined, 12, ""), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, "payment_declined", fallback.Reason)

	failed, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusError, 104, "Timeout"), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, dompay.ResultError, failed.Kind)
	assert.Contains(t, failed.Reason, "104")

	_, err = store.Payments().GetByBasket(ctx, b.ID)
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestHandleSubmittedBasketIsAlreadyHandled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := newBasket(t, store)
	uc := apppay.NewHandlePaymentUseCase(store.Payments(), &seqIDs{}, nil)

	_, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusApproved, 0, "Approved"), Basket: b})
	require.NoError(t, err)
	require.NoError(t, b.Submit())

	// Even a later decline for the same basket does not undo the first approval.
	res, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusDeclined, 12, "Declined"), Basket: b})
	require.NoError(t, err)
	assert.Equal(t, dompay.ResultApproved, res.Kind)
	assert.True(t, res.AlreadyHandled)
	require.NotNil(t, res.Payment)
	assert.Equal(t, "pay-1", res.Payment.ID)
}

func TestHandleSecondApprovalForSubmittedBasket(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := newBasket(t, store)
	uc := apppay.NewHandlePaymentUseCase(store.Payments(), &seqIDs{}, nil)

	_, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusApproved, 0, "Approved"), Basket: b})
	require.NoError(t, err)
	require.NoError(t, b.Submit())

	// Same transaction again is a replay.
	res, err := uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: notification(dompay.StatusApproved, 0, "Approved"), Basket: b})
	require.NoError(t, err)
	assert.True(t, res.AlreadyHandled)

	other := notification(dompay.StatusApproved, 0, "Approved")
	other.TransactionID = "T2-OTHER"
	res, err = uc.Execute(ctx, apppay.HandleInput{Processor: "payflow", Notification: other, Basket: b})
	assert.ErrorIs(t, err, apppay.ErrSecondCharge)
	assert.Nil(t, res)

	_, err = store.Payments().GetByTransaction(ctx, "payflow", "T2-OTHER")
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}
