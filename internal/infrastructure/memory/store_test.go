package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBasket(t *testing.T, s *Store, id int64) {
	t.Helper()
	b, err := dombasket.New(id, "u1", "EDX", "USD", []dombasket.Line{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("10")},
	})
	require.NoError(t, err)
	require.NoError(t, s.Baskets().Save(context.Background(), b))
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedBasket(t, s, 1)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.Baskets().Transition(ctx, 1, dombasket.StatusSubmitted, dombasket.StatusOpen)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.Payments().Insert(ctx, &dompay.HandledPayment{ID: "p", BasketID: 1, Processor: "payflow", TransactionID: "T1"}))

		// Visible inside the transaction.
		b, err := s.Baskets().Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, dombasket.StatusSubmitted, b.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.Baskets().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusOpen, b.Status)
	_, err = s.Payments().GetByTransaction(ctx, "payflow", "T1")
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedBasket(t, s, 1)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context) error {
			_, _ = s.Baskets().Transition(ctx, 1, dombasket.StatusSubmitted, dombasket.StatusOpen)
			panic("mid-transaction")
		})
	})

	b, err := s.Baskets().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusOpen, b.Status)

	// The lock was released.
	require.NoError(t, s.WithinTx(ctx, func(context.Context) error { return nil }))
}

func TestResponsesSurviveRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_ = s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.Responses().Append(ctx, &dompay.ProcessorResponse{Processor: "payflow", TransactionID: "T1", Payload: dompay.Payload{"A": "1"}})
		require.NoError(t, err)
		return errors.New("rollback")
	})

	rows, err := s.Responses().ListByTransaction(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "1", rows[0].Payload["A"])

	got, err := s.Responses().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TransactionID)
	_, err = s.Responses().Get(ctx, 2)
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedBasket(t, s, 1)

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Baskets().Transition(ctx, 1, dombasket.StatusSubmitted, dombasket.SourcesFor(dombasket.StatusSubmitted)...)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := s.Baskets().Transition(ctx, 99, dombasket.StatusSubmitted, dombasket.StatusOpen)
	assert.ErrorIs(t, err, dombasket.ErrNotFound)
}

func TestInsertConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	o := &domorder.Order{Number: "EDX-100001", BasketID: 1}
	require.NoError(t, s.Orders().Insert(ctx, o))
	assert.ErrorIs(t, s.Orders().Insert(ctx, o), domorder.ErrConflict)

	p := &dompay.HandledPayment{ID: "a", BasketID: 1, Processor: "payflow", TransactionID: "T1"}
	require.NoError(t, s.Payments().Insert(ctx, p))
	assert.ErrorIs(t, s.Payments().Insert(ctx, &dompay.HandledPayment{ID: "b", Processor: "payflow", TransactionID: "T1"}), dompay.ErrConflict)

	got, err := s.Payments().GetByBasket(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedBasket(t, s, 1)

	b, err := s.Baskets().Get(ctx, 1)
	require.NoError(t, err)
	b.Lines[0].Quantity = 99
	b.Status = dombasket.StatusCancelled

	again, err := s.Baskets().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Lines[0].Quantity)
	assert.Equal(t, dombasket.StatusOpen, again.Status)
}
