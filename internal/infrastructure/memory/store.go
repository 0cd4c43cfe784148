package memory

import (
	"context"
	"sync"

	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

// Store keeps baskets, orders and handled payments in process. Transactions
// are serialized: each one works on a private copy of the state that replaces
// the committed state only when fn succeeds.
type Store struct {
	txMu sync.Mutex // held for the whole of a transaction

	mu        sync.RWMutex
	committed *state

	responses *ResponseRepository
}

type state struct {
	baskets  map[int64]*dombasket.Basket
	orders   map[string]*domorder.Order
	payments map[string]*dompay.HandledPayment // processor + "/" + transaction id
}

type txKey struct{}

func NewStore() *Store {
	return &Store{
		committed: &state{
			baskets:  make(map[int64]*dombasket.Basket),
			orders:   make(map[string]*domorder.Order),
			payments: make(map[string]*dompay.HandledPayment),
		},
		responses: NewResponseRepository(),
	}
}

func (s *Store) Baskets() *BasketRepository     { return &BasketRepository{s: s} }
func (s *Store) Orders() *OrderRepository       { return &OrderRepository{s: s} }
func (s *Store) Payments() *PaymentRepository   { return &PaymentRepository{s: s} }
func (s *Store) Responses() *ResponseRepository { return s.responses }

// WithinTx runs fn in a transaction. A nested call joins the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = staged
	s.mu.Unlock()
	return nil
}

// read calls fn with the state visible to ctx.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.committed)
}

// write calls fn with the state of the transaction in ctx, or in a
// transaction of its own.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}
	return s.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*state))
	})
}

func (st *state) clone() *state {
	c := &state{
		baskets:  make(map[int64]*dombasket.Basket, len(st.baskets)),
		orders:   make(map[string]*domorder.Order, len(st.orders)),
		payments: make(map[string]*dompay.HandledPayment, len(st.payments)),
	}
	// Stored values are never mutated in place, so sharing pointers is safe.
	for k, v := range st.baskets {
		c.baskets[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}
