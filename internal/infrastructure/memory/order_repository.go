package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type OrderRepository struct {
	s *Store
}

var _ domain.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.Number == "" {
		return fmt.Errorf("order repository: number is required")
	}
	return r.s.write(ctx, func(st *state) error {
		if _, exists := st.orders[order.Number]; exists {
			return domain.ErrConflict
		}
		st.orders[order.Number] = order.Clone()
		return nil
	})
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var out *domain.Order
	err := r.s.read(ctx, func(st *state) error {
		o, ok := st.orders[number]
		if !ok {
			return domain.ErrNotFound
		}
		out = o.Clone()
		return nil
	})
	return out, err
}
