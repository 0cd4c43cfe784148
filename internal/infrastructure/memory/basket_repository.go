package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
)

type BasketRepository struct {
	s *Store
}

var _ domain.Repository = (*BasketRepository)(nil)

func (r *BasketRepository) Get(ctx context.Context, id int64) (*domain.Basket, error) {
	var out *domain.Basket
	err := r.s.read(ctx, func(st *state) error {
		b, ok := st.baskets[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

func (r *BasketRepository) Save(ctx context.Context, b *domain.Basket) error {
	if b == nil || b.ID <= 0 {
		return fmt.Errorf("basket repository: id is required")
	}
	return r.s.write(ctx, func(st *state) error {
		st.baskets[b.ID] = b.Clone()
		return nil
	})
}

func (r *BasketRepository) Transition(ctx context.Context, id int64, target domain.Status, from ...domain.Status) (bool, error) {
	var moved bool
	err := r.s.write(ctx, func(st *state) error {
		b, ok := st.baskets[id]
		if !ok {
			return domain.ErrNotFound
		}
		for _, s := range from {
			if b.Status == s {
				next := b.Clone()
				next.Status = target
				next.UpdatedAt = time.Now().UTC()
				st.baskets[id] = next
				moved = true
				return nil
			}
		}
		return nil
	})
	return moved, err
}

// OfferCatalog is a fixed list of offers, filtered by validity window.
type OfferCatalog struct {
	mu     sync.RWMutex
	offers []domain.Offer
}

var _ domain.OfferCatalog = (*OfferCatalog)(nil)

func NewOfferCatalog(offers ...domain.Offer) *OfferCatalog {
	return &OfferCatalog{offers: append([]domain.Offer(nil), offers...)}
}

func (c *OfferCatalog) Add(o domain.Offer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = append(c.offers, o)
}

func (c *OfferCatalog) Active(_ context.Context, at time.Time) ([]domain.Offer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Offer
	for _, o := range c.offers {
		if o.ActiveAt(at) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
