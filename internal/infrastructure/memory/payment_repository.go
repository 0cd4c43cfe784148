package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type PaymentRepository struct {
	s *Store
}

var _ domain.Repository = (*PaymentRepository)(nil)

func paymentKey(processor, transactionID string) string {
	return processor + "/" + transactionID
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.HandledPayment) error {
	if p == nil || p.TransactionID == "" {
		return fmt.Errorf("payment repository: transaction id is required")
	}
	return r.s.write(ctx, func(st *state) error {
		key := paymentKey(p.Processor, p.TransactionID)
		if _, exists := st.payments[key]; exists {
			return domain.ErrConflict
		}
		st.payments[key] = p.Clone()
		return nil
	})
}

func (r *PaymentRepository) GetByTransaction(ctx context.Context, processor, transactionID string) (*domain.HandledPayment, error) {
	var out *domain.HandledPayment
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.payments[paymentKey(processor, transactionID)]
		if !ok {
			return domain.ErrNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *PaymentRepository) GetByBasket(ctx context.Context, basketID int64) (*domain.HandledPayment, error) {
	var out *domain.HandledPayment
	err := r.s.read(ctx, func(st *state) error {
		var matches []*domain.HandledPayment
		for _, p := range st.payments {
			if p.BasketID == basketID {
				matches = append(matches, p)
			}
		}
		if len(matches) == 0 {
			return domain.ErrNotFound
		}
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
				return matches[i].ID < matches[j].ID
			}
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		})
		out = matches[0].Clone()
		return nil
	})
	return out, err
}

// ResponseRepository is the append-only audit log. It ignores transactions:
// an append is visible as soon as it returns.
type ResponseRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   []*domain.ProcessorResponse
}

var _ domain.ResponseRepository = (*ResponseRepository)(nil)

func NewResponseRepository() *ResponseRepository {
	return &ResponseRepository{}
}

func (r *ResponseRepository) Append(_ context.Context, resp *domain.ProcessorResponse) (int64, error) {
	if resp == nil {
		return 0, fmt.Errorf("response repository: response is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	row := cloneResponse(resp)
	row.ID = r.nextID
	r.rows = append(r.rows, row)
	return row.ID, nil
}

func (r *ResponseRepository) Get(_ context.Context, id int64) (*domain.ProcessorResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id <= 0 || id > int64(len(r.rows)) {
		return nil, domain.ErrNotFound
	}
	return cloneResponse(r.rows[id-1]), nil
}

func (r *ResponseRepository) ListByTransaction(_ context.Context, transactionID string) ([]*domain.ProcessorResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ProcessorResponse
	for _, row := range r.rows {
		if row.TransactionID == transactionID {
			out = append(out, cloneResponse(row))
		}
	}
	return out, nil
}

func cloneResponse(r *domain.ProcessorResponse) *domain.ProcessorResponse {
	c := *r
	c.Payload = r.Payload.Clone()
	if r.BasketID != nil {
		id := *r.BasketID
		c.BasketID = &id
	}
	return &c
}
