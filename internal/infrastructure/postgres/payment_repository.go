package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type PaymentRepository struct {
	s *Store
}

var _ domain.Repository = (*PaymentRepository)(nil)

const paymentColumns = `id, basket_id, processor, transaction_id, amount::text, currency, card_type, card_number, created_at`

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.HandledPayment) error {
	if p == nil || p.TransactionID == "" {
		return fmt.Errorf("payment repository: transaction id is required")
	}
	tag, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO handled_payments (id, basket_id, processor, transaction_id, amount, currency, card_type, card_number, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (processor, transaction_id) DO NOTHING`,
		p.ID, p.BasketID, p.Processor, p.TransactionID, p.Amount.String(), p.Currency,
		p.Instrument.Type, p.Instrument.MaskedNumber, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres: insert payment %s: %w", p.TransactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PaymentRepository) GetByTransaction(ctx context.Context, processor, transactionID string) (*domain.HandledPayment, error) {
	return r.scanOne(ctx, `SELECT `+paymentColumns+` FROM handled_payments WHERE processor = $1 AND transaction_id = $2`, processor, transactionID)
}

func (r *PaymentRepository) GetByBasket(ctx context.Context, basketID int64) (*domain.HandledPayment, error) {
	return r.scanOne(ctx, `SELECT `+paymentColumns+` FROM handled_payments WHERE basket_id = $1 ORDER BY created_at, id LIMIT 1`, basketID)
}

func (r *PaymentRepository) scanOne(ctx context.Context, sql string, args ...any) (*domain.HandledPayment, error) {
	var (
		p      domain.HandledPayment
		amount string
	)
	err := r.s.q(ctx).QueryRow(ctx, sql, args...).Scan(
		&p.ID, &p.BasketID, &p.Processor, &p.TransactionID, &amount, &p.Currency,
		&p.Instrument.Type, &p.Instrument.MaskedNumber, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment: %w", err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("postgres: payment %s amount: %w", p.ID, err)
	}
	return &p, nil
}

// ResponseRepository always writes through the pool so an append commits
// even when the caller's transaction rolls back.
type ResponseRepository struct {
	s *Store
}

var _ domain.ResponseRepository = (*ResponseRepository)(nil)

func (r *ResponseRepository) Append(ctx context.Context, resp *domain.ProcessorResponse) (int64, error) {
	if resp == nil {
		return 0, fmt.Errorf("response repository: response is required")
	}
	payload, err := json.Marshal(resp.Payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.s.pool.QueryRow(ctx, `
		INSERT INTO processor_responses (processor, payload, transaction_id, basket_id, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		resp.Processor, payload, resp.TransactionID, resp.BasketID, resp.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: append response: %w", err)
	}
	return id, nil
}

func (r *ResponseRepository) Get(ctx context.Context, id int64) (*domain.ProcessorResponse, error) {
	rows, err := r.s.pool.Query(ctx, responseSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get response: %w", err)
	}
	out, err := scanResponses(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out[0], nil
}

func (r *ResponseRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.ProcessorResponse, error) {
	rows, err := r.s.pool.Query(ctx, responseSelect+` WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list responses: %w", err)
	}
	return scanResponses(rows)
}

const responseSelect = `SELECT id, processor, payload, transaction_id, basket_id, created_at FROM processor_responses`

func scanResponses(rows pgx.Rows) ([]*domain.ProcessorResponse, error) {
	defer rows.Close()
	var out []*domain.ProcessorResponse
	for rows.Next() {
		var (
			resp    domain.ProcessorResponse
			payload []byte
		)
		if err := rows.Scan(&resp.ID, &resp.Processor, &payload, &resp.TransactionID, &resp.BasketID, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan response: %w", err)
		}
		if err := json.Unmarshal(payload, &resp.Payload); err != nil {
			return nil, fmt.Errorf("postgres: response %d payload: %w", resp.ID, err)
		}
		out = append(out, &resp)
	}
	return out, rows.Err()
}
