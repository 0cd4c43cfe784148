package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	s *Store
}

var _ domain.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.Number == "" {
		return fmt.Errorf("order repository: number is required")
	}
	lines, err := json.Marshal(nonNil(o.Lines))
	if err != nil {
		return err
	}
	discounts, err := json.Marshal(nonNil(o.Discounts))
	if err != nil {
		return err
	}
	billing, err := json.Marshal(o.Billing)
	if err != nil {
		return err
	}
	tag, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO orders (number, basket_id, owner_id, site_code, lines, discounts, subtotal,
			shipping_method, shipping_charge, total, currency, billing, payment_id, transaction_id, status, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::numeric, $10::numeric, $11, $12, $13, $14, $15, $16)
		ON CONFLICT DO NOTHING`,
		o.Number, o.BasketID, o.OwnerID, o.SiteCode, lines, discounts, o.Subtotal.String(),
		o.ShippingMethod, o.ShippingCharge.String(), o.Total.String(), o.Currency, billing,
		o.PaymentID, o.TransactionID, string(o.Status), o.PlacedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres: insert order %s: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var (
		o                                 domain.Order
		lines, discounts, billing         []byte
		subtotal, shipping, total, status string
	)
	err := r.s.q(ctx).QueryRow(ctx, `
		SELECT number, basket_id, owner_id, site_code, lines, discounts, subtotal::text,
			shipping_method, shipping_charge::text, total::text, currency, billing,
			payment_id, transaction_id, status, placed_at
		FROM orders WHERE number = $1`, number,
	).Scan(&o.Number, &o.BasketID, &o.OwnerID, &o.SiteCode, &lines, &discounts, &subtotal,
		&o.ShippingMethod, &shipping, &total, &o.Currency, &billing,
		&o.PaymentID, &o.TransactionID, &status, &o.PlacedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %s: %w", number, err)
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("postgres: order %s lines: %w", number, err)
	}
	if err := json.Unmarshal(discounts, &o.Discounts); err != nil {
		return nil, fmt.Errorf("postgres: order %s discounts: %w", number, err)
	}
	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return nil, fmt.Errorf("postgres: order %s billing: %w", number, err)
	}
	for dst, src := range map[*decimal.Decimal]string{&o.Subtotal: subtotal, &o.ShippingCharge: shipping, &o.Total: total} {
		v, err := decimal.NewFromString(src)
		if err != nil {
			return nil, fmt.Errorf("postgres: order %s amount: %w", number, err)
		}
		*dst = v
	}
	o.Status = domain.Status(status)
	return &o, nil
}
