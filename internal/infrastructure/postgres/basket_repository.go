package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type BasketRepository struct {
	s *Store
}

var _ domain.Repository = (*BasketRepository)(nil)

func (r *BasketRepository) Get(ctx context.Context, id int64) (*domain.Basket, error) {
	var (
		b                domain.Basket
		status           string
		lines, discounts []byte
	)
	err := r.s.q(ctx).QueryRow(ctx, `
		SELECT id, owner_id, site_code, currency, lines, discounts, status, created_at, updated_at
		FROM baskets WHERE id = $1`, id,
	).Scan(&b.ID, &b.OwnerID, &b.SiteCode, &b.Currency, &lines, &discounts, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get basket %d: %w", id, err)
	}
	if err := json.Unmarshal(lines, &b.Lines); err != nil {
		return nil, fmt.Errorf("postgres: basket %d lines: %w", id, err)
	}
	if err := json.Unmarshal(discounts, &b.Discounts); err != nil {
		return nil, fmt.Errorf("postgres: basket %d discounts: %w", id, err)
	}
	b.Status = domain.Status(status)
	return &b, nil
}

func (r *BasketRepository) Save(ctx context.Context, b *domain.Basket) error {
	if b == nil || b.ID <= 0 {
		return fmt.Errorf("basket repository: id is required")
	}
	lines, err := json.Marshal(b.Lines)
	if err != nil {
		return err
	}
	discounts, err := json.Marshal(nonNil(b.Discounts))
	if err != nil {
		return err
	}
	_, err = r.s.q(ctx).Exec(ctx, `
		INSERT INTO baskets (id, owner_id, site_code, currency, lines, discounts, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, site_code = EXCLUDED.site_code, currency = EXCLUDED.currency,
			lines = EXCLUDED.lines, discounts = EXCLUDED.discounts, status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		b.ID, b.OwnerID, b.SiteCode, b.Currency, lines, discounts, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save basket %d: %w", b.ID, err)
	}
	return nil
}

// Transition is a single conditional UPDATE; the row lock it takes is what
// serializes concurrent submissions of the same basket.
func (r *BasketRepository) Transition(ctx context.Context, id int64, target domain.Status, from ...domain.Status) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	tag, err := r.s.q(ctx).Exec(ctx, `
		UPDATE baskets SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`, id, string(target), sources)
	if err != nil {
		return false, fmt.Errorf("postgres: transition basket %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.s.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM baskets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: transition basket %d: %w", id, err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

type OfferCatalog struct {
	s *Store
}

var _ domain.OfferCatalog = (*OfferCatalog)(nil)

func (c *OfferCatalog) Active(ctx context.Context, at time.Time) ([]domain.Offer, error) {
	rows, err := c.s.q(ctx).Query(ctx, `
		SELECT id, kind, value::text, product_ids, priority, starts_at, ends_at
		FROM offers
		WHERE (starts_at IS NULL OR starts_at <= $1) AND (ends_at IS NULL OR ends_at > $1)
		ORDER BY priority, id`, at)
	if err != nil {
		return nil, fmt.Errorf("postgres: active offers: %w", err)
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		var (
			o            domain.Offer
			kind, value  string
			starts, ends *time.Time
		)
		if err := rows.Scan(&o.ID, &kind, &value, &o.ProductIDs, &o.Priority, &starts, &ends); err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		o.Kind = domain.OfferKind(kind)
		if o.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("postgres: offer %s value: %w", o.ID, err)
		}
		if starts != nil {
			o.StartsAt = *starts
		}
		if ends != nil {
			o.EndsAt = *ends
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
