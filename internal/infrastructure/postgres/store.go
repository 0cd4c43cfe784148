// Package postgres stores baskets, orders, handled payments and processor
// responses in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS baskets (
	id          BIGINT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	site_code   TEXT NOT NULL,
	currency    CHAR(3) NOT NULL,
	lines       JSONB NOT NULL,
	discounts   JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offers (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	value       NUMERIC(12,2) NOT NULL,
	product_ids TEXT[] NOT NULL DEFAULT '{}',
	priority    INT NOT NULL DEFAULT 0,
	starts_at   TIMESTAMPTZ,
	ends_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS handled_payments (
	id             TEXT PRIMARY KEY,
	basket_id      BIGINT NOT NULL REFERENCES baskets(id),
	processor      TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	amount         NUMERIC(12,2) NOT NULL,
	currency       CHAR(3) NOT NULL,
	card_type      TEXT NOT NULL,
	card_number    TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (processor, transaction_id)
);

CREATE TABLE IF NOT EXISTS orders (
	number          TEXT PRIMARY KEY,
	basket_id       BIGINT NOT NULL UNIQUE REFERENCES baskets(id),
	owner_id        TEXT NOT NULL,
	site_code       TEXT NOT NULL,
	lines           JSONB NOT NULL,
	discounts       JSONB NOT NULL,
	subtotal        NUMERIC(12,2) NOT NULL,
	shipping_method TEXT NOT NULL,
	shipping_charge NUMERIC(12,2) NOT NULL,
	total           NUMERIC(12,2) NOT NULL,
	currency        CHAR(3) NOT NULL,
	billing         JSONB NOT NULL,
	payment_id      TEXT NOT NULL REFERENCES handled_payments(id),
	transaction_id  TEXT NOT NULL,
	status          TEXT NOT NULL,
	placed_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processor_responses (
	id             BIGSERIAL PRIMARY KEY,
	processor      TEXT NOT NULL,
	payload        JSONB NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	basket_id      BIGINT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS processor_responses_txn_idx ON processor_responses (transaction_id);
`

// querier is what both the pool and a transaction offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Baskets() *BasketRepository     { return &BasketRepository{s: s} }
func (s *Store) Offers() *OfferCatalog          { return &OfferCatalog{s: s} }
func (s *Store) Orders() *OrderRepository       { return &OrderRepository{s: s} }
func (s *Store) Payments() *PaymentRepository   { return &PaymentRepository{s: s} }
func (s *Store) Responses() *ResponseRepository { return &ResponseRepository{s: s} }

// WithinTx runs fn in a read-committed transaction. A nested call joins the
// outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
