package application

import (
	"context"
	"time"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Site is the storefront a request is served for. It is passed explicitly to
// every use case that prices baskets or numbers orders.
type Site struct {
	// Code prefixes order numbers, e.g. "EDX" in "EDX-100042".
	Code string
	// At is the instant offers are evaluated against.
	At time.Time
}

// TxManager runs fn inside one transaction. Repositories reached through the
// returned ctx take part in it; fn returning an error rolls everything back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
