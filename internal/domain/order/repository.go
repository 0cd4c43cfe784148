package order

import "context"

type Repository interface {
	// Insert stores a new order and returns ErrConflict if the number is taken.
	Insert(ctx context.Context, order *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
}
