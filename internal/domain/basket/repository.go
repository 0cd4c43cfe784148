package basket

import (
	"context"
	"time"
)

type Repository interface {
	Get(ctx context.Context, id int64) (*Basket, error)
	Save(ctx context.Context, b *Basket) error
	// Transition moves the basket to target only if its stored status is one
	// of from. It reports false, without error, when the guard does not hold.
	Transition(ctx context.Context, id int64, target Status, from ...Status) (bool, error)
}

// OfferCatalog lists the offers in force at a given instant.
type OfferCatalog interface {
	Active(ctx context.Context, at time.Time) ([]Offer, error)
}
