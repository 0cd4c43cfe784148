package order

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

// Fulfillment receives orders once they are committed.
type Fulfillment interface {
	Fulfill(ctx context.Context, e domorder.OrderPlacedEvent) error
}
