package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted once an order has been committed. Fulfillment
// reacts to it.
type OrderPlacedEvent struct {
	OrderNumber   string          `json:"order_number"`
	BasketID      int64           `json:"basket_id"`
	OwnerID       string          `json:"owner_id"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
	Lines         []Line          `json:"lines"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) EventKey() string { return e.OrderNumber }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderNumber:   o.Number,
		BasketID:      o.BasketID,
		OwnerID:       o.OwnerID,
		Total:         o.Total,
		Currency:      o.Currency,
		TransactionID: o.TransactionID,
		Lines:         append([]Line(nil), o.Lines...),
		OccurredAt:    time.Now().UTC(),
	}
}
