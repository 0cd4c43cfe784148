package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// HandledPayment is the trusted record of an approved notification.
type HandledPayment struct {
	ID            string
	BasketID      int64
	Processor     string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Instrument    Instrument
	CreatedAt     time.Time
}

func NewHandledPayment(id, processor string, basketID int64, n *Notification) *HandledPayment {
	return &HandledPayment{
		ID:            id,
		BasketID:      basketID,
		Processor:     processor,
		TransactionID: n.TransactionID,
		Amount:        n.Amount,
		Currency:      n.Currency,
		Instrument:    n.Instrument,
		CreatedAt:     time.Now().UTC(),
	}
}

func (p *HandledPayment) Clone() *HandledPayment {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

type Repository interface {
	// Insert returns ErrConflict when the transaction id was already handled.
	Insert(ctx context.Context, p *HandledPayment) error
	GetByTransaction(ctx context.Context, processor, transactionID string) (*HandledPayment, error)
	// GetByBasket returns the earliest payment handled for the basket.
	GetByBasket(ctx context.Context, basketID int64) (*HandledPayment, error)
}
