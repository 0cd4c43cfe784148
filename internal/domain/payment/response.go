package payment

import (
	"context"
	"time"
)

// ProcessorResponse is the audit record of one inbound notification. It is
// written before validation and never updated.
type ProcessorResponse struct {
	ID            int64
	Processor     string
	Payload       Payload
	TransactionID string
	BasketID      *int64
	CreatedAt     time.Time
}

// ResponseRepository is append-only. Appends are durable on return and are
// not part of any surrounding transaction.
type ResponseRepository interface {
	Append(ctx context.Context, r *ProcessorResponse) (int64, error)
	Get(ctx context.Context, id int64) (*ProcessorResponse, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*ProcessorResponse, error)
}
