package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature  = errors.New("payment: invalid response signature")
	ErrMalformedResponse = errors.New("payment: malformed processor response")
	ErrGateway           = errors.New("payment: gateway error")
	ErrNotFound          = errors.New("payment: not found")
	ErrConflict          = errors.New("payment: transaction already handled")
)

// Payload is a raw provider notification as received on the wire.
type Payload map[string]string

func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Processor is the provider-specific side of the checkout. Validate is the
// trust boundary: nothing downstream may read a Payload that did not pass it.
type Processor interface {
	Name() string
	// References extracts the transaction id and order reference without any
	// validation, for audit linking only.
	References(p Payload) (transactionID, orderReference string)
	Validate(p Payload) (*Notification, error)
	Initiate(ctx context.Context, req InitiateRequest) (*TransactionParameters, error)
}

type Cardholder struct {
	FirstName string
	LastName  string
}

// InitiateRequest asks the provider for a one-time token and hosted page URL.
type InitiateRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	TokenID     string
	Cardholder  Cardholder
}

type TransactionParameters struct {
	PaymentPageURL string
	Token          string
	TokenID        string
}
