package order

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("order: not found")
	ErrConflict       = errors.New("order: already exists")
	ErrAmountMismatch = errors.New("order: payment amount does not match order total")
	ErrInvalidNumber  = errors.New("order: malformed order number")
	ErrNoPayment      = errors.New("order: handled payment is required")
)

type Status string

const (
	StatusPlaced Status = "placed"
)

// Line is the snapshot of a basket line taken at submission.
type Line struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Discount struct {
	OfferID string          `json:"offer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// Billing holds the facts about the payer reported by the provider.
type Billing struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Country   string `json:"country,omitempty"`
}

type Order struct {
	Number         string
	BasketID       int64
	OwnerID        string
	SiteCode       string
	Lines          []Line
	Discounts      []Discount
	Subtotal       decimal.Decimal
	ShippingMethod string
	ShippingCharge decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	Billing        Billing
	PaymentID      string
	TransactionID  string
	Status         Status
	PlacedAt       time.Time
}

// Draft is everything needed to build an order from a submitted basket.
type Draft struct {
	Number         string
	Basket         *basket.Basket
	OwnerID        string
	ShippingMethod string
	ShippingCharge decimal.Decimal
	Total          decimal.Decimal
	Billing        Billing
	PaymentID      string
	TransactionID  string
}

func New(d Draft) (*Order, error) {
	if d.Basket == nil {
		return nil, basket.ErrNotFound
	}
	if d.PaymentID == "" {
		return nil, ErrNoPayment
	}
	if _, err := BasketIDFromNumber(d.Number); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(d.Basket.Lines))
	for _, l := range d.Basket.Lines {
		lines = append(lines, Line{
			ProductID: l.ProductID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
		})
	}
	discounts := make([]Discount, 0, len(d.Basket.Discounts))
	for _, disc := range d.Basket.Discounts {
		discounts = append(discounts, Discount{OfferID: disc.OfferID, Amount: disc.Amount})
	}

	return &Order{
		Number:         d.Number,
		BasketID:       d.Basket.ID,
		OwnerID:        d.OwnerID,
		SiteCode:       d.Basket.SiteCode,
		Lines:          lines,
		Discounts:      discounts,
		Subtotal:       d.Basket.Subtotal(),
		ShippingMethod: d.ShippingMethod,
		ShippingCharge: d.ShippingCharge,
		Total:          d.Total,
		Currency:       d.Basket.Currency,
		Billing:        d.Billing,
		PaymentID:      d.PaymentID,
		TransactionID:  d.TransactionID,
		Status:         StatusPlaced,
		PlacedAt:       time.Now().UTC(),
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	c.Discounts = append([]Discount(nil), o.Discounts...)
	return &c
}
