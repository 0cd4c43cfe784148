package basket

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("basket: not found")
	ErrBasketNotFound         = errors.New("basket: order reference does not resolve to a basket")
	ErrInvalidStateTransition = errors.New("basket: invalid state transition")
	ErrEmpty                  = errors.New("basket: no lines")
	ErrInvalidLine            = errors.New("basket: line quantity must be positive and price non-negative")
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusFrozen    Status = "frozen"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
)

// Line is one priced product in a basket.
type Line struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount is the reduction one offer contributed when the basket was last priced.
type Discount struct {
	OfferID string
	Amount  decimal.Decimal
}

type Basket struct {
	ID        int64
	OwnerID   string
	SiteCode  string
	Currency  string
	Lines     []Line
	Discounts []Discount
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id int64, ownerID, siteCode, currency string, lines []Line) (*Basket, error) {
	if len(lines) == 0 {
		return nil, ErrEmpty
	}
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, ErrInvalidLine
		}
	}
	now := time.Now().UTC()
	return &Basket{
		ID:        id,
		OwnerID:   ownerID,
		SiteCode:  siteCode,
		Currency:  currency,
		Lines:     append([]Line(nil), lines...),
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Subtotal is the undiscounted sum of all lines.
func (b *Basket) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range b.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (b *Basket) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range b.Discounts {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// Total is the amount payable for the lines after discounts, never below zero.
func (b *Basket) Total() decimal.Decimal {
	t := b.Subtotal().Sub(b.DiscountTotal())
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}

func (b *Basket) IsSubmitted() bool { return b.Status == StatusSubmitted }

func (b *Basket) Freeze() error {
	return b.transition(func(s State) (State, error) { return s.OnFreeze(b) })
}

func (b *Basket) Submit() error {
	return b.transition(func(s State) (State, error) { return s.OnSubmit(b) })
}

func (b *Basket) Cancel() error {
	return b.transition(func(s State) (State, error) { return s.OnCancel(b) })
}

func (b *Basket) transition(apply func(State) (State, error)) error {
	next, err := apply(stateFor(b.Status))
	if err != nil {
		return err
	}
	b.Status = next.Status()
	b.touch()
	return nil
}

func (b *Basket) Clone() *Basket {
	if b == nil {
		return nil
	}
	c := *b
	c.Lines = append([]Line(nil), b.Lines...)
	c.Discounts = append([]Discount(nil), b.Discounts...)
	return &c
}

func (b *Basket) touch() {
	b.UpdatedAt = time.Now().UTC()
}
