package basket

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OfferKind string

const (
	OfferPercentage OfferKind = "percentage"
	OfferAbsolute   OfferKind = "absolute"
)

// Offer is a discount rule. An empty ProductIDs set applies to every line.
type Offer struct {
	ID         string
	Kind       OfferKind
	Value      decimal.Decimal
	ProductIDs []string
	Priority   int
	StartsAt   time.Time
	EndsAt     time.Time // zero means open-ended
}

// ActiveAt reports whether the offer is in force at t.
func (o Offer) ActiveAt(t time.Time) bool {
	if !o.StartsAt.IsZero() && t.Before(o.StartsAt) {
		return false
	}
	if !o.EndsAt.IsZero() && !t.Before(o.EndsAt) {
		return false
	}
	return true
}

func (o Offer) appliesTo(productID string) bool {
	if len(o.ProductIDs) == 0 {
		return true
	}
	for _, id := range o.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Applicator prices a basket against a set of offers.
type Applicator struct{}

// Apply replaces b.Discounts with the discounts produced by offers. Offers are
// applied in (Priority, ID) order, each against what the previous ones left,
// so the result depends only on the lines and the offer set.
func (Applicator) Apply(b *Basket, offers []Offer) {
	ordered := append([]Offer(nil), offers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	remaining := make([]decimal.Decimal, len(b.Lines))
	for i, l := range b.Lines {
		remaining[i] = l.Total()
	}

	hundred := decimal.NewFromInt(100)
	discounts := make([]Discount, 0, len(ordered))
	for _, o := range ordered {
		if o.Value.IsNegative() || o.Value.IsZero() {
			continue
		}
		eligible := decimal.Zero
		for i, l := range b.Lines {
			if o.appliesTo(l.ProductID) {
				eligible = eligible.Add(remaining[i])
			}
		}
		if !eligible.IsPositive() {
			continue
		}

		var amount decimal.Decimal
		switch o.Kind {
		case OfferPercentage:
			pct := decimal.Min(o.Value, hundred)
			amount = eligible.Mul(pct).Div(hundred).Round(2)
		case OfferAbsolute:
			amount = decimal.Min(o.Value, eligible)
		default:
			continue
		}
		if !amount.IsPositive() {
			continue
		}

		// Spread the reduction over eligible lines in order so later offers
		// see what is left.
		left := amount
		for i, l := range b.Lines {
			if !o.appliesTo(l.ProductID) || !left.IsPositive() {
				continue
			}
			take := decimal.Min(left, remaining[i])
			remaining[i] = remaining[i].Sub(take)
			left = left.Sub(take)
		}
		discounts = append(discounts, Discount{OfferID: o.ID, Amount: amount})
	}
	b.Discounts = discounts
}
