package order

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	"github.com/shopspring/decimal"
)

type ShippingMethod interface {
	Code() string
	Charge(b *basket.Basket) decimal.Decimal
}

// NoShippingRequired is used for baskets of digital products.
type NoShippingRequired struct{}

func (NoShippingRequired) Code() string { return "no-shipping-required" }

func (NoShippingRequired) Charge(*basket.Basket) decimal.Decimal { return decimal.Zero }

// CalculateTotal is the amount a payment must cover: basket total plus shipping.
func CalculateTotal(b *basket.Basket, shippingCharge decimal.Decimal) decimal.Decimal {
	return b.Total().Add(shippingCharge)
}
