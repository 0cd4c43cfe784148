package httppresentation

import (
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type orderView struct {
	Number         string              `json:"number"`
	BasketID       int64               `json:"basket_id"`
	OwnerID        string              `json:"owner_id"`
	Status         string              `json:"status"`
	Lines          []domorder.Line     `json:"lines"`
	Discounts      []domorder.Discount `json:"discounts"`
	Subtotal       string              `json:"subtotal"`
	ShippingMethod string              `json:"shipping_method"`
	ShippingCharge string              `json:"shipping_charge"`
	Total          string              `json:"total"`
	Currency       string              `json:"currency"`
	Billing        domorder.Billing    `json:"billing"`
	TransactionID  string              `json:"transaction_id"`
	PlacedAt       time.Time           `json:"placed_at"`
}

func newOrderView(o *domorder.Order) orderView {
	return orderView{
		Number:         o.Number,
		BasketID:       o.BasketID,
		OwnerID:        o.OwnerID,
		Status:         string(o.Status),
		Lines:          o.Lines,
		Discounts:      o.Discounts,
		Subtotal:       o.Subtotal.StringFixed(2),
		ShippingMethod: o.ShippingMethod,
		ShippingCharge: o.ShippingCharge.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		Currency:       o.Currency,
		Billing:        o.Billing,
		TransactionID:  o.TransactionID,
		PlacedAt:       o.PlacedAt,
	}
}

type responseView struct {
	ID            int64             `json:"id"`
	Processor     string            `json:"processor"`
	TransactionID string            `json:"transaction_id"`
	BasketID      *int64            `json:"basket_id"`
	Payload       map[string]string `json:"payload"`
	CreatedAt     time.Time         `json:"created_at"`
}

func newResponseView(r *dompay.ProcessorResponse) responseView {
	return responseView{
		ID:            r.ID,
		Processor:     r.Processor,
		TransactionID: r.TransactionID,
		BasketID:      r.BasketID,
		Payload:       r.Payload,
		CreatedAt:     r.CreatedAt,
	}
}
