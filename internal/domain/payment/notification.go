package payment

import "github.com/shopspring/decimal"

// Status is the normalized provider verdict carried by a notification.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusError    Status = "error"
)

// Instrument describes what the customer paid with. Number is always masked.
type Instrument struct {
	Type         string `json:"type"`
	MaskedNumber string `json:"masked_number"`
}

// Notification is a payload that passed validation.
type Notification struct {
	TransactionID  string
	OrderReference string
	Status         Status
	ResultCode     int
	Message        string
	Amount         decimal.Decimal
	Currency       string
	Instrument     Instrument
	BillingCountry string
	BillToFirst    string
	BillToLast     string
}
