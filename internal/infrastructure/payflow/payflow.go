// Package payflow is the PayPal Payflow Link processor: it authenticates and
// normalizes the notifications Payflow sends back, and exchanges baskets for
// secure tokens on the hosted payment page.
package payflow

import (
	"net/http"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const Name = "payflow"

// Wire field names.
const (
	FieldTransactionID  = "PNREF"
	FieldOrderReference = "PONUM"
	FieldResult         = "RESULT"
	FieldMessage        = "RESPMSG"
	FieldAmount         = "AMT"
	FieldCurrency       = "CURRENCY"
	FieldAccount        = "ACCT"
	FieldCardType       = "CARDTYPE"
	FieldShipToCountry  = "SHIPTOCOUNTRY"
	FieldBillToFirst    = "BILLTOFIRSTNAME"
	FieldBillToLast     = "BILLTOLASTNAME"
	FieldSignature      = "SIGNATURE"
)

type Config struct {
	Partner         string `yaml:"partner"`
	Vendor          string `yaml:"vendor"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	TransactionType string `yaml:"transaction_type"`
	TemplateType    string `yaml:"template_type"`
	Currency        string `yaml:"currency"`
	// Endpoint is the hosted payment page, TokenEndpoint the API that issues
	// secure tokens.
	Endpoint      string `yaml:"endpoint"`
	TokenEndpoint string `yaml:"token_endpoint"`
	ReturnURL     string `yaml:"return_url"`
	ErrorURL      string `yaml:"error_url"`
	Mode          string `yaml:"mode"`
	// Secret keys the SIGNATURE carried by every notification.
	Secret string `yaml:"secret"`
}

// Processor implements payment.Processor for Payflow.
type Processor struct {
	cfg    Config
	client *http.Client
}

var _ dompay.Processor = (*Processor)(nil)

// New returns a Processor. A nil client gets one with a 15s timeout; callers
// still bound each call through ctx.
func New(cfg Config, client *http.Client) *Processor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.TransactionType == "" {
		cfg.TransactionType = "S"
	}
	if cfg.Mode == "" {
		cfg.Mode = "TEST"
	}
	return &Processor{cfg: cfg, client: client}
}

func (p *Processor) Name() string { return Name }

func (p *Processor) References(payload dompay.Payload) (string, string) {
	return payload[FieldTransactionID], payload[FieldOrderReference]
}
