package payflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var requiredFields = []string{
	FieldTransactionID,
	FieldOrderReference,
	FieldResult,
	FieldMessage,
	FieldAmount,
	FieldCurrency,
	FieldCardType,
	FieldAccount,
}

// RESULT codes Payflow uses for a decision by the issuer or fraud filters.
// Everything else that is not 0 is a processing or communication error.
var declineCodes = map[int]struct{}{
	12: {}, 23: {}, 24: {}, 50: {}, 51: {},
	112: {}, 114: {}, 125: {}, 126: {}, 127: {}, 128: {},
}

var cardTypes = map[int]string{
	0: "Visa",
	1: "MasterCard",
	2: "Discover",
	3: "American Express",
	4: "Diner's Club",
	5: "JCB",
}

// Sign computes the SIGNATURE for payload: hex HMAC-SHA256 over every other
// field, query-escaped, sorted by key and joined as k=v with '&'.
func Sign(secret string, payload dompay.Payload) string {
	vals := make(url.Values, len(payload))
	for k, v := range payload {
		if k == FieldSignature {
			continue
		}
		vals.Set(k, v)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(vals.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate authenticates payload and normalizes it. It returns
// ErrInvalidSignature or ErrMalformedResponse and nothing else.
func (p *Processor) Validate(payload dompay.Payload) (*dompay.Notification, error) {
	if p.cfg.Secret == "" {
		return nil, fmt.Errorf("%w: no signing secret configured", dompay.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(strings.ToLower(payload[FieldSignature]))
	if err != nil || len(got) == 0 {
		return nil, dompay.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(p.cfg.Secret, payload))
	if !hmac.Equal(got, want) {
		return nil, dompay.ErrInvalidSignature
	}

	for _, f := range requiredFields {
		if strings.TrimSpace(payload[f]) == "" {
			return nil, malformed("missing %s", f)
		}
	}

	code, err := strconv.Atoi(strings.TrimSpace(payload[FieldResult]))
	if err != nil {
		return nil, malformed("%s %q is not an integer", FieldResult, payload[FieldResult])
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(payload[FieldAmount]))
	if err != nil {
		return nil, malformed("%s %q is not a decimal", FieldAmount, payload[FieldAmount])
	}
	if amount.IsNegative() {
		return nil, malformed("%s is negative", FieldAmount)
	}
	currency := strings.ToUpper(strings.TrimSpace(payload[FieldCurrency]))
	if !isCurrencyCode(currency) {
		return nil, malformed("%s %q is not a currency code", FieldCurrency, payload[FieldCurrency])
	}
	cardType, err := cardTypeName(payload[FieldCardType])
	if err != nil {
		return nil, err
	}

	return &dompay.Notification{
		TransactionID:  strings.TrimSpace(payload[FieldTransactionID]),
		OrderReference: strings.TrimSpace(payload[FieldOrderReference]),
		Status:         statusFor(code),
		ResultCode:     code,
		Message:        payload[FieldMessage],
		Amount:         amount,
		Currency:       currency,
		Instrument: dompay.Instrument{
			Type:         cardType,
			MaskedNumber: maskAccount(payload[FieldAccount]),
		},
		BillingCountry: strings.TrimSpace(payload[FieldShipToCountry]),
		BillToFirst:    strings.TrimSpace(payload[FieldBillToFirst]),
		BillToLast:     strings.TrimSpace(payload[FieldBillToLast]),
	}, nil
}

func statusFor(code int) dompay.Status {
	if code == 0 {
		return dompay.StatusApproved
	}
	if _, ok := declineCodes[code]; ok {
		return dompay.StatusDeclined
	}
	return dompay.StatusError
}

func cardTypeName(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	code, err := strconv.Atoi(raw)
	if err != nil {
		return raw, nil
	}
	name, ok := cardTypes[code]
	if !ok {
		return "", malformed("unknown %s %d", FieldCardType, code)
	}
	return name, nil
}

func maskAccount(acct string) string {
	digits := make([]byte, 0, len(acct))
	for i := 0; i < len(acct); i++ {
		if acct[i] >= '0' && acct[i] <= '9' {
			digits = append(digits, acct[i])
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "XXXX" + string(digits)
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", dompay.ErrMalformedResponse, fmt.Sprintf(format, args...))
}
