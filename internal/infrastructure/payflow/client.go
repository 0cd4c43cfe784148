package payflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const maxTokenResponse = 64 << 10

// Initiate asks Payflow for a secure token and returns the hosted page URL
// the customer is sent to. Every failure wraps payment.ErrGateway.
func (p *Processor) Initiate(ctx context.Context, req dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	form := url.Values{}
	form.Set("PARTNER", p.cfg.Partner)
	form.Set("PWD", p.cfg.Password)
	form.Set("VENDOR", p.cfg.Vendor)
	form.Set("USER", p.cfg.User)
	form.Set("TRXTYPE", p.cfg.TransactionType)
	form.Set("AMT", req.Amount.StringFixed(2))
	form.Set("CURRENCY", currency)
	form.Set("CREATESECURETOKEN", "Y")
	form.Set("SECURETOKENID", req.TokenID)
	form.Set("RETURNURL", p.cfg.ReturnURL)
	form.Set("ERRORURL", p.cfg.ErrorURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dompay.ErrGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: token request: %w", dompay.ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: token endpoint status %d", dompay.ErrGateway, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %w", dompay.ErrGateway, err)
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse token response: %w", dompay.ErrGateway, err)
	}
	if values.Get(FieldResult) != "0" {
		return nil, fmt.Errorf("%w: token refused: result %s: %s", dompay.ErrGateway, values.Get(FieldResult), values.Get(FieldMessage))
	}
	token, tokenID := values.Get("SECURETOKEN"), values.Get("SECURETOKENID")
	if token == "" || tokenID == "" {
		return nil, fmt.Errorf("%w: token response without SECURETOKEN", dompay.ErrGateway)
	}

	return &dompay.TransactionParameters{
		PaymentPageURL: p.paymentPageURL(req, token, tokenID),
		Token:          token,
		TokenID:        tokenID,
	}, nil
}

func (p *Processor) paymentPageURL(req dompay.InitiateRequest, token, tokenID string) string {
	first, last := req.Cardholder.FirstName, req.Cardholder.LastName
	q := url.Values{}
	q.Set("SECURETOKENID", tokenID)
	q.Set("SECURETOKEN", token)
	q.Set("PONUM", req.OrderNumber)
	q.Set("COMMENT2", strings.TrimSpace(req.OrderNumber+"; "+first+" "+last))
	q.Set("TEMPLATE", p.cfg.TemplateType)
	q.Set("RETURNURL", p.cfg.ReturnURL)
	q.Set("BILLTOFIRSTNAME", first)
	q.Set("BILLTOLASTNAME", last)
	q.Set("ERRORURL", p.cfg.ErrorURL)
	q.Set("MODE", p.cfg.Mode)
	return p.cfg.Endpoint + "?" + q.Encode()
}
