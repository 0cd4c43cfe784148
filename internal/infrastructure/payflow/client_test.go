package payflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tokenEndpoint string) Config {
	return Config{
		Partner:         "PayPal",
		Vendor:          "edx",
		User:            "api",
		Password:        "pw",
		TransactionType: "S",
		TemplateType:    "MINLAYOUT",
		Currency:        "USD",
		Endpoint:        "https://payflowlink.example/",
		TokenEndpoint:   tokenEndpoint,
		ReturnURL:       "https://shop.example/payment/payflow/execute",
		ErrorURL:        "https://shop.example/checkout/error/",
		Mode:            "TEST",
		Secret:          testSecret,
	}
}

func initiateRequest() dompay.InitiateRequest {
	return dompay.InitiateRequest{
		OrderNumber: "EDX-100042",
		Amount:      decimal.RequireFromString("49"),
		Currency:    "USD",
		TokenID:     "tok-id-1",
		Cardholder:  dompay.Cardholder{FirstName: "Ada", LastName: "Lovelace"},
	}
}

func TestInitiateBuildsHostedPageURL(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte("RESULT=0&RESPMSG=Approved&SECURETOKEN=tok-123&SECURETOKENID=tok-id-1"))
	}))
	defer srv.Close()

	params, err := New(testConfig(srv.URL), srv.Client()).Initiate(context.Background(), initiateRequest())
	require.NoError(t, err)

	assert.Equal(t, "PayPal", got.Get("PARTNER"))
	assert.Equal(t, "pw", got.Get("PWD"))
	assert.Equal(t, "edx", got.Get("VENDOR"))
	assert.Equal(t, "api", got.Get("USER"))
	assert.Equal(t, "S", got.Get("TRXTYPE"))
	assert.Equal(t, "49.00", got.Get("AMT"))
	assert.Equal(t, "USD", got.Get("CURRENCY"))
	assert.Equal(t, "Y", got.Get("CREATESECURETOKEN"))
	assert.Equal(t, "tok-id-1", got.Get("SECURETOKENID"))

	assert.Equal(t, "tok-123", params.Token)
	assert.Equal(t, "tok-id-1", params.TokenID)

	u, err := url.Parse(params.PaymentPageURL)
	require.NoError(t, err)
	assert.Equal(t, "payflowlink.example", u.Host)
	q := u.Query()
	assert.Equal(t, "tok-123", q.Get("SECURETOKEN"))
	assert.Equal(t, "tok-id-1", q.Get("SECURETOKENID"))
	assert.Equal(t, "EDX-100042", q.Get("PONUM"))
	assert.Equal(t, "EDX-100042; Ada Lovelace", q.Get("COMMENT2"))
	assert.Equal(t, "MINLAYOUT", q.Get("TEMPLATE"))
	assert.Equal(t, "Ada", q.Get("BILLTOFIRSTNAME"))
	assert.Equal(t, "Lovelace", q.Get("BILLTOLASTNAME"))
	assert.Equal(t, "TEST", q.Get("MODE"))
}

func TestInitiateRefusedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("RESULT=1&RESPMSG=User authentication failed"))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), srv.Client()).Initiate(context.Background(), initiateRequest())
	assert.ErrorIs(t, err, dompay.ErrGateway)
}

func TestInitiateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), srv.Client()).Initiate(context.Background(), initiateRequest())
	assert.ErrorIs(t, err, dompay.ErrGateway)
}

func TestInitiateHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(testConfig(srv.URL), srv.Client()).Initiate(ctx, initiateRequest())
	assert.ErrorIs(t, err, dompay.ErrGateway)
	assert.Less(t, time.Since(start), 2*time.Second)
}
