package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appbasket "github.com/Zhima-Mochi/minishop-checkout/internal/application/basket"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProcessor answers Initiate from a function; validation is not used here.
type stubProcessor struct {
	initiate func(ctx context.Context, req dompay.InitiateRequest) (*dompay.TransactionParameters, error)
	got      dompay.InitiateRequest
}

func (s *stubProcessor) Name() string                               { return "stub" }
func (s *stubProcessor) References(dompay.Payload) (string, string) { return "", "" }
func (s *stubProcessor) Validate(dompay.Payload) (*dompay.Notification, error) {
	return nil, dompay.ErrMalformedResponse
}

func (s *stubProcessor) Initiate(ctx context.Context, req dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
	s.got = req
	return s.initiate(ctx, req)
}

type flatShipping struct{ charge decimal.Decimal }

func (flatShipping) Code() string                               { return "flat" }
func (s flatShipping) Charge(*dombasket.Basket) decimal.Decimal { return s.charge }

func newInitiate(t *testing.T, proc dompay.Processor, timeout time.Duration) (*apppay.InitiatePaymentUseCase, *memory.Store) {
	return newInitiateShipping(t, proc, nil, timeout)
}

func newInitiateShipping(t *testing.T, proc dompay.Processor, shipping domorder.ShippingMethod, timeout time.Duration) (*apppay.InitiatePaymentUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	newBasket(t, store)
	resolver := appbasket.NewResolveBasketUseCase(store.Baskets(), memory.NewOfferCatalog(), nil)
	return apppay.NewInitiatePaymentUseCase(resolver, store.Baskets(), proc, shipping, timeout, nil), store
}

func TestInitiateFreezesBasketOnSuccess(t *testing.T) {
	proc := &stubProcessor{initiate: func(_ context.Context, req dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
		return &dompay.TransactionParameters{PaymentPageURL: "https://pay.example/?SECURETOKEN=x", Token: "x", TokenID: req.TokenID}, nil
	}}
	uc, store := newInitiate(t, proc, time.Second)

	res, err := uc.Execute(context.Background(), apppay.InitiateInput{
		Site:       application.Site{Code: "EDX"},
		BasketID:   42,
		Cardholder: dompay.Cardholder{FirstName: "Ada", LastName: "Lovelace"},
	})
	require.NoError(t, err)
	assert.Equal(t, "EDX-100042", res.OrderNumber)
	assert.Equal(t, "https://pay.example/?SECURETOKEN=x", res.PaymentPageURL)
	assert.Len(t, res.TokenID, 32)

	assert.Equal(t, "EDX-100042", proc.got.OrderNumber)
	assert.True(t, decimal.RequireFromString("49.00").Equal(proc.got.Amount), proc.got.Amount.String())
	assert.Equal(t, "Ada", proc.got.Cardholder.FirstName)

	b, err := store.Baskets().Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusFrozen, b.Status)

	// A second token request for the frozen basket is allowed.
	_, err = uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 42})
	require.NoError(t, err)
}

func TestInitiateAmountIncludesShipping(t *testing.T) {
	proc := &stubProcessor{initiate: func(_ context.Context, req dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
		return &dompay.TransactionParameters{PaymentPageURL: "https://pay.example/", TokenID: req.TokenID}, nil
	}}
	uc, _ := newInitiateShipping(t, proc, flatShipping{charge: decimal.RequireFromString("5.50")}, time.Second)

	_, err := uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 42})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("54.50").Equal(proc.got.Amount), proc.got.Amount.String())
}

func TestInitiateGatewayFailureLeavesBasketOpen(t *testing.T) {
	proc := &stubProcessor{initiate: func(context.Context, dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
		return nil, errors.New("connection refused")
	}}
	uc, store := newInitiate(t, proc, time.Second)

	_, err := uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 42})
	require.ErrorIs(t, err, dompay.ErrGateway)

	b, err := store.Baskets().Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusOpen, b.Status)
}

func TestInitiateTimesOut(t *testing.T) {
	proc := &stubProcessor{initiate: func(ctx context.Context, _ dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	uc, store := newInitiate(t, proc, 20*time.Millisecond)

	start := time.Now()
	_, err := uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 42})
	require.ErrorIs(t, err, dompay.ErrGateway)
	assert.Less(t, time.Since(start), time.Second)

	b, err := store.Baskets().Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, dombasket.StatusOpen, b.Status)
}

func TestInitiateRejectsSubmittedBasket(t *testing.T) {
	proc := &stubProcessor{initiate: func(context.Context, dompay.InitiateRequest) (*dompay.TransactionParameters, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	}}
	uc, store := newInitiate(t, proc, time.Second)
	_, err := store.Baskets().Transition(context.Background(), 42, dombasket.StatusSubmitted, dombasket.StatusOpen)
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 42})
	assert.ErrorIs(t, err, apppay.ErrBasketNotPayable)
}

func TestInitiateUnknownBasket(t *testing.T) {
	uc, _ := newInitiate(t, &stubProcessor{}, time.Second)
	_, err := uc.Execute(context.Background(), apppay.InitiateInput{Site: application.Site{Code: "EDX"}, BasketID: 7})
	assert.ErrorIs(t, err, appbasket.ErrBasketNotFound)
}
