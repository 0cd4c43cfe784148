package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appbasket "github.com/Zhima-Mochi/minishop-checkout/internal/application/basket"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	useCaseInitiate        = "payment.initiate"
	initiateSpanName       = "InitiatePayment"
	endpointTokenExchange  = "token_exchange"
	defaultInitiateTimeout = 10 * time.Second
)

var ErrBasketNotPayable = errors.New("payment: basket cannot be paid in its current state")

type BasketResolver = application.UseCase[appbasket.ResolveInput, *dombasket.Basket]

type InitiateInput struct {
	Site       application.Site
	BasketID   int64
	Cardholder dompay.Cardholder
}

type InitiateResult struct {
	PaymentPageURL string
	TokenID        string
	OrderNumber    string
}

// InitiatePaymentUseCase exchanges a basket for a provider token and hosted
// payment page. The basket is frozen only after the provider answered.
type InitiatePaymentUseCase struct {
	resolver  BasketResolver
	baskets   dombasket.Repository
	processor dompay.Processor
	shipping  domorder.ShippingMethod
	timeout   time.Duration
	newToken  func() string

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter
	durHist      observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewInitiatePaymentUseCase(
	resolver BasketResolver,
	baskets dombasket.Repository,
	processor dompay.Processor,
	shipping domorder.ShippingMethod,
	timeout time.Duration,
	tel observability.Observability,
) *InitiatePaymentUseCase {
	tel = observability.Or(tel)
	if shipping == nil {
		shipping = domorder.NoShippingRequired{}
	}
	if timeout <= 0 {
		timeout = defaultInitiateTimeout
	}
	m := tel.Metrics()
	return &InitiatePaymentUseCase{
		resolver:     resolver,
		baskets:      baskets,
		processor:    processor,
		shipping:     shipping,
		timeout:      timeout,
		newToken:     NewTokenID,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHist:      m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// NewTokenID returns a fresh 32 character one-time token identifier.
func NewTokenID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (uc *InitiatePaymentUseCase) Execute(ctx context.Context, cmd InitiateInput) (_ *InitiateResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseInitiate),
		observability.F("basket_id", cmd.BasketID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+initiateSpanName,
		attribute.String("use_case", useCaseInitiate),
		attribute.Int64("basket.id", cmd.BasketID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		lat := time.Since(start).Seconds()
		uc.reqCounter.Add(1, observability.L("use_case", useCaseInitiate), observability.L("outcome", outcome))
		uc.durHist.Observe(lat, observability.L("use_case", useCaseInitiate))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	b, err := uc.resolver.Execute(ctx, appbasket.ResolveInput{Site: cmd.Site, BasketID: cmd.BasketID})
	if err != nil {
		outcome, statusText = "error", "BASKET_RESOLVE_FAILED"
		return nil, err
	}
	if b.Status != dombasket.StatusOpen && b.Status != dombasket.StatusFrozen {
		outcome, statusText = "error", "BASKET_NOT_PAYABLE"
		return nil, fmt.Errorf("%w: %s", ErrBasketNotPayable, b.Status)
	}

	number := domorder.NumberFor(cmd.Site.Code, b.ID)
	tokenID := uc.newToken()

	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	callStart := time.Now()
	params, callErr := uc.processor.Initiate(callCtx, dompay.InitiateRequest{
		OrderNumber: number,
		Amount:      domorder.CalculateTotal(b, uc.shipping.Charge(b)),
		Currency:    b.Currency,
		TokenID:     tokenID,
		Cardholder:  cmd.Cardholder,
	})
	callOutcome := "success"
	if callErr != nil {
		callOutcome = "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			callOutcome = "timeout"
		}
	}
	cancel()
	uc.extCounter.Add(1,
		observability.L("peer", uc.processor.Name()),
		observability.L("endpoint", endpointTokenExchange),
		observability.L("outcome", callOutcome),
	)
	uc.extHistogram.Observe(time.Since(callStart).Seconds(),
		observability.L("peer", uc.processor.Name()),
		observability.L("endpoint", endpointTokenExchange),
	)

	if callErr != nil {
		outcome, statusText = "error", "TOKEN_EXCHANGE_FAILED"
		if !errors.Is(callErr, dompay.ErrGateway) {
			callErr = fmt.Errorf("%w: %w", dompay.ErrGateway, callErr)
		}
		return nil, callErr
	}

	ok, err := uc.baskets.Transition(ctx, b.ID, dombasket.StatusFrozen, dombasket.SourcesFor(dombasket.StatusFrozen)...)
	if err != nil {
		outcome, statusText = "error", "BASKET_FREEZE_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if !ok {
		outcome, statusText = "error", "BASKET_NOT_PAYABLE"
		return nil, ErrBasketNotPayable
	}

	span.SetAttributes(attribute.String("order.number", number))
	if params.TokenID != "" {
		tokenID = params.TokenID
	}
	return &InitiateResult{
		PaymentPageURL: params.PaymentPageURL,
		TokenID:        tokenID,
		OrderNumber:    number,
	}, nil
}
