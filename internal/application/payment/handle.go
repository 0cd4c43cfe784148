package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService   = "payment-service"
	useCaseHandle    = "payment.handle"
	handleSpanName   = "HandlePayment"
	spanPrefix       = "UC."
	declinedFallback = "payment_declined"
)

var (
	ErrRepository = errors.New("payment: repository failure")
	// ErrSecondCharge means an approval arrived for a basket that another
	// transaction already paid for. The customer was charged twice.
	ErrSecondCharge = errors.New("payment: basket already paid by another transaction")
)

// IDGenerator issues identifiers for handled payments.
type IDGenerator interface {
	NewID() string
}

type HandleInput struct {
	Processor    string
	Notification *dompay.Notification
	Basket       *dombasket.Basket
}

// HandlePaymentUseCase turns a validated notification into a handled payment.
// Declines and provider errors come back as tagged results, not errors.
type HandlePaymentUseCase struct {
	payments    dompay.Repository
	idGenerator IDGenerator
	tracer      observability.Tracer
	log         observability.Logger
	reqCounter  observability.Counter
	durHist     observability.Histogram
}

func NewHandlePaymentUseCase(payments dompay.Repository, idGen IDGenerator, tel observability.Observability) *HandlePaymentUseCase {
	tel = observability.Or(tel)
	metricsProvider := tel.Metrics()
	return &HandlePaymentUseCase{
		payments:    payments,
		idGenerator: idGen,
		tracer:      tel.Tracer(),
		log:         tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:  metricsProvider.Counter(observability.MUsecaseRequests),
		durHist:     metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

func (uc *HandlePaymentUseCase) Execute(ctx context.Context, cmd HandleInput) (result *dompay.Result, err error) {
	if cmd.Notification == nil || cmd.Basket == nil {
		return nil, errors.New("payment: notification and basket are required")
	}
	n := cmd.Notification
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseHandle),
		observability.F("basket_id", cmd.Basket.ID),
		observability.F("transaction_id", n.TransactionID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+handleSpanName,
		attribute.String("use_case", useCaseHandle),
		attribute.Int64("basket.id", cmd.Basket.ID),
		attribute.String("payment.transaction_id", n.TransactionID),
		attribute.String("payment.status", string(n.Status)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if result != nil {
			span.SetAttributes(attribute.String("payment.result", string(result.Kind)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseHandle),
			observability.L("outcome", outcome),
		)
		uc.durHist.Observe(latency, observability.L("use_case", useCaseHandle))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("result_code", n.ResultCode),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if result != nil && result.Reason != "" {
			fields = append(fields, observability.F("failure_reason", result.Reason))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if cmd.Basket.IsSubmitted() {
		statusText = "ALREADY_HANDLED"
		prior, lookupErr := uc.payments.GetByBasket(ctx, cmd.Basket.ID)
		switch {
		case lookupErr == nil:
			if n.Status == dompay.StatusApproved &&
				(prior.Processor != cmd.Processor || prior.TransactionID != n.TransactionID) {
				outcome, statusText = "error", "SECOND_CHARGE"
				return nil, fmt.Errorf("%w: basket %d paid by %s, got %s", ErrSecondCharge,
					cmd.Basket.ID, prior.TransactionID, n.TransactionID)
			}
			return dompay.Replayed(prior), nil
		case errors.Is(lookupErr, dompay.ErrNotFound):
			return dompay.Replayed(nil), nil
		default:
			outcome, statusText = "error", "PAYMENT_LOOKUP_FAILED"
			return nil, fmt.Errorf("%w: %w", ErrRepository, lookupErr)
		}
	}

	switch n.Status {
	case dompay.StatusApproved:
	case dompay.StatusDeclined:
		statusText = "DECLINED"
		reason := n.Message
		if reason == "" {
			reason = declinedFallback
		}
		return dompay.Declined(reason), nil
	default:
		// Not a decline: the provider reported a state we cannot act on.
		statusText = "GATEWAY_ERROR"
		return dompay.Failed(fmt.Sprintf("result %d: %s", n.ResultCode, n.Message)), nil
	}

	existing, lookupErr := uc.payments.GetByTransaction(ctx, cmd.Processor, n.TransactionID)
	switch {
	case lookupErr == nil:
		statusText = "PAYMENT_REUSED"
		return dompay.Approved(existing), nil
	case !errors.Is(lookupErr, dompay.ErrNotFound):
		outcome, statusText = "error", "PAYMENT_LOOKUP_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, lookupErr)
	}

	handled := dompay.NewHandledPayment(uc.idGenerator.NewID(), cmd.Processor, cmd.Basket.ID, n)
	if err := uc.payments.Insert(ctx, handled); err != nil {
		if errors.Is(err, dompay.ErrConflict) {
			if existing, lookupErr := uc.payments.GetByTransaction(ctx, cmd.Processor, n.TransactionID); lookupErr == nil {
				statusText = "PAYMENT_REUSED"
				return dompay.Approved(existing), nil
			}
		}
		outcome, statusText = "error", "PAYMENT_INSERT_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	span.AddEvent("payment.handled",
		trace.WithAttributes(attribute.String("payment.id", handled.ID)),
	)
	return dompay.Approved(handled), nil
}
