package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService      = "order-service"
	useCaseOrderPlace = "order.place"
	spanPrefix        = "UC."
)

var (
	ErrConflict       = domain.ErrConflict
	ErrNotFound       = domain.ErrNotFound
	ErrAmountMismatch = domain.ErrAmountMismatch
	ErrRepository     = errors.New("order: repository failure")
	// ErrBasketNotSubmittable means the payment was handled but the basket is
	// cancelled, or submitted without an order carrying its number.
	ErrBasketNotSubmittable = errors.New("order: basket cannot be submitted")
)

// PlaceOrderUseCase turns a paid basket into an order. It must run inside the
// transaction that handled the payment.
type PlaceOrderUseCase struct {
	orders  domain.Repository
	baskets dombasket.Repository
	tel     observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewPlaceOrderUseCase(
	orders domain.Repository,
	baskets dombasket.Repository,
	tel observability.Observability,
) *PlaceOrderUseCase {
	tel = observability.Or(tel)
	metricsProvider := tel.Metrics()
	return &PlaceOrderUseCase{
		orders:       orders,
		baskets:      baskets,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

type PlaceOrderInput struct {
	Site           application.Site
	Basket         *dombasket.Basket
	OwnerID        string
	Payment        *dompay.HandledPayment
	ShippingMethod domain.ShippingMethod
	ShippingCharge decimal.Decimal
	Billing        domain.Billing
	OrderTotal     decimal.Decimal
}

type PlaceOrderResult struct {
	Order *domain.Order
	// Replayed is true when the order already existed and nothing was written.
	Replayed bool
}

// Execute places the order for cmd.Basket exactly once. Concurrent or repeated
// calls for the same basket all return the same order.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseOrderPlace))

	var number string
	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCaseOrderPlace),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderPlace),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCaseOrderPlace),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if number != "" {
			fields = append(fields, observability.F("order_number", number))
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if cmd.Basket == nil {
		outcome, statusText = "error", "BASKET_REQUIRED"
		return nil, newValidation("basket is required")
	}
	if cmd.ShippingMethod == nil {
		cmd.ShippingMethod = domain.NoShippingRequired{}
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	number = domain.NumberFor(cmd.Site.Code, cmd.Basket.ID)
	span.SetAttributes(attribute.String("order.number", number))

	existing, repoErr := uc.orders.GetByNumber(ctx, number)
	switch {
	case repoErr == nil:
		statusText = "IDEMPOTENT_REPLAY"
		uc.replayEvent(span, existing)
		return &PlaceOrderResult{Order: existing, Replayed: true}, nil
	case errors.Is(repoErr, domain.ErrNotFound):
		// continue
	default:
		outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
		return nil, wrapRepositoryError(repoErr)
	}

	if cmd.Payment == nil {
		outcome, statusText = "error", "PAYMENT_REQUIRED"
		return nil, domain.ErrNoPayment
	}

	// Exact match only: a partial authorization or a tampered amount must not
	// turn into an order.
	if !cmd.Payment.Amount.Equal(cmd.OrderTotal) || cmd.Payment.Currency != cmd.Basket.Currency {
		outcome, statusText = "error", "AMOUNT_MISMATCH"
		return nil, fmt.Errorf("%w: paid %s %s, order total %s %s", ErrAmountMismatch,
			cmd.Payment.Amount, cmd.Payment.Currency, cmd.OrderTotal, cmd.Basket.Currency)
	}

	submitted, err := uc.baskets.Transition(ctx, cmd.Basket.ID, dombasket.StatusSubmitted, dombasket.SourcesFor(dombasket.StatusSubmitted)...)
	if err != nil {
		outcome, statusText = "error", "BASKET_SUBMIT_FAILED"
		return nil, wrapRepositoryError(err)
	}
	if !submitted {
		// Another delivery of the same notification won the race.
		winner, lookupErr := uc.orders.GetByNumber(ctx, number)
		if lookupErr == nil {
			statusText = "IDEMPOTENT_REPLAY"
			uc.replayEvent(span, winner)
			return &PlaceOrderResult{Order: winner, Replayed: true}, nil
		}
		outcome, statusText = "error", "BASKET_NOT_SUBMITTABLE"
		if errors.Is(lookupErr, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: basket %d", ErrBasketNotSubmittable, cmd.Basket.ID)
		}
		return nil, wrapRepositoryError(lookupErr)
	}

	entity, derr := domain.New(domain.Draft{
		Number:         number,
		Basket:         cmd.Basket,
		OwnerID:        cmd.OwnerID,
		ShippingMethod: cmd.ShippingMethod.Code(),
		ShippingCharge: cmd.ShippingCharge,
		Total:          cmd.OrderTotal,
		Billing:        cmd.Billing,
		PaymentID:      cmd.Payment.ID,
		TransactionID:  cmd.Payment.TransactionID,
	})
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("order: construct: %w", derr)
	}

	if err := uc.orders.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			if winner, lookupErr := uc.orders.GetByNumber(ctx, number); lookupErr == nil {
				statusText = "IDEMPOTENT_REPLAY"
				uc.replayEvent(span, winner)
				return &PlaceOrderResult{Order: winner, Replayed: true}, nil
			}
		}
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, wrapRepositoryError(err)
	}

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.placed",
		trace.WithAttributes(
			attribute.String("order.number", entity.Number),
			attribute.String("order.total", entity.Total.String()),
		),
	)

	return &PlaceOrderResult{Order: entity}, nil
}

func (uc *PlaceOrderUseCase) replayEvent(span trace.Span, o *domain.Order) {
	span.SetAttributes(attribute.String("order.status", string(o.Status)))
	span.AddEvent("order.idempotent_replay",
		trace.WithAttributes(attribute.String("order.number", o.Number)),
	)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func newValidation(msg string) error {
	return fmt.Errorf("validation: %w", errors.New(msg))
}
