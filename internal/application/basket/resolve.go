package basket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	basketService     = "basket-service"
	useCaseResolve    = "basket.resolve"
	spanPrefix        = "UC."
	resolveSpanName   = "ResolveBasket"
	statusNotFound    = "BASKET_NOT_FOUND"
	statusOffersError = "OFFER_LOOKUP_FAILED"
)

var (
	ErrBasketNotFound = dombasket.ErrBasketNotFound
	ErrRepository     = errors.New("basket: repository failure")
)

// ResolveInput identifies a basket either by the order reference a provider
// echoes back or directly by id. OrderReference wins when both are set.
type ResolveInput struct {
	Site           application.Site
	OrderReference string
	BasketID       int64
}

// ResolveBasketUseCase maps an order reference back to its basket and prices
// it against the offers active at Site.At.
type ResolveBasketUseCase struct {
	baskets    dombasket.Repository
	offers     dombasket.OfferCatalog
	applicator dombasket.Applicator

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewResolveBasketUseCase(baskets dombasket.Repository, offers dombasket.OfferCatalog, tel observability.Observability) *ResolveBasketUseCase {
	tel = observability.Or(tel)
	metrics := tel.Metrics()
	return &ResolveBasketUseCase{
		baskets:      baskets,
		offers:       offers,
		log:          tel.Logger().With(observability.F("service", basketService)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (uc *ResolveBasketUseCase) Execute(ctx context.Context, cmd ResolveInput) (_ *dombasket.Basket, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseResolve),
		observability.F("order_reference", cmd.OrderReference),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+resolveSpanName,
		attribute.String("use_case", useCaseResolve),
		attribute.String("order.reference", cmd.OrderReference),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var basketID int64

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
			observability.L("use_case", useCaseResolve),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat, observability.L("use_case", useCaseResolve))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if basketID != 0 {
			fields = append(fields, observability.F("basket_id", basketID))
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	basketID = cmd.BasketID
	if cmd.OrderReference != "" {
		id, parseErr := domorder.BasketIDFromNumber(cmd.OrderReference)
		if parseErr != nil {
			outcome, statusText = "error", statusNotFound
			return nil, fmt.Errorf("%w: %w", ErrBasketNotFound, parseErr)
		}
		basketID = id
	}
	if basketID <= 0 {
		outcome, statusText = "error", statusNotFound
		return nil, ErrBasketNotFound
	}

	b, err := uc.baskets.Get(ctx, basketID)
	switch {
	case errors.Is(err, dombasket.ErrNotFound):
		outcome, statusText = "error", statusNotFound
		return nil, fmt.Errorf("%w: basket %d", ErrBasketNotFound, basketID)
	case err != nil:
		outcome, statusText = "error", "BASKET_LOAD_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	// Offers may have changed since the basket was built; price it as of now.
	var offers []dombasket.Offer
	if uc.offers != nil {
		offers, err = uc.offers.Active(ctx, cmd.Site.At)
		if err != nil {
			outcome, statusText = "error", statusOffersError
			return nil, fmt.Errorf("basket: active offers: %w", err)
		}
	}
	uc.applicator.Apply(b, offers)

	span.SetAttributes(
		attribute.Int64("basket.id", b.ID),
		attribute.String("basket.status", string(b.Status)),
		attribute.String("basket.total", b.Total().String()),
	)
	return b, nil
}
