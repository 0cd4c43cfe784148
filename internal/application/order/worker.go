package order

import (
	"context"
	"fmt"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	workerService = "order-worker"
)

// FulfillmentWorker hands committed orders to fulfillment.
type FulfillmentWorker struct {
	subscriber  domoutbox.Subscriber
	fulfillment Fulfillment
	tel         observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewFulfillmentWorker(
	subscriber domoutbox.Subscriber,
	fulfillment Fulfillment,
	tel observability.Observability,
) *FulfillmentWorker {
	tel = observability.Or(tel)
	return &FulfillmentWorker{
		subscriber:   subscriber,
		fulfillment:  fulfillment,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *FulfillmentWorker) Start() {
	if w.subscriber == nil || w.fulfillment == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *FulfillmentWorker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.order_placed"
	evt, ok := e.(domorder.OrderPlacedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"OrderPlaced",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("order.number", evt.OrderNumber),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	// The fulfillment client logs through ctx with the same fields.
	ctx, logger := logctx.Enrich(ctx, w.log, append([]observability.Field{
		observability.F("use_case", useCase),
		observability.F("order_number", evt.OrderNumber),
	}, observability.TraceFields(ctx)...)...)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)

		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	if err := w.fulfillment.Fulfill(ctx, evt); err != nil {
		outcome, status = "error", "FULFILLMENT_HANDOFF_FAILED"
		span.RecordError(err)
		return fmt.Errorf("worker: fulfill order %s: %w", evt.OrderNumber, err)
	}
	return nil
}

func (w *FulfillmentWorker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *FulfillmentWorker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
