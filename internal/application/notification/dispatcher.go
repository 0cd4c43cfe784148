package notification

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appbasket "github.com/Zhima-Mochi/minishop-checkout/internal/application/basket"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dispatcherService = "notification-dispatcher"
	spanPrefix        = "UC."
	publishPeer       = "outbox"
	publishTimeout    = 300 * time.Millisecond
)

// Channel is the path a notification arrived on.
type Channel string

const (
	ChannelCallback Channel = "callback"
	ChannelRedirect Channel = "redirect"
)

// OutcomeKind is what the dispatcher decided. Transports map it to a response.
type OutcomeKind string

const (
	OutcomePlaced        OutcomeKind = "placed"
	OutcomeAlreadyPlaced OutcomeKind = "already_placed"
	OutcomeDeclined      OutcomeKind = "declined"
	// OutcomeRejected: untrusted or unresolvable input, retrying will not help.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeRetry: transient or provider-side failure, the provider should resend.
	OutcomeRetry OutcomeKind = "retry"
	// OutcomeReconcile: money was taken but no order can be placed for it.
	OutcomeReconcile OutcomeKind = "reconcile"
)

// Acknowledged reports whether the provider should consider the notification consumed.
func (k OutcomeKind) Acknowledged() bool {
	switch k {
	case OutcomePlaced, OutcomeAlreadyPlaced, OutcomeDeclined, OutcomeReconcile:
		return true
	default:
		return false
	}
}

type Inbound struct {
	Channel Channel
	Site    application.Site
	Payload dompay.Payload
}

type Outcome struct {
	Kind        OutcomeKind
	OrderNumber string
	BasketID    int64
	RecordID    int64
	Reason      string
	Err         error
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Processor dompay.Processor
	Recorder  application.UseCase[apppay.RecordInput, *apppay.RecordResult]
	Resolver  application.UseCase[appbasket.ResolveInput, *dombasket.Basket]
	Handler   application.UseCase[apppay.HandleInput, *dompay.Result]
	Placer    application.UseCase[apporder.PlaceOrderInput, *apporder.PlaceOrderResult]
	Tx        application.TxManager
	Publisher domoutbox.Publisher
	Shipping  domorder.ShippingMethod
}

// Dispatcher runs the notification pipeline shared by the callback and
// redirect channels: record, validate, then resolve, handle and place inside
// one transaction.
type Dispatcher struct {
	deps Deps
	tel  observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	outcomes     observability.Counter
	reconcile    observability.Counter
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func New(deps Deps, tel observability.Observability) *Dispatcher {
	tel = observability.Or(tel)
	if deps.Shipping == nil {
		deps.Shipping = domorder.NoShippingRequired{}
	}
	m := tel.Metrics()
	return &Dispatcher{
		deps:         deps,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", dispatcherService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		outcomes:     m.Counter(observability.MNotificationOutcomes),
		reconcile:    m.Counter(observability.MReconciliationRequired),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Dispatch never returns without an outcome; panics in the pipeline become
// OutcomeRetry.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (out *Outcome) {
	useCase := "notification." + string(in.Channel)
	processor := d.deps.Processor.Name()
	logger := logctx.FromOr(ctx, d.log).With(
		observability.F("use_case", useCase),
		observability.F("processor", processor),
	)
	ctx, span := d.tel.Tracer().Start(ctx, spanPrefix+"DispatchNotification",
		attribute.String("use_case", useCase),
		attribute.String("notification.channel", string(in.Channel)),
	)
	start := time.Now()
	out = &Outcome{}
	var transactionID, orderReference string

	defer func() {
		if r := recover(); r != nil {
			out.Kind = OutcomeRetry
			out.Err = fmt.Errorf("notification: panic: %v", r)
			logger.Error("notification_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
		lat := time.Since(start).Seconds()

		outcome := "success"
		if !out.Kind.Acknowledged() {
			outcome = "error"
		}
		span.SetAttributes(attribute.String("notification.outcome", string(out.Kind)))
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, string(out.Kind))
		} else {
			span.SetStatus(codes.Ok, string(out.Kind))
		}
		span.End()

		d.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		d.durHistogram.Observe(lat, observability.L("use_case", useCase))
		d.outcomes.Add(1,
			observability.L("channel", string(in.Channel)),
			observability.L("outcome", string(out.Kind)),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", string(out.Kind)),
			observability.F("latency_seconds", lat),
			observability.F("transaction_id", transactionID),
			observability.F("order_reference", orderReference),
			observability.F("response_record_id", out.RecordID),
		}
		if out.OrderNumber != "" {
			fields = append(fields, observability.F("order_number", out.OrderNumber))
		}
		if out.Reason != "" {
			fields = append(fields, observability.F("reason", out.Reason))
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if out.Err != nil {
			fields = append(fields, observability.F("error", out.Err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	transactionID, orderReference = d.deps.Processor.References(in.Payload)
	logger.Info("notification_received",
		observability.F("channel", string(in.Channel)),
		observability.F("transaction_id", transactionID),
		observability.F("order_reference", orderReference),
	)

	// Recording comes first and outside the transaction so the audit trail
	// survives every later failure.
	rec, err := d.deps.Recorder.Execute(ctx, apppay.RecordInput{
		Processor:      processor,
		Payload:        in.Payload,
		TransactionID:  transactionID,
		OrderReference: orderReference,
	})
	if err != nil {
		logger.Error("response_record_failed", observability.F("error", err.Error()))
	} else {
		out.RecordID = rec.ID
	}

	n, err := d.deps.Processor.Validate(in.Payload)
	if err != nil {
		out.Kind, out.Err = OutcomeRejected, err
		logger.Warn("notification_invalid",
			observability.F("response_record_id", out.RecordID),
			observability.F("error", err.Error()),
		)
		return out
	}

	var placed *domorder.Order
	err = d.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := d.deps.Resolver.Execute(ctx, appbasket.ResolveInput{Site: in.Site, OrderReference: n.OrderReference})
		if err != nil {
			return err
		}
		out.BasketID = b.ID

		res, err := d.deps.Handler.Execute(ctx, apppay.HandleInput{Processor: processor, Notification: n, Basket: b})
		if err != nil {
			return err
		}
		switch res.Kind {
		case dompay.ResultDeclined:
			out.Kind, out.Reason = OutcomeDeclined, res.Reason
			return nil
		case dompay.ResultError:
			return fmt.Errorf("%w: %s", dompay.ErrGateway, res.Reason)
		}

		// Totals come from the stored basket, not from the provider's
		// figures; the placer compares the two.
		charge := d.deps.Shipping.Charge(b)
		result, err := d.deps.Placer.Execute(ctx, apporder.PlaceOrderInput{
			Site:           in.Site,
			Basket:         b,
			OwnerID:        b.OwnerID,
			Payment:        res.Payment,
			ShippingMethod: d.deps.Shipping,
			ShippingCharge: charge,
			Billing: domorder.Billing{
				FirstName: n.BillToFirst,
				LastName:  n.BillToLast,
				Country:   n.BillingCountry,
			},
			OrderTotal: domorder.CalculateTotal(b, charge),
		})
		if err != nil {
			return err
		}
		out.OrderNumber = result.Order.Number
		if result.Replayed || res.AlreadyHandled {
			out.Kind = OutcomeAlreadyPlaced
			return nil
		}
		out.Kind = OutcomePlaced
		placed = result.Order
		return nil
	})
	if err != nil {
		out.Kind, out.Err = classify(err), err
		out.OrderNumber = ""
		switch out.Kind {
		case OutcomeReconcile:
			d.reconcile.Add(1, observability.L("processor", processor))
			logger.Error("payment_reconciliation_required",
				observability.F("basket_id", out.BasketID),
				observability.F("transaction_id", n.TransactionID),
				observability.F("amount", n.Amount.String()),
				observability.F("currency", n.Currency),
				observability.F("response_record_id", out.RecordID),
				observability.F("error", err.Error()),
			)
		case OutcomeRejected:
			logger.Error("notification_basket_unresolved",
				observability.F("order_reference", n.OrderReference),
				observability.F("response_record_id", out.RecordID),
			)
		default:
			logger.Error("notification_handling_failed",
				observability.F("basket_id", out.BasketID),
				observability.F("response_record_id", out.RecordID),
				observability.F("error", err.Error()),
			)
		}
		return out
	}

	if out.Kind == OutcomeDeclined {
		logger.Info("payment_declined",
			observability.F("basket_id", out.BasketID),
			observability.F("reason", out.Reason),
			observability.F("response_record_id", out.RecordID),
		)
	}
	if placed != nil {
		d.publish(ctx, logger, span, placed)
	}
	return out
}

// publish is best effort: the order is committed whatever happens here.
func (d *Dispatcher) publish(ctx context.Context, logger observability.Logger, span trace.Span, o *domorder.Order) {
	if d.deps.Publisher == nil {
		return
	}
	evt := domorder.NewOrderPlacedEvent(o)
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	pubStart := time.Now()
	pubOutcome := "success"
	err := d.deps.Publisher.Publish(pubCtx, evt)
	if err != nil {
		pubOutcome = "error"
	} else if pubCtx.Err() != nil {
		pubOutcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	d.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
		observability.L("outcome", pubOutcome),
	)
	d.extHistogram.Observe(time.Since(pubStart).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
	)
	if err != nil {
		span.RecordError(err)
		logger.Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("order_number", o.Number),
			observability.F("error", err.Error()),
		)
	}
}

func classify(err error) OutcomeKind {
	switch {
	case errors.Is(err, dombasket.ErrBasketNotFound),
		errors.Is(err, dompay.ErrMalformedResponse),
		errors.Is(err, dompay.ErrInvalidSignature):
		return OutcomeRejected
	case errors.Is(err, domorder.ErrAmountMismatch),
		errors.Is(err, apporder.ErrBasketNotSubmittable),
		errors.Is(err, apppay.ErrSecondCharge),
		// Submitted basket with no stored payment and no order.
		errors.Is(err, domorder.ErrNoPayment):
		return OutcomeReconcile
	default:
		return OutcomeRetry
	}
}
