package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appbasket "github.com/Zhima-Mochi/minishop-checkout/internal/application/basket"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	maxFormBytes         = 64 << 10
	defaultProcessor     = "payflow"

	// Payload keys used when a callback body cannot be decoded.
	payloadRawBody    = "raw_body"
	payloadParseError = "parse_error"

	routeExecute   = "/payment/payflow/execute"
	routeCheckout  = "/payment/payflow/checkout"
	routeOrder     = "/orders/{number}"
	routeResponses = "/payment/responses"
	routeHealth    = "/health"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, in notification.Inbound) *notification.Outcome
}

// Site is what the handler needs to know about the storefront it serves.
type Site struct {
	Code       string
	ReceiptURL string
	ErrorURL   string
}

type Deps struct {
	Dispatcher Dispatcher
	Initiator  application.UseCase[apppay.InitiateInput, *apppay.InitiateResult]
	Orders     domorder.Repository
	Responses  dompay.ResponseRepository
	// Processor extracts references from callbacks that cannot be dispatched.
	// Optional.
	Processor dompay.Processor
	Site      Site
	// Health reports readiness of the store; nil means always ready.
	Health func(ctx context.Context) error
	// Now defaults to time.Now.
	Now func() time.Time
}

type Handler struct {
	deps Deps
	log  observability.Logger
	tel  observability.Observability

	httpCounter   observability.Counter
	httpHistogram observability.Histogram
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	tel = observability.Or(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{
		deps:          deps,
		log:           logger.With(observability.F("component", componentHTTPHandler)),
		tel:           tel,
		httpCounter:   tel.Metrics().Counter(observability.MHTTPRequests),
		httpHistogram: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → ObservabilityMiddleware (request logger) → access log → HTTP metrics → handler
	h.muxHandle(mux, http.MethodPost, routeExecute, h.handleCallback)
	h.muxHandle(mux, http.MethodGet, routeExecute, h.handleRedirect)
	h.muxHandle(mux, http.MethodPost, routeCheckout, h.handleCheckout)
	h.muxHandle(mux, http.MethodGet, routeOrder, h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, routeResponses, h.handleListResponses)
	h.muxHandle(mux, http.MethodGet, routeHealth, h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	label := method + " " + route
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerTenantID) },
		)(
			h.withAccessLog(
				h.withHTTPMetrics(handler),
			),
		),
	)
	mux.HandleFunc(label, func(w http.ResponseWriter, r *http.Request) {
		// Stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), label)))
	})
}

func (h *Handler) site() application.Site {
	return application.Site{Code: h.deps.Site.Code, At: h.deps.Now().UTC()}
}

// handleCallback is the server-to-server notification. The status code is
// the only thing the provider reads: 2xx stops its retries.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	var form url.Values
	if len(body) > maxFormBytes {
		body = body[:maxFormBytes]
		err = fmt.Errorf("body exceeds %d bytes", maxFormBytes)
	} else {
		form, err = url.ParseQuery(string(body))
	}
	if err != nil {
		h.recordUndecodable(r.Context(), body, form, err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	out := h.deps.Dispatcher.Dispatch(r.Context(), notification.Inbound{
		Channel: notification.ChannelCallback,
		Site:    h.site(),
		Payload: payloadFrom(form),
	})

	switch out.Kind {
	case notification.OutcomePlaced, notification.OutcomeAlreadyPlaced,
		notification.OutcomeDeclined, notification.OutcomeReconcile:
		writeJSON(w, http.StatusOK, callbackResponse{Outcome: string(out.Kind), OrderNumber: out.OrderNumber})
	case notification.OutcomeRejected:
		writeJSON(w, http.StatusBadRequest, callbackResponse{Outcome: string(out.Kind), Error: errText(out.Err)})
	default:
		writeJSON(w, http.StatusInternalServerError, callbackResponse{Outcome: string(out.Kind)})
	}
}

type callbackResponse struct {
	Outcome     string `json:"outcome"`
	OrderNumber string `json:"order_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// recordUndecodable keeps the raw callback body so that a notification the
// provider sent is never lost, even when it cannot be dispatched. Whatever
// pairs decoded before the error are kept for the transaction reference.
func (h *Handler) recordUndecodable(ctx context.Context, body []byte, partial url.Values, cause error) {
	logger := logctx.FromOr(ctx, h.log)
	if h.deps.Responses == nil {
		logger.Warn("callback_undecodable_not_recorded", observability.F("error", cause.Error()))
		return
	}
	p := payloadFrom(partial)
	processor, txnID := defaultProcessor, ""
	if h.deps.Processor != nil {
		processor = h.deps.Processor.Name()
		txnID, _ = h.deps.Processor.References(p)
	}
	p[payloadRawBody] = string(body)
	p[payloadParseError] = cause.Error()
	id, err := h.deps.Responses.Append(ctx, &dompay.ProcessorResponse{
		Processor:     processor,
		Payload:       p,
		TransactionID: txnID,
		CreatedAt:     h.deps.Now().UTC(),
	})
	if err != nil {
		logger.Error("callback_record_failed",
			observability.F("error", err.Error()),
			observability.F("parse_error", cause.Error()),
		)
		return
	}
	logger.Warn("callback_undecodable",
		observability.F("record_id", id),
		observability.F("body_bytes", len(body)),
		observability.F("error", cause.Error()),
	)
}

// handleRedirect serves the customer's browser coming back from the hosted
// page. It always answers with a redirect.
func (h *Handler) handleRedirect(w http.ResponseWriter, r *http.Request) {
	out := h.deps.Dispatcher.Dispatch(r.Context(), notification.Inbound{
		Channel: notification.ChannelRedirect,
		Site:    h.site(),
		Payload: payloadFrom(r.URL.Query()),
	})

	target := h.deps.Site.ErrorURL
	if out.Kind == notification.OutcomePlaced || out.Kind == notification.OutcomeAlreadyPlaced {
		target = withQuery(h.deps.Site.ReceiptURL, "order_number", out.OrderNumber)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type checkoutRequest struct {
	BasketID            int64  `json:"basket_id"`
	CardholderFirstName string `json:"cardholder_firstname"`
	CardholderLastName  string `json:"cardholder_lastname"`
}

type checkoutResponse struct {
	PaymentPageURL string `json:"payment_page_url"`
	OrderNumber    string `json:"order_number"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.BasketID <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("basket_id is required"))
		return
	}

	res, err := h.deps.Initiator.Execute(r.Context(), apppay.InitiateInput{
		Site:     h.site(),
		BasketID: req.BasketID,
		Cardholder: dompay.Cardholder{
			FirstName: strings.TrimSpace(req.CardholderFirstName),
			LastName:  strings.TrimSpace(req.CardholderLastName),
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{PaymentPageURL: res.PaymentPageURL, OrderNumber: res.OrderNumber})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.Orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *Handler) handleListResponses(w http.ResponseWriter, r *http.Request) {
	txnID := strings.TrimSpace(r.URL.Query().Get("transaction_id"))
	if txnID == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction_id is required"))
		return
	}
	rows, err := h.deps.Responses.ListByTransaction(r.Context(), txnID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]responseView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newResponseView(row))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withHTTPMetrics records RED metrics on instruments created once in NewHandler.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.httpCounter.Add(1, labels...)
		h.httpHistogram.Observe(time.Since(start).Seconds(), labels...)
	})
}

// payloadFrom keeps the first value of every key.
func payloadFrom(values url.Values) dompay.Payload {
	p := make(dompay.Payload, len(values))
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	return p
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxFormBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dompay.ErrNotFound),
		errors.Is(err, appbasket.ErrBasketNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, apppay.ErrBasketNotPayable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dompay.ErrGateway):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
