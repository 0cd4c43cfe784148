// Package observability assembles the adapters behind the observability
// ports: zap for logs, Prometheus for metrics, OpenTelemetry for spans.
package observability

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// External calls are slower than use cases; the token exchange can take
// seconds.
var externalBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15}

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }

// New returns the service's Observability. With a nil registry metrics are
// dropped.
func New(tracer observability.Tracer, logger observability.Logger, reg prometrics.Registry) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	var metrics observability.Metrics = observability.NopMetrics()
	if reg != nil {
		metrics = register(reg)
	}
	return &provider{tracer: tracer, logger: logger, metrics: metrics}
}

type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m *instruments) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *instruments) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

// register creates every instrument up front with the label keys listed in
// observability/metrics.go.
func register(reg prometrics.Registry) *instruments {
	counter := func(k observability.MetricKey, help string, labels ...string) observability.Counter {
		return reg.Counter(string(k), help, labels...)
	}
	histogram := func(k observability.MetricKey, help string, buckets []float64, labels ...string) observability.Histogram {
		return reg.Histogram(string(k), help, buckets, labels...)
	}
	return &instruments{
		counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: counter(observability.MUsecaseRequests,
				"Use case invocations.", "use_case", "outcome"),
			observability.MHTTPRequests: counter(observability.MHTTPRequests,
				"HTTP requests served.", "method", "route", "status"),
			observability.MExternalRequests: counter(observability.MExternalRequests,
				"Calls to the payment provider, broker and event bus.", "peer", "endpoint", "outcome"),
			observability.MNotificationOutcomes: counter(observability.MNotificationOutcomes,
				"Payment notifications by delivery channel and outcome.", "channel", "outcome"),
			observability.MReconciliationRequired: counter(observability.MReconciliationRequired,
				"Approved payments that could not become an order.", "processor"),
		},
		histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: histogram(observability.MUsecaseDuration,
				"Use case duration in seconds.", nil, "use_case"),
			observability.MHTTPRequestDuration: histogram(observability.MHTTPRequestDuration,
				"HTTP request duration in seconds.", nil, "method", "route", "status"),
			observability.MExternalRequestDuration: histogram(observability.MExternalRequestDuration,
				"External call duration in seconds.", externalBuckets, "peer", "endpoint"),
		},
	}
}
