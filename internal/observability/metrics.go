package observability

type MetricKey string

// Label keys per instrument are fixed at registration.
const (
	// {use_case, outcome}
	MUsecaseRequests MetricKey = "usecase_requests_total"
	// {use_case}
	MUsecaseDuration MetricKey = "usecase_duration_seconds"
	// {method, route, status}
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"
	// {peer, endpoint, outcome}; peers are the payment provider, kafka and the outbox.
	MExternalRequests MetricKey = "external_requests_total"
	// {peer, endpoint}
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	// {channel, outcome}
	MNotificationOutcomes MetricKey = "notification_outcomes_total"
	// {processor}. Any increment means money was taken without an order.
	MReconciliationRequired MetricKey = "reconciliation_required_total"
)
