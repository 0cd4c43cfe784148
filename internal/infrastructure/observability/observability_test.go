package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersServiceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(nil, nil, prometrics.New("", "", reg))

	tel.Metrics().Counter(observability.MReconciliationRequired).Add(1, observability.L("processor", "payflow"))
	tel.Metrics().Histogram(observability.MExternalRequestDuration).Observe(1.2,
		observability.L("peer", "payflow"), observability.L("endpoint", "token_exchange"))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{"reconciliation_required_total", "external_request_duration_seconds"}, names)
}

func TestNewWithoutRegistryIsNop(t *testing.T) {
	tel := New(nil, nil, nil)
	assert.NotPanics(t, func() {
		tel.Metrics().Counter(observability.MUsecaseRequests).Add(1)
		tel.Logger().Info("ignored")
	})
	assert.NotNil(t, tel.Tracer())
}
