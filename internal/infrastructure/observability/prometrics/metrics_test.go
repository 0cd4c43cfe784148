package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRecordsAndIgnoresBadLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("", "", reg).Counter("notification_outcomes_total", "help", "channel", "outcome")

	c.Add(1, observability.L("channel", "callback"), observability.L("outcome", "placed"))
	c.Add(1, observability.L("channel", "callback"), observability.L("outcome", "placed"))
	assert.NotPanics(t, func() { c.Add(1, observability.L("channel", "callback")) })

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, 2.0, families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestHistogramRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New("checkout", "", reg)
	h1 := r.Histogram("usecase_duration_seconds", "help", nil, "use_case")
	h2 := r.Histogram("usecase_duration_seconds", "help", nil, "use_case")

	h1.Observe(0.2, observability.L("use_case", "order.place"))
	h2.Observe(0.4, observability.L("use_case", "order.place"))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "checkout_usecase_duration_seconds", families[0].GetName())
	assert.Equal(t, uint64(2), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}
