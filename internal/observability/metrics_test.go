package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/edgeredirect/internal/logging"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	metrics.SetTableInfo(5, []string{"www.blackwell-systems.com", "blackwell-systems.com"})

	decision := logging.Decision{
		Rule:       "www-to-blog",
		Action:     logging.ActionRedirect,
		StatusCode: 301,
	}
	metrics.Observe(decision, "www.blackwell-systems.com", 2*time.Millisecond)
	metrics.Observe(logging.Decision{Action: logging.ActionPass, StatusCode: 200}, "random.example", time.Millisecond)
	metrics.ObserveEvaluation(3 * time.Microsecond)
	metrics.ObserveReload(ReloadOK)

	_, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("www.blackwell-systems.com", "redirect", "www-to-blog", "301")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("other", "pass", "", "200")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.rules))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reloadsTotal.WithLabelValues(ReloadOK)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe(logging.Decision{}, "", 0)
	m.ObserveEvaluation(0)
	m.ObserveReload(ReloadFailed)
	m.SetTableInfo(0, nil)
}
