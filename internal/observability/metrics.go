package observability

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackwell-systems/edgeredirect/internal/logging"
)

const (
	ReloadOK     = "ok"
	ReloadFailed = "failed"

	otherHost = "other"
)

type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	requestDuration    *prometheus.HistogramVec
	rules              prometheus.Gauge
	reloadsTotal       *prometheus.CounterVec

	// knownHosts bounds the host label to hosts present in the rule table.
	knownHosts atomic.Pointer[map[string]struct{}]
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "edgeredirect_requests_total", Help: "Total requests by outcome"},
			[]string{"host", "action", "rule", "code"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgeredirect_evaluation_duration_seconds",
				Help:    "Rule table evaluation time in seconds",
				Buckets: []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001},
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgeredirect_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		rules: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "edgeredirect_rules", Help: "Rules in the active table"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "edgeredirect_reloads_total", Help: "Rule table reloads by result"},
			[]string{"result"},
		),
	}
	m.knownHosts.Store(&map[string]struct{}{})

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.evaluationDuration,
		m.requestDuration,
		m.rules,
		m.reloadsTotal,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// SetTableInfo records the size of the active table and the hosts allowed
// as label values.
func (m *Metrics) SetTableInfo(rules int, hosts []string) {
	if m == nil {
		return
	}
	m.rules.Set(float64(rules))
	known := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		known[h] = struct{}{}
	}
	m.knownHosts.Store(&known)
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveReload(result string) {
	if m == nil {
		return
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
}

// Observe records one finished request. host is the normalized request host.
func (m *Metrics) Observe(decision logging.Decision, host string, elapsed time.Duration) {
	if m == nil {
		return
	}

	if _, ok := (*m.knownHosts.Load())[host]; !ok {
		host = otherHost
	}
	m.requestsTotal.WithLabelValues(host, decision.Action, decision.Rule, strconv.Itoa(decision.StatusCode)).Inc()
	m.requestDuration.WithLabelValues(decision.Action).Observe(elapsed.Seconds())
}
