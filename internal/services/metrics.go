package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records pipeline counters. A nil *Metrics is a no-op so services
// can be built without it in tests.
type Metrics struct {
	registry      *prometheus.Registry
	sweeps        *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	quotes        *prometheus.CounterVec
	quoteFailures *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockalert_sweeps_total",
			Help: "Sweeps by type and result (completed, skipped, failed)",
		}, []string{"sweep", "result"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockalert_sweep_duration_seconds",
			Help:    "Wall time of completed sweeps",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"sweep"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockalert_quotes_resolved_total",
			Help: "Resolved quotes by answering provider",
		}, []string{"source"}),
		quoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockalert_quote_failures_total",
			Help: "Provider attempts that did not produce a quote",
		}, []string{"provider"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockalert_alerts_fired_total",
			Help: "Alert events by condition type",
		}, []string{"condition"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockalert_deliveries_total",
			Help: "Push deliveries by result",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.sweeps, m.sweepDuration, m.quotes, m.quoteFailures, m.alerts, m.deliveries)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) sweep(name, result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(name, result).Inc()
}

func (m *Metrics) sweepTook(name string, seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) quoteResolved(source string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(source).Inc()
}

func (m *Metrics) quoteFailed(providerName string) {
	if m == nil {
		return
	}
	m.quoteFailures.WithLabelValues(providerName).Inc()
}

func (m *Metrics) alertFired(condition string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(condition).Inc()
}

func (m *Metrics) delivered(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.deliveries.WithLabelValues(result).Inc()
}
