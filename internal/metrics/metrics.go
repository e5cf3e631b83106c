// Package metrics exposes Prometheus collectors for tracker runs and the
// report server. Each Metrics value owns its own registry.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector of the tracker.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	retriesTotal           *prometheus.CounterVec
	failuresTotal          *prometheus.CounterVec
	mergeTotal             *prometheus.CounterVec
	decisions              prometheus.Gauge
	lastRunTimestamp       prometheus.Gauge
	rateLimitDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upc_fetch_requests_total",
			Help: "Fetch attempts, labeled by kind (listing, document) and outcome.",
		}, []string{"kind", "outcome"}),
		retriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upc_fetch_retries_total",
			Help: "Retries scheduled after transient fetch errors.",
		}, []string{"kind"}),
		failuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upc_unit_failures_total",
			Help: "Skipped units, labeled by pipeline stage.",
		}, []string{"stage"}),
		mergeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upc_merge_candidates_total",
			Help: "Merged candidates, labeled by outcome.",
		}, []string{"outcome"}),
		decisions: f.NewGauge(prometheus.GaugeOpts{
			Name: "upc_decisions",
			Help: "Decisions held in the store after the last run.",
		}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "upc_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		rateLimitDelaySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upc_rate_limit_delay_seconds",
			Help:    "Time spent waiting for the per-host rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"host"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Report server requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestDurationSec: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Report server latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest counts one fetch attempt.
func (m *Metrics) ObserveRequest(kind, outcome string) {
	m.requestsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRetry counts one scheduled retry.
func (m *Metrics) ObserveRetry(kind string) {
	m.retriesTotal.WithLabelValues(kind).Inc()
}

// ObserveFailure counts one skipped unit.
func (m *Metrics) ObserveFailure(stage string) {
	m.failuresTotal.WithLabelValues(stage).Inc()
}

// ObserveMerge counts one merged candidate.
func (m *Metrics) ObserveMerge(outcome string) {
	m.mergeTotal.WithLabelValues(outcome).Inc()
}

// SetDecisions records the store size.
func (m *Metrics) SetDecisions(n int) {
	m.decisions.Set(float64(n))
}

// MarkRunFinished stamps the run completion time.
func (m *Metrics) MarkRunFinished(t time.Time) {
	m.lastRunTimestamp.Set(float64(t.Unix()))
}

// ObserveRateLimitDelay records a rate limiter wait.
func (m *Metrics) ObserveRateLimitDelay(host string, d time.Duration) {
	m.rateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// WriteTextfile dumps the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
