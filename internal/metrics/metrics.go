// Package metrics exposes Prometheus collectors for the cache fabric,
// provider router, scan pipeline and notification gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the application records into. Each instance
// owns its registry so tests can construct registries freely.
type Metrics struct {
	registry *prometheus.Registry

	// Cache fabric
	CacheRequests *prometheus.CounterVec // namespace, tier, outcome

	// In-flight dedup
	FlightShared *prometheus.CounterVec // namespace

	// Provider router
	UpstreamCalls *prometheus.CounterVec // provider, capability, status
	BreakerState  *prometheus.GaugeVec   // provider (0 closed, 1 half-open, 2 open)

	// Scan pipeline
	ScanDuration prometheus.Histogram
	ScansTotal   prometheus.Counter
	ActiveScans  prometheus.Gauge

	// Notification gate
	NotificationsSent       *prometheus.CounterVec // category
	NotificationsSuppressed *prometheus.CounterVec // category, reason

	// Prewarm
	PrewarmPhaseSeconds *prometheus.GaugeVec // phase
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_cache_requests_total",
				Help: "Cache fabric lookups by namespace, tier and outcome",
			},
			[]string{"namespace", "tier", "outcome"},
		),

		FlightShared: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_flight_shared_total",
				Help: "Lookups satisfied by sharing an in-flight fetch",
			},
			[]string{"namespace"},
		),

		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_upstream_calls_total",
				Help: "Upstream provider calls by provider, capability and status",
			},
			[]string{"provider", "capability", "status"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "folio_breaker_state",
				Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "folio_scan_duration_seconds",
				Help:    "Wall time of full scan passes",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		ScansTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_scans_total",
				Help: "Total scan passes started",
			},
		),

		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "folio_active_scans",
				Help: "Number of scans currently running (0 or 1)",
			},
		),

		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_notifications_sent_total",
				Help: "Notifications delivered by category",
			},
			[]string{"category"},
		),

		NotificationsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_notifications_suppressed_total",
				Help: "Notifications suppressed by category and reason",
			},
			[]string{"category", "reason"},
		),

		PrewarmPhaseSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "folio_prewarm_phase_seconds",
				Help: "Duration of the last run of each prewarm phase",
			},
			[]string{"phase"},
		),
	}

	m.registry.MustRegister(
		m.CacheRequests,
		m.FlightShared,
		m.UpstreamCalls,
		m.BreakerState,
		m.ScanDuration,
		m.ScansTotal,
		m.ActiveScans,
		m.NotificationsSent,
		m.NotificationsSuppressed,
		m.PrewarmPhaseSeconds,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
