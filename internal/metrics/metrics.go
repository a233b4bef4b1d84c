package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for templar.
type Metrics struct {
	// Sync cycle metrics
	SyncCyclesTotal          *prometheus.CounterVec
	TemplatesSyncedTotal     *prometheus.CounterVec
	SyncErrorsTotal          *prometheus.CounterVec
	SyncCycleDurationSeconds prometheus.Histogram

	// Cache gauges
	CachedTemplates prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// System metrics
	UptimeSeconds prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a
// dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SyncCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "templar_sync_cycles_total",
				Help: "Total number of sync cycles by trigger source and result",
			},
			[]string{"trigger", "result"},
		),
		TemplatesSyncedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "templar_templates_synced_total",
				Help: "Total number of successful template update dispatches",
			},
			[]string{"channel"},
		),
		SyncErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "templar_template_sync_errors_total",
				Help: "Total number of failed template update dispatches",
			},
			[]string{"channel"},
		),
		SyncCycleDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "templar_sync_cycle_duration_seconds",
				Help:    "Duration of completed sync cycles",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		CachedTemplates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "templar_cached_templates",
				Help: "Number of templates currently in the edit cache",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "templar_api_requests_total",
				Help: "Total number of control-plane API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "templar_api_request_duration_seconds",
				Help:    "Duration of control-plane API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "templar_uptime_seconds",
				Help: "Uptime of the templar process",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.SyncCyclesTotal,
		m.TemplatesSyncedTotal,
		m.SyncErrorsTotal,
		m.SyncCycleDurationSeconds,
		m.CachedTemplates,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, or nil when metrics are
// disabled.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// RecordSyncCycle increments the cycle counter.
func RecordSyncCycle(trigger, result string) {
	if m := Global(); m != nil {
		m.SyncCyclesTotal.WithLabelValues(trigger, result).Inc()
	}
}

// RecordTemplateSynced increments the dispatched-update counter.
func RecordTemplateSynced(channel string) {
	if m := Global(); m != nil {
		m.TemplatesSyncedTotal.WithLabelValues(channel).Inc()
	}
}

// RecordSyncError increments the failed-dispatch counter.
func RecordSyncError(channel string) {
	if m := Global(); m != nil {
		m.SyncErrorsTotal.WithLabelValues(channel).Inc()
	}
}

// ObserveSyncCycleDuration records how long a cycle took.
func ObserveSyncCycleDuration(seconds float64) {
	if m := Global(); m != nil {
		m.SyncCycleDurationSeconds.Observe(seconds)
	}
}

// SetCachedTemplates updates the cache size gauge.
func SetCachedTemplates(n int) {
	if m := Global(); m != nil {
		m.CachedTemplates.Set(float64(n))
	}
}
