// Package metrics exposes the bridge's discovery and refresh activity as
// Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/aduro-bridge/internal/discovery"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

const namespace = "aduro_bridge"

// Metrics holds the bridge collectors on a private registry.
// It implements discovery.Observer.
type Metrics struct {
	registry *prometheus.Registry

	published       *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	failed          *prometheus.CounterVec
	retracted       prometheus.Counter
	triggers        prometheus.Counter
	refreshes       prometheus.Counter
	groupFailures   *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	lastRefresh     prometheus.Gauge
	connected       prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_published_total",
			Help:      "Discovery documents published, by entity kind and source.",
		}, []string{"kind", "source"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_skipped_total",
			Help:      "Entities not published, by reason.",
		}, []string{"reason"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_failed_total",
			Help:      "Discovery documents that could not be published, by entity kind.",
		}, []string{"kind"}),
		retracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_retracted_total",
			Help:      "Stale retained discovery documents cleared.",
		}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_triggers_total",
			Help:      "Refresh requests received from commands, the refresh button or the API.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_executions_total",
			Help:      "Debounced refresh runs.",
		}),
		groupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_group_failures_total",
			Help:      "State group queries that failed, by group.",
		}, []string{"group"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a full refresh run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_last_timestamp_seconds",
			Help:      "Completion time of the last refresh run (epoch seconds).",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the broker connection is up.",
		}),
	}

	m.registry.MustRegister(
		m.published, m.skipped, m.failed, m.retracted,
		m.triggers, m.refreshes, m.groupFailures, m.refreshDuration, m.lastRefresh,
		m.connected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func source(e discovery.Entity) string {
	if e.Inferred {
		return "inference"
	}
	return "catalog"
}

// Published implements discovery.Observer.
func (m *Metrics) Published(e discovery.Entity, _ string) {
	m.published.WithLabelValues(string(e.Kind), source(e)).Inc()
}

// Skipped implements discovery.Observer.
func (m *Metrics) Skipped(_ discovery.Entity, reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

// Retracted implements discovery.Observer.
func (m *Metrics) Retracted(string) {
	m.retracted.Inc()
}

// Failed implements discovery.Observer.
func (m *Metrics) Failed(e discovery.Entity, _ string, _ error) {
	m.failed.WithLabelValues(string(e.Kind)).Inc()
}

// RefreshTriggered counts one refresh request.
func (m *Metrics) RefreshTriggered() {
	m.triggers.Inc()
}

// Refreshed records a completed refresh run.
func (m *Metrics) Refreshed(report refresh.Report) {
	m.refreshes.Inc()
	m.refreshDuration.Observe(report.Duration.Seconds())
	m.lastRefresh.Set(float64(report.Started.Add(report.Duration).Unix()))
	for _, res := range report.Failed() {
		m.groupFailures.WithLabelValues(res.Group).Inc()
	}
}

// SetConnected records the broker connection state.
func (m *Metrics) SetConnected(up bool) {
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
