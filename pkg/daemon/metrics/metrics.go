// Package metrics provides Prometheus metrics for the fsfind daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fsfind"

// Metrics holds the daemon's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	applyDuration  *prometheus.HistogramVec
	indexedEntries prometheus.Gauge
	watchedDirs    prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updater_events_total",
				Help:      "Filesystem events received by the updater, by kind",
			},
			[]string{"op"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updater_outcomes_total",
				Help:      "Updater event outcomes (added, updated, removed, errors, healed, missing, excluded)",
			},
			[]string{"outcome"},
		),
		applyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "updater_apply_duration_seconds",
				Help:      "Time to apply one event to the index",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"op"},
		),
		indexedEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_entries",
				Help:      "Number of entries in the index",
			},
		),
		watchedDirs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "watched_directories",
				Help:      "Number of directories with an active watch",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordEvent records a received event and how long it took to apply.
func (m *Metrics) RecordEvent(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(op).Inc()
	m.applyDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordOutcome adds n to an outcome counter.
func (m *Metrics) RecordOutcome(outcome string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.outcomesTotal.WithLabelValues(outcome).Add(float64(n))
}

// SetIndexedEntries sets the current index size.
func (m *Metrics) SetIndexedEntries(n int64) {
	if m == nil {
		return
	}
	m.indexedEntries.Set(float64(n))
}

// SetWatchedDirs sets the number of watched directories.
func (m *Metrics) SetWatchedDirs(n int) {
	if m == nil {
		return
	}
	m.watchedDirs.Set(float64(n))
}

// OutcomeCounter exposes an outcome counter for tests.
func (m *Metrics) OutcomeCounter(outcome string) prometheus.Counter {
	return m.outcomesTotal.WithLabelValues(outcome)
}

// EventCounter exposes an event counter for tests.
func (m *Metrics) EventCounter(op string) prometheus.Counter {
	return m.eventsTotal.WithLabelValues(op)
}
