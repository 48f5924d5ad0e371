// Package metrics exposes tracker activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricewatch"

// Store outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	lastCycle      prometheus.Gauge
	lastFailed     prometheus.Gauge
	stores         *prometheus.CounterVec
	attempts       prometheus.Histogram
	storeDuration  prometheus.Histogram
	alerts         *prometheus.CounterVec
	notifyFailures prometheus.Counter
}

// New registers the tracker collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Tracking cycles completed.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of a tracking cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished.",
		}),
		lastFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_cycle_failed_stores",
			Help: "Stores that failed in the last cycle.",
		}),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stores_total",
			Help: "Stores processed by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "extraction_attempts",
			Help:    "Extraction attempts used per store.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		storeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "store_duration_seconds",
			Help:    "Time spent on one store including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Alert decisions that fired, by reason.",
		}, []string{"reason"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notify_failures_total",
			Help: "Alerts the notifier failed to deliver.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleDuration, m.lastCycle, m.lastFailed,
		m.stores, m.attempts, m.storeDuration, m.alerts, m.notifyFailures,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StoreDone records one processed store.
func (m *Metrics) StoreDone(outcome string, attempts int, elapsed time.Duration) {
	m.stores.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
		m.storeDuration.Observe(elapsed.Seconds())
	}
}

// AlertFired records a positive alert decision.
func (m *Metrics) AlertFired(reason string) {
	m.alerts.WithLabelValues(reason).Inc()
}

// NotifyFailed records an undelivered alert.
func (m *Metrics) NotifyFailed() {
	m.notifyFailures.Inc()
}

// CycleDone records a finished cycle.
func (m *Metrics) CycleDone(failed int, elapsed time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
	m.lastCycle.SetToCurrentTime()
	m.lastFailed.Set(float64(failed))
}
