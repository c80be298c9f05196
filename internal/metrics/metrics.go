// Package metrics exposes Prometheus collectors for distributor calls,
// order placement, inventory batches and tracking sweeps.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atd-sync/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "atd_sync"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	soapCalls       *prometheus.CounterVec
	soapDuration    *prometheus.HistogramVec
	placements      *prometheus.CounterVec
	batches         *prometheus.CounterVec
	outOfStock      *prometheus.CounterVec
	sweeps          prometheus.Counter
	sweepChanges    *prometheus.CounterVec
	sweepAPIErrors  prometheus.Counter
	lastSweepUnixTs prometheus.Gauge

	sweepPublishErrors prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	// Create a new registry to avoid conflicts with default metrics
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.soapCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "soap",
			Name:      "calls_total",
			Help:      "Distributor SOAP calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	m.soapDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "soap",
			Name:      "call_duration_seconds",
			Help:      "Duration of distributor SOAP calls in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
	m.placements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orders",
			Name:      "placements_total",
			Help:      "Drop-ship order placement attempts by outcome.",
		},
		[]string{"outcome"},
	)
	m.batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "inventory",
			Name:      "batches_total",
			Help:      "Inventory scrub pages and sync batches by type and outcome.",
		},
		[]string{"job", "type", "outcome"},
	)
	m.outOfStock = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "inventory",
			Name:      "out_of_stock_total",
			Help:      "Products marked out of stock because the distributor no longer lists them.",
		},
		[]string{"job", "type"},
	)
	m.sweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracking",
			Name:      "sweeps_total",
			Help:      "Completed tracking sweeps.",
		},
	)
	m.sweepChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracking",
			Name:      "changes_total",
			Help:      "Changes made by tracking sweeps.",
		},
		[]string{"change"},
	)
	m.sweepAPIErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracking",
			Name:      "api_errors_total",
			Help:      "Order detail lookups that failed during tracking sweeps.",
		},
	)
	m.sweepPublishErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracking",
			Name:      "publish_errors_total",
			Help:      "Storefront calls that failed while mirroring sweep results.",
		},
	)
	m.lastSweepUnixTs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "tracking",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last completed tracking sweep.",
		},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.soapCalls,
		m.soapDuration,
		m.placements,
		m.batches,
		m.outOfStock,
		m.sweeps,
		m.sweepChanges,
		m.sweepAPIErrors,
		m.sweepPublishErrors,
		m.lastSweepUnixTs,
	)
	return m
}

// ObserveCall records one SOAP call.
func (m *Metrics) ObserveCall(operation, outcome string, elapsed time.Duration) {
	m.soapCalls.WithLabelValues(operation, outcome).Inc()
	m.soapDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObservePlacement records one order placement attempt.
func (m *Metrics) ObservePlacement(outcome string) {
	m.placements.WithLabelValues(outcome).Inc()
}

// ObserveBatch records one scrub page or sync batch.
func (m *Metrics) ObserveBatch(job string, kind model.ProductKind, outcome string, outOfStock int) {
	m.batches.WithLabelValues(job, string(kind), outcome).Inc()
	if outOfStock > 0 {
		m.outOfStock.WithLabelValues(job, string(kind)).Add(float64(outOfStock))
	}
}

// ObserveSweep records a finished tracking sweep.
func (m *Metrics) ObserveSweep(s model.SweepSummary) {
	m.sweeps.Inc()
	m.sweepChanges.WithLabelValues("checked").Add(float64(s.Checked))
	m.sweepChanges.WithLabelValues("tracking_updated").Add(float64(s.TrackingUpdated))
	m.sweepChanges.WithLabelValues("tracking_registered").Add(float64(s.TrackingRegistered))
	m.sweepChanges.WithLabelValues("orders_completed").Add(float64(s.OrdersCompleted))
	m.sweepChanges.WithLabelValues("tracking_published").Add(float64(s.TrackingPublished))
	m.sweepChanges.WithLabelValues("completions_published").Add(float64(s.CompletionsPublished))
	m.sweepAPIErrors.Add(float64(s.APIErrorCount))
	m.sweepPublishErrors.Add(float64(s.PublishErrorCount))
	m.lastSweepUnixTs.SetToCurrentTime()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
