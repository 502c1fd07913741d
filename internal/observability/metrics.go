// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch and push outcomes used as the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Source metrics
	FetchesTotal *prometheus.CounterVec
	FetchLatency prometheus.Histogram
	LoginsTotal  *prometheus.CounterVec

	// Transform metrics
	EntriesTransformed *prometheus.CounterVec
	TransformErrors    prometheus.Counter

	// Filter metrics
	EntriesForwarded  prometheus.Counter
	EntriesSuppressed prometheus.Counter
	LastSgvDate       prometheus.Gauge

	// Target metrics
	PushesTotal *prometheus.CounterVec
	PushLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulFetch prometheus.Gauge
	LastSuccessfulPush  *prometheus.GaugeVec
	CyclesTotal         prometheus.Counter
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "carelink_bridge"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carelink",
			Name:      "fetches_total",
			Help:      "Total number of snapshot fetches by status",
		}, []string{"status"}),
		FetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "carelink",
			Name:      "fetch_latency_seconds",
			Help:      "Snapshot fetch latency in seconds, retries included",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		LoginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carelink",
			Name:      "logins_total",
			Help:      "Total number of CareLink logins by status",
		}, []string{"status"}),

		EntriesTransformed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "entries_total",
			Help:      "Total number of entries produced by type",
		}, []string{"type"}),
		TransformErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "errors_total",
			Help:      "Total number of snapshots rejected by the transformer",
		}),

		EntriesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "entries_forwarded_total",
			Help:      "Total number of entries passed to targets",
		}),
		EntriesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "entries_suppressed_total",
			Help:      "Total number of readings dropped as already sent",
		}),
		LastSgvDate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "last_sgv_date_ms",
			Help:      "High-water-mark of reading timestamps in Unix ms",
		}),

		PushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "pushes_total",
			Help:      "Total number of pushes by target and status",
		}, []string{"target", "status"}),
		PushLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "push_latency_seconds",
			Help:      "Push latency in seconds by target",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),

		LastSuccessfulFetch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last successful fetch",
		}),
		LastSuccessfulPush: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_push_timestamp",
			Help:      "Unix timestamp of last successful push by target",
		}, []string{"target"}),
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "cycles_total",
			Help:      "Total number of completed bridge cycles",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving only the given registry.
func HandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordFetch records one snapshot fetch attempt.
func (m *Metrics) RecordFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchLatency.Observe(d.Seconds())
	if err != nil {
		m.FetchesTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.FetchesTotal.WithLabelValues(StatusOK).Inc()
	m.LastSuccessfulFetch.SetToCurrentTime()
}

// RecordLogin records one CareLink login attempt.
func (m *Metrics) RecordLogin(err error) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(statusOf(err)).Inc()
}

// RecordTransform records the entries produced from one snapshot.
func (m *Metrics) RecordTransform(readings int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TransformErrors.Inc()
		return
	}
	m.EntriesTransformed.WithLabelValues("pump_status").Inc()
	m.EntriesTransformed.WithLabelValues("sgv").Add(float64(readings))
}

// RecordFilter records the outcome of one filter pass.
func (m *Metrics) RecordFilter(in, out int, lastSgvDate int64) {
	if m == nil {
		return
	}
	m.EntriesForwarded.Add(float64(out))
	m.EntriesSuppressed.Add(float64(in - out))
	m.LastSgvDate.Set(float64(lastSgvDate))
}

// RecordPush records one push to a target.
func (m *Metrics) RecordPush(target string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PushLatency.WithLabelValues(target).Observe(d.Seconds())
	m.PushesTotal.WithLabelValues(target, statusOf(err)).Inc()
	if err == nil {
		m.LastSuccessfulPush.WithLabelValues(target).SetToCurrentTime()
	}
}

// RecordCycle counts a finished cycle.
func (m *Metrics) RecordCycle() {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
