// Package metrics exposes benchmark progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/stats"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	IterationsTotal   *prometheus.CounterVec
	IterationFailures *prometheus.CounterVec
	IterationDuration *prometheus.HistogramVec
	MemoryBytes       *prometheus.GaugeVec
	IterationMetric   *prometheus.GaugeVec
	TargetsTotal      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{gatherer: reg}

	m.IterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharkbench_iterations_total",
			Help: "Total number of successful benchmark iterations",
		},
		[]string{"suite", "phase"},
	)

	m.IterationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharkbench_iteration_failures_total",
			Help: "Total number of failed benchmark iterations",
		},
		[]string{"suite", "phase"},
	)

	m.IterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharkbench_iteration_duration_seconds",
			Help:    "Wall time of benchmark iterations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"suite", "phase"},
	)

	m.MemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharkbench_container_memory_bytes",
			Help: "Container memory of the last iteration",
		},
		[]string{"suite", "stat"},
	)

	m.IterationMetric = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharkbench_iteration_metric",
			Help: "Named value reported by the last iteration",
		},
		[]string{"suite", "name"},
	)

	m.TargetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharkbench_targets_total",
			Help: "Benchmark targets by outcome",
		},
		[]string{"suite", "status"},
	)

	reg.MustRegister(
		m.IterationsTotal,
		m.IterationFailures,
		m.IterationDuration,
		m.MemoryBytes,
		m.IterationMetric,
		m.TargetsTotal,
	)

	return m
}

// Target outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// TrackTarget counts one benchmark target (a directory/version combination).
func (m *Metrics) TrackTarget(suite, status string) {
	m.TargetsTotal.WithLabelValues(suite, status).Inc()
}

// Observer returns a benchmark.Observer recording iterations of suite.
func (m *Metrics) Observer(suite string) benchmark.Observer {
	return &observer{m: m, suite: suite}
}

type observer struct {
	m     *Metrics
	suite string
}

func (o *observer) IterationDone(phase benchmark.Phase, elapsed time.Duration, memory stats.MemoryUsage, metrics benchmark.Metrics) {
	o.m.IterationsTotal.WithLabelValues(o.suite, string(phase)).Inc()
	o.m.IterationDuration.WithLabelValues(o.suite, string(phase)).Observe(elapsed.Seconds())
	o.m.MemoryBytes.WithLabelValues(o.suite, "median").Set(float64(memory.Median))
	o.m.MemoryBytes.WithLabelValues(o.suite, "p99").Set(float64(memory.P99))
	for _, metric := range metrics.Data {
		o.m.IterationMetric.WithLabelValues(o.suite, metric.Name).Set(float64(metric.Value))
	}
}

func (o *observer) IterationFailed(phase benchmark.Phase, _ error) {
	o.m.IterationFailures.WithLabelValues(o.suite, string(phase)).Inc()
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
