// Package metrics provides Prometheus instrumentation for the pipeline
// runtime: pass latency, node latency, queue depth, skip counts, and
// restart counts during hot reconfiguration.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for pipeline
// evaluation and importer activity, all namespaced "opensight_".
type PrometheusMetrics struct {
	queueDepth    prometheus.Gauge
	inflightNodes prometheus.Gauge

	passLatency *prometheus.HistogramVec
	nodeLatency *prometheus.HistogramVec

	skipsTotal    *prometheus.CounterVec
	restartsTotal *prometheus.CounterVec
	importsTotal  *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers all metrics with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "opensight",
		Name:      "queue_depth",
		Help:      "Number of tasks waiting for the FIFO lock",
	})

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "opensight",
		Name:      "inflight_nodes",
		Help:      "1 while a node is executing, 0 otherwise (pipeline evaluation is sequential)",
	})

	pm.passLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opensight",
		Name:      "pass_latency_ms",
		Help:      "Wall-clock duration of one pipeline evaluation pass",
		Buckets:   []float64{1, 2, 5, 10, 16, 33, 50, 100, 250, 500},
	}, []string{"run_id"})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opensight",
		Name:      "node_latency_ms",
		Help:      "Execution duration of a single node within a pass",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
	}, []string{"run_id", "node_id", "status"})

	pm.skipsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opensight",
		Name:      "skips_total",
		Help:      "Cumulative count of nodes skipped due to cancellation propagation",
	}, []string{"run_id", "node_id"})

	pm.restartsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opensight",
		Name:      "restarts_total",
		Help:      "Cumulative count of node reconstructions triggered by a settings import",
	}, []string{"run_id", "node_id"})

	pm.importsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opensight",
		Name:      "imports_total",
		Help:      "Cumulative count of nodetree import attempts",
	}, []string{"result"}) // result: accepted, rejected

	return pm
}

// RecordPassLatency records the duration of one pipeline evaluation pass.
func (pm *PrometheusMetrics) RecordPassLatency(runID string, d time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.passLatency.WithLabelValues(runID).Observe(float64(d.Microseconds()) / 1000)
}

// RecordNodeLatency records the duration of a single node execution.
func (pm *PrometheusMetrics) RecordNodeLatency(runID, nodeID string, d time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.nodeLatency.WithLabelValues(runID, nodeID, status).Observe(float64(d.Microseconds()) / 1000)
}

// IncrementSkips records that a node was skipped due to cancellation.
func (pm *PrometheusMetrics) IncrementSkips(runID, nodeID string) {
	if !pm.isEnabled() {
		return
	}
	pm.skipsTotal.WithLabelValues(runID, nodeID).Inc()
}

// IncrementRestarts records that a node was disposed and reconstructed
// during a settings import.
func (pm *PrometheusMetrics) IncrementRestarts(runID, nodeID string) {
	if !pm.isEnabled() {
		return
	}
	pm.restartsTotal.WithLabelValues(runID, nodeID).Inc()
}

// IncrementImports records the outcome of an import transaction.
func (pm *PrometheusMetrics) IncrementImports(result string) {
	if !pm.isEnabled() {
		return
	}
	pm.importsTotal.WithLabelValues(result).Inc()
}

// UpdateQueueDepth sets the current FIFO lock queue depth.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets whether a node is currently executing.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable stops metric recording, useful in tests that don't want to pay
// for collector registration.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
