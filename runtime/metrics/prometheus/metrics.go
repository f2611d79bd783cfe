// Package prometheus provides Prometheus metrics exporters for the engine's
// lifecycle events.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remotemedia"

var (
	// sessionDuration is a histogram of total session wall time in seconds.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of total session wall time in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"}, // status: completed, failed, cancelled
	)

	// sessionsActive is a gauge of currently running sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently running sessions",
		},
	)

	// nodeProcessDuration is a histogram of per-chunk ProcessChunk latency.
	nodeProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_process_duration_seconds",
			Help:      "Histogram of node ProcessChunk duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"node_type", "status"}, // status: success, error
	)

	// nodeChunksTotal is a counter of chunks processed by node type.
	nodeChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_chunks_total",
			Help:      "Total number of chunks processed by node type",
		},
		[]string{"node_type", "status"}, // status: success, error, retried
	)

	// nodeInitDuration is a histogram of node Init call duration.
	nodeInitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_init_duration_seconds",
			Help:      "Histogram of node Init duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"node_type", "status"},
	)

	// backpressureEventsTotal counts times a node suspended on a full
	// outbound channel.
	backpressureEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_events_total",
			Help:      "Total number of times a node blocked on a full outbound channel",
		},
		[]string{"node_id"},
	)

	// stateEntriesEvictedTotal counts session state store evictions.
	stateEntriesEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_entries_evicted_total",
			Help:      "Total number of session state entries evicted",
		},
		[]string{"reason"}, // reason: ttl, capacity
	)

	// plansCompiledTotal counts Engine plan-cache misses (fresh compiles).
	plansCompiledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_compiled_total",
			Help:      "Total number of manifests compiled into a new Plan",
		},
	)

	// planCompileDuration is a histogram of Plan compile latency.
	planCompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_compile_duration_seconds",
			Help:      "Histogram of manifest-to-Plan compile duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionDuration,
		sessionsActive,
		nodeProcessDuration,
		nodeChunksTotal,
		nodeInitDuration,
		backpressureEventsTotal,
		stateEntriesEvictedTotal,
		plansCompiledTotal,
		planCompileDuration,
	}
)

// RecordSessionStart records a session starting.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session ending with the given terminal status.
func RecordSessionEnd(status string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordNodeInit records a node Init call.
func RecordNodeInit(nodeType, status string, durationSeconds float64) {
	nodeInitDuration.WithLabelValues(nodeType, status).Observe(durationSeconds)
}

// RecordNodeProcess records a node ProcessChunk call.
func RecordNodeProcess(nodeType, status string, durationSeconds float64) {
	nodeProcessDuration.WithLabelValues(nodeType, status).Observe(durationSeconds)
	nodeChunksTotal.WithLabelValues(nodeType, status).Inc()
}

// RecordNodeProcessRetried records a transient ProcessChunk failure retry.
func RecordNodeProcessRetried(nodeType string) {
	nodeChunksTotal.WithLabelValues(nodeType, "retried").Inc()
}

// RecordBackpressure records a node blocking on a full outbound channel.
func RecordBackpressure(nodeID string) {
	backpressureEventsTotal.WithLabelValues(nodeID).Inc()
}

// RecordStateEntryEvicted records a session state store eviction.
func RecordStateEntryEvicted(reason string) {
	stateEntriesEvictedTotal.WithLabelValues(reason).Inc()
}

// RecordPlanCompiled records a manifest compiling into a new Plan.
func RecordPlanCompiled(durationSeconds float64) {
	plansCompiledTotal.Inc()
	planCompileDuration.Observe(durationSeconds)
}
