// Package observability provides Prometheus metrics instrumentation and the
// canonical Logger interface used across the DTM harness.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// TRACE REPLAY METRICS
// =============================================================================

var (
	actionsReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtm_actions_released_total",
			Help: "Total number of actions released by the DTM server",
		},
		[]string{"action_type"}, // input, output, internal, setup, check
	)

	mismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtm_mismatch_total",
			Help: "Total number of reference-trace mismatches detected",
		},
		[]string{"action_type"},
	)

	traceExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtm_trace_exhausted_total",
			Help: "Total number of test runs that consumed the full reference trace",
		},
	)
)

// =============================================================================
// REORDER BUFFER METRICS
// =============================================================================

var (
	reorderWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dtm_reorder_wait_seconds",
			Help:    "Time a wait_action call spent blocked before rendezvous or timeout",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	reorderTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtm_reorder_timeouts_total",
			Help: "Total number of wait_action calls that timed out",
		},
	)
)

// =============================================================================
// DRIVER / TRANSPORT METRICS
// =============================================================================

var (
	driverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtm_driver_requests_total",
			Help: "Total ActionReq messages sent by node drivers",
		},
		[]string{"begin_end"}, // begin, end
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordActionReleased records that the server released an action of the given type.
func RecordActionReleased(actionType string) {
	actionsReleasedTotal.WithLabelValues(actionType).Inc()
}

// RecordMismatch records a reference-trace mismatch for the given action type.
func RecordMismatch(actionType string) {
	mismatchTotal.WithLabelValues(actionType).Inc()
}

// RecordTraceExhausted records that a run consumed the entire reference trace.
func RecordTraceExhausted() {
	traceExhaustedTotal.Inc()
}

// RecordReorderWait records how long a wait_action call blocked and whether it timed out.
func RecordReorderWait(d time.Duration, timedOut bool) {
	reorderWaitSeconds.Observe(d.Seconds())
	if timedOut {
		reorderTimeoutsTotal.Inc()
	}
}

// RecordDriverRequest records an ActionReq sent by a node driver.
func RecordDriverRequest(beginEnd string) {
	driverRequestsTotal.WithLabelValues(beginEnd).Inc()
}
