package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit engine.
type Metrics struct {
	// Appended records by action type
	RecordsAppended *prometheus.CounterVec

	// Appends that failed and were swallowed (best-effort policy)
	AppendFailures prometheus.Counter

	// Appends skipped because the audit surface was not provisioned yet
	AppendsSkippedNotReady prometheus.Counter

	// Append latency including snapshot serialization
	AppendLatency prometheus.Histogram

	// Rollback outcomes: restored, not_rollbackable, entity_gone, failed
	RollbackOutcome *prometheus.CounterVec

	// Pending before-snapshots evicted without being consumed
	PendingEvictions prometheus.Counter
}

// New creates a Metrics instance with all audit engine metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_audit_records_total",
			Help: "Total audit records appended by action type",
		}, []string{"action"}),

		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_audit_append_failures_total",
			Help: "Total audit appends that failed and were swallowed",
		}),

		AppendsSkippedNotReady: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_audit_appends_skipped_total",
			Help: "Total audit appends skipped because the store was not provisioned",
		}),

		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chronicle_audit_append_duration_seconds",
			Help:    "Duration of audit record appends",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		RollbackOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_rollback_outcomes_total",
			Help: "Total rollback attempts by outcome",
		}, []string{"outcome"}),

		PendingEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_pending_evictions_total",
			Help: "Total staged before-snapshots evicted without being consumed",
		}),
	}
}

// IncrementAppended records a successful append.
func (m *Metrics) IncrementAppended(action string) {
	if m != nil {
		m.RecordsAppended.WithLabelValues(action).Inc()
	}
}

// IncrementAppendFailure records a swallowed append failure.
func (m *Metrics) IncrementAppendFailure() {
	if m != nil {
		m.AppendFailures.Inc()
	}
}

// IncrementSkippedNotReady records an append skipped by the readiness gate.
func (m *Metrics) IncrementSkippedNotReady() {
	if m != nil {
		m.AppendsSkippedNotReady.Inc()
	}
}

// ObserveAppendLatency records the duration of an append.
func (m *Metrics) ObserveAppendLatency(d time.Duration) {
	if m != nil {
		m.AppendLatency.Observe(d.Seconds())
	}
}

// IncrementRollback records a rollback attempt outcome.
func (m *Metrics) IncrementRollback(outcome string) {
	if m != nil {
		m.RollbackOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementPendingEviction records an orphaned pending entry being dropped.
func (m *Metrics) IncrementPendingEviction() {
	if m != nil {
		m.PendingEvictions.Inc()
	}
}
