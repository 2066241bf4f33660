// SPDX-License-Identifier: MIT

// Package metrics registers the prometheus instruments for the
// transcription lifecycle. Names are stable; dashboards depend on them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_session_transitions_total",
		Help: "Session state transitions by from-state, to-state and event",
	}, []string{"from", "to", "event"})

	transitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coachscribe_session_transition_conflicts_total",
		Help: "Lost compare-and-set races on session status",
	})

	quotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_quota_decisions_total",
		Help: "Quota admission decisions by action and outcome",
	}, []string{"action", "outcome"}) // outcome=admit|deny|error

	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_provider_calls_total",
		Help: "STT provider calls by provider, operation and outcome",
	}, []string{"provider", "op", "outcome"})

	providerCallSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coachscribe_provider_call_seconds",
		Help:    "STT provider call latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider", "op"})

	usageLogsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_usage_logs_total",
		Help: "Usage ledger appends by kind",
	}, []string{"kind"})

	billedMinutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coachscribe_billed_minutes_total",
		Help: "Total billable minutes appended to the ledger",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coachscribe_queue_depth",
		Help: "Transcription jobs waiting in the work queue",
	})

	workerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_worker_runs_total",
		Help: "Worker runs by terminal outcome",
	}, []string{"outcome"}) // outcome=completed|failed|cancelled

	reapedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coachscribe_reaped_sessions_total",
		Help: "PROCESSING sessions force-failed by the reaper",
	})

	exportsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_exports_total",
		Help: "Transcript exports by format",
	}, []string{"format"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coachscribe_circuit_breaker_state",
		Help: "Circuit breaker state per component (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachscribe_circuit_breaker_trips_total",
		Help: "Circuit breaker open transitions by component and cause",
	}, []string{"name", "cause"})
)

func IncTransition(from, to, event string) {
	stateTransitions.WithLabelValues(from, to, event).Inc()
}

func IncTransitionConflict() {
	transitionConflicts.Inc()
}

func IncQuotaDecision(action, outcome string) {
	quotaDecisions.WithLabelValues(action, outcome).Inc()
}

func IncProviderCall(provider, op, outcome string) {
	providerCalls.WithLabelValues(provider, op, outcome).Inc()
}

func ObserveProviderCall(provider, op string, seconds float64) {
	providerCallSeconds.WithLabelValues(provider, op).Observe(seconds)
}

func IncUsageLog(kind string, billableMinutes int) {
	usageLogsAppended.WithLabelValues(kind).Inc()
	if billableMinutes > 0 {
		billedMinutes.Add(float64(billableMinutes))
	}
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncWorkerRun(outcome string) {
	workerRuns.WithLabelValues(outcome).Inc()
}

func IncReaped() {
	reapedSessions.Inc()
}

func IncExport(format string) {
	exportsRendered.WithLabelValues(format).Inc()
}

func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

func IncBreakerTrip(name, cause string) {
	breakerTrips.WithLabelValues(name, cause).Inc()
}
