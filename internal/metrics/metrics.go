// Package metrics exposes Prometheus collectors for tracing sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeCompileError = "compile_error"
	OutcomeRuntimeError = "runtime_error"
	OutcomeStepBudget   = "step_budget"
	OutcomeTimeout      = "timeout"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steptrace_sessions_total",
		Help: "Tracing sessions by outcome",
	}, []string{"outcome"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steptrace_session_duration_seconds",
		Help:    "Wall time of a tracing session",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	stepsPerSession = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steptrace_session_steps",
		Help:    "Steps recorded by the narration run",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steptrace_errors_total",
		Help: "Error records by kind",
	}, []string{"kind"})

	testCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steptrace_test_cases_total",
		Help: "Attempted test cases by result",
	}, []string{"result"})
)

// ObserveSession records the end of one session.
func ObserveSession(outcome string, steps int, d time.Duration) {
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(d.Seconds())
	stepsPerSession.Observe(float64(steps))
}

// CountError records one error record of the given kind.
func CountError(kind string) { errorsTotal.WithLabelValues(kind).Inc() }

// CountTestCase records one attempted test case.
func CountTestCase(passed bool) {
	if passed {
		testCasesTotal.WithLabelValues("passed").Inc()
		return
	}
	testCasesTotal.WithLabelValues("failed").Inc()
}
