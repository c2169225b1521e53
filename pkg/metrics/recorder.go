// Package metrics provides Prometheus recording and querying for pipeline
// and LLM telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"saga/pkg/coordinator"
	"saga/pkg/session"
)

// Recorder records decision, guard, action, and LLM series. It satisfies
// the coordinator's Observer interface and the LLM middleware's Recorder
// interface, so one instance covers both sides of the pipeline.
type Recorder struct {
	decisionsTotal      *prometheus.CounterVec
	guardOverridesTotal *prometheus.CounterVec
	actionDuration      *prometheus.HistogramVec
	sessionsFinished    *prometheus.CounterVec
	sessionIterations   prometheus.Histogram

	llmRequestsTotal   *prometheus.CounterVec
	llmTokensTotal     *prometheus.CounterVec
	llmCostsTotal      *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
}

// NewRecorder registers the metric families on the default registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith registers the metric families on the given registry.
// Tests pass a fresh registry so parallel test binaries never collide on
// duplicate registration.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_decisions_total",
				Help: "Coordinator decisions by source (model, fallback, guard) and action",
			},
			[]string{"source", "action"},
		),
		guardOverridesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_guard_overrides_total",
				Help: "Loop guard rewrites by proposed and executed action",
			},
			[]string{"proposed", "executed"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saga_action_duration_seconds",
				Help:    "Executor run time by action and outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action", "status"},
		),
		sessionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_sessions_finished_total",
				Help: "Coordinator runs by final session status",
			},
			[]string{"status"},
		),
		sessionIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "saga_session_iterations",
				Help:    "Coordinator iterations consumed per finished session",
				Buckets: []float64{5, 10, 15, 20, 30, 40, 50},
			},
		),
		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, session, and status",
			},
			[]string{"model", "session_id", "status", "error_type"},
		),
		llmTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "session_id", "type"},
		),
		llmCostsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "session_id"},
		),
		llmRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// DecisionMade counts one coordinator decision.
func (r *Recorder) DecisionMade(source coordinator.Source, action session.ActionName, _ float64) {
	r.decisionsTotal.WithLabelValues(string(source), string(action)).Inc()
}

// GuardOverride counts one loop-guard rewrite.
func (r *Recorder) GuardOverride(proposed, executed session.ActionName) {
	r.guardOverridesTotal.WithLabelValues(string(proposed), string(executed)).Inc()
}

// ActionExecuted records one executor run with its outcome.
func (r *Recorder) ActionExecuted(action session.ActionName, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.actionDuration.WithLabelValues(string(action), status).Observe(duration.Seconds())
}

// SessionFinished counts one finished coordinator run.
func (r *Recorder) SessionFinished(status string, iterations int) {
	r.sessionsFinished.WithLabelValues(status).Inc()
	r.sessionIterations.Observe(float64(iterations))
}

// ObserveLLMRequest records one completed model call. Tokens and cost are
// recorded only for successful calls; failures still count toward the
// request total with their error type.
func (r *Recorder) ObserveLLMRequest(
	model, sessionID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	r.llmRequestsTotal.WithLabelValues(model, sessionID, status, errorType).Inc()

	if success {
		r.llmTokensTotal.WithLabelValues(model, sessionID, "prompt").Add(float64(promptTokens))
		r.llmTokensTotal.WithLabelValues(model, sessionID, "completion").Add(float64(completionTokens))
		r.llmCostsTotal.WithLabelValues(model, sessionID).Add(cost)
	}

	r.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}
