// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for scenario runs. Both are optional: a nil *Metrics records
// nothing and a Tracer without an endpoint produces no-op spans, so
// library callers pay nothing unless the CLI wires them up.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for trial execution, LLM
// requests, evaluator timing, and retries.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordLLMRequest("openai", "gpt-4o", "success", 1.2, 150, 80)
type Metrics struct {
	// TrialCounter counts completed trials.
	// Labels: status (passed|failed|hard_fail|infra_error)
	TrialCounter *prometheus.CounterVec

	// TrialDuration measures end-to-end trial latency in seconds.
	TrialDuration prometheus.Histogram

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (openai|anthropic), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// EvaluatorDuration measures assertion evaluation latency in seconds.
	// Labels: type (jmespath|tool_sequence|cost_limit|latency_limit|judge)
	EvaluatorDuration *prometheus.HistogramVec

	// RetryCounter counts retried provider calls.
	// Labels: reason (rate_limit|timeout|connection|server_error)
	RetryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all instruments with the given
// registerer. A nil registerer falls back to the Prometheus default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TrialCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvo_trials_total",
				Help: "Total number of trials by final status",
			},
			[]string{"status"},
		),

		TrialDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salvo_trial_duration_seconds",
				Help:    "End-to-end duration of a single trial in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salvo_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvo_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvo_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		EvaluatorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salvo_evaluator_duration_seconds",
				Help:    "Duration of assertion evaluations in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"type"},
		),

		RetryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvo_retries_total",
				Help: "Total number of retried provider calls by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordTrial records one finished trial. Safe on a nil receiver.
func (m *Metrics) RecordTrial(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TrialCounter.WithLabelValues(status).Inc()
	m.TrialDuration.Observe(durationSeconds)
}

// RecordLLMRequest records one LLM API round trip. Safe on a nil receiver.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordEvaluator records one assertion evaluation. Safe on a nil receiver.
func (m *Metrics) RecordEvaluator(assertionType string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EvaluatorDuration.WithLabelValues(assertionType).Observe(durationSeconds)
}

// RecordRetry records one retried provider call. Safe on a nil receiver.
func (m *Metrics) RecordRetry(reason string) {
	if m == nil {
		return
	}
	m.RetryCounter.WithLabelValues(reason).Inc()
}
