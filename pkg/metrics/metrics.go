// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// LLMRequestDuration tracks LLM proxy call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// PromptTokensEstimated tracks estimated prompt sizes.
	PromptTokensEstimated = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_tokens_estimated",
			Help:    "Estimated prompt size in tokens",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
		[]string{"template"},
	)

	// PromptLimitWarnings counts prompts above the warning threshold.
	PromptLimitWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_limit_warnings_total",
			Help: "Prompts near or over the model token limit",
		},
		[]string{"model", "valid"},
	)

	// TurnsAppended tracks messages folded into node turns.
	TurnsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_messages_appended_total",
			Help: "Messages appended to conversation node turns",
		},
		[]string{"role"},
	)

	// AppendRetries tracks retried message appends.
	AppendRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_append_retries_total",
			Help: "Retries of message appends",
		},
		[]string{"reason"},
	)

	// ContextAssemblies tracks context assemblies by outcome.
	ContextAssemblies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_assemblies_total",
			Help: "Context bundles assembled for LLM calls",
		},
		[]string{"empty"},
	)

	// VersionsCreated tracks created canvas versions.
	VersionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_versions_created_total",
			Help: "Canvas versions created",
		},
		[]string{"kind"},
	)

	// WorkspacesActive tracks live in-memory workspaces.
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspaces_active",
			Help: "Number of in-memory canvas workspaces",
		},
	)

	// EventsPublished tracks canvas events published to the stream.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_events_published_total",
			Help: "Canvas events published",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordLLMRequest records metrics for an LLM completion.
func RecordLLMRequest(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, model, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}
