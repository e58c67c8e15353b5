package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeEmpty = "empty"
)

var (
	llmCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asktive_llm_completions_total",
			Help: "Total number of completion requests sent to the LLM provider.",
		},
		[]string{"provider", "outcome"},
	)
	llmCompletionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asktive_llm_completion_duration_seconds",
			Help:    "LLM completion round-trip latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)
	sqlGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asktive_sql_generations_total",
			Help: "Total number of SQL generation attempts by prompt mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asktive_query_executions_total",
			Help: "Total number of query executions by dispatch path and outcome.",
		},
		[]string{"path", "outcome"},
	)
	queryExecutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asktive_query_execution_duration_seconds",
			Help:    "Database round-trip latency by dispatch path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
	sanitizationRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asktive_sanitization_rejections_total",
			Help: "Total number of statements rejected by the sanitization policy.",
		},
	)
	schemaResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asktive_schema_resolutions_total",
			Help: "Total number of schema resolutions by winning source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		llmCompletionsTotal,
		llmCompletionDurationSeconds,
		sqlGenerationsTotal,
		queryExecutionsTotal,
		queryExecutionDurationSeconds,
		sanitizationRejectionsTotal,
		schemaResolutionsTotal,
	)
}

func ObserveCompletion(provider, outcome string, elapsed time.Duration) {
	llmCompletionsTotal.WithLabelValues(provider, outcome).Inc()
	llmCompletionDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveGeneration(mode, outcome string) {
	sqlGenerationsTotal.WithLabelValues(mode, outcome).Inc()
}

func ObserveExecution(path, outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(path, outcome).Inc()
	queryExecutionDurationSeconds.WithLabelValues(path).Observe(elapsed.Seconds())
}

func IncrementSanitizationRejections() {
	sanitizationRejectionsTotal.Inc()
}

func ObserveSchemaResolution(source, outcome string) {
	schemaResolutionsTotal.WithLabelValues(source, outcome).Inc()
}
