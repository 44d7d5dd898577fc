package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline runs by action and final status
	PipelineRunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_run_count",
			Help: "Total number of pipeline runs",
		},
		[]string{"action", "status"}, // status: accepted, rejected, completed, failed
	)

	// Phase duration (seconds)
	PipelinePhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"phase", "status"},
	)

	// Rule store mutations
	RuleOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_operation_count",
			Help: "Total number of rule store operations",
		},
		[]string{"operation", "result"}, // operation: add, remove; result: ok, conflict, not_found, invalid, error
	)

	// Classification outcomes
	EmailClassifiedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_classified_count",
			Help: "Total number of emails run through the classifier",
		},
		[]string{"source"}, // source: Rule, AI, none
	)

	// Agent call latency (milliseconds)
	AgentCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_call_latency_ms",
			Help:    "Agent service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"endpoint", "status"},
	)

	// Mail provider call latency (milliseconds)
	MailCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_call_latency_ms",
			Help:    "Mail provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"operation", "status"},
	)

	// Database query duration (seconds)
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// HTTP request duration (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// MQ consume latency (milliseconds)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)
)

func RecordPipelineRun(action, status string) {
	PipelineRunCount.WithLabelValues(action, status).Inc()
}

func RecordPhaseDuration(phase, status string, duration time.Duration) {
	PipelinePhaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

func RecordRuleOperation(operation, result string) {
	RuleOperationCount.WithLabelValues(operation, result).Inc()
}

func IncrementEmailClassified(source string) {
	EmailClassifiedCount.WithLabelValues(source).Inc()
}

// RecordAgentCallLatency records one call to the AI agent.
func RecordAgentCallLatency(endpoint, status string, duration time.Duration) {
	AgentCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

func RecordMailCallLatency(operation, status string, duration time.Duration) {
	MailCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
