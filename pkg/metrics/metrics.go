package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 任务处理延迟（毫秒）
	JobLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_job_latency_ms",
			Help:    "Pipeline job handler latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"kind"},
	)

	// 任务处理结果计数
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_processed_total",
			Help: "Pipeline jobs handled, by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, retry, dead, skipped
	)

	// 死信任务计数
	DeadJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dead_jobs_total",
			Help: "Jobs that exhausted retries or failed permanently",
		},
		[]string{"kind", "reason"},
	)

	// Provider 调用延迟（毫秒）
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Capability provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"operation", "status"},
	)

	// 慢查询计数
	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	// Outbox 发布结果
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events handed to the broker, by outcome",
		},
		[]string{"outcome"},
	)

	// 邮件发送结果
	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replies_sent_total",
			Help: "Outbound replies, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordJob 记录一次任务处理
func RecordJob(kind, outcome string, duration time.Duration) {
	JobLatency.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
	JobsProcessed.WithLabelValues(kind, outcome).Inc()
}

// IncrementDeadJob 记录死信任务
func IncrementDeadJob(kind, reason string) {
	DeadJobs.WithLabelValues(kind, reason).Inc()
}

// RecordProviderCallLatency 记录 Provider 调用延迟
func RecordProviderCallLatency(operation, status string, duration time.Duration) {
	ProviderCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueries.WithLabelValues(sql).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// IncrementOutboxPublished 记录 outbox 发布结果
func IncrementOutboxPublished(outcome string) {
	OutboxPublished.WithLabelValues(outcome).Inc()
}

// IncrementReplySent 记录回复发送结果
func IncrementReplySent(outcome string) {
	RepliesSent.WithLabelValues(outcome).Inc()
}
