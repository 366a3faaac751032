// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the insight pipeline.
var (
	// Ingest.
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total usage events processed by outcome",
		},
		[]string{"outcome"},
	)

	IngestRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rejections_total",
			Help: "Total usage events dropped by validation reason",
		},
		[]string{"reason"},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Current number of events waiting in the ingest queue",
		},
	)

	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_stream_messages_total",
			Help: "Total messages read from the event stream by result",
		},
		[]string{"result"},
	)

	// Cache.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total cache reads by key kind and result (hit, miss, error)",
		},
		[]string{"kind", "result"},
	)

	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total cache operations that failed and were degraded",
		},
		[]string{"op"},
	)

	// Aggregation.
	AggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_runs_total",
			Help: "Total daily aggregations by status",
		},
		[]string{"status", "source"},
	)

	AggregationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Time taken to aggregate one user's day",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	// Badge gamification metrics.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge_code"},
	)

	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_badge_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"badge_code"},
	)

	BadgeEvaluationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_evaluation_runs_total",
			Help: "Total badge evaluations by status",
		},
		[]string{"status"},
	)

	// Reports.
	ReportsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total report generation attempts by type, style and status",
		},
		[]string{"type", "style", "status"},
	)

	ReportGenerationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_generation_duration_seconds",
			Help:    "Time spent waiting for the text generator",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		},
		[]string{"type"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerUsersProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_users_processed_total",
			Help: "Total users processed by the nightly batch by status",
		},
		[]string{"status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
		[]string{"job"},
	)
)

// RecordIngestEvent records a processed event (accepted, rejected, failed).
func RecordIngestEvent(outcome string) {
	IngestEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestRejection records a dropped event.
func RecordIngestRejection(reason string) {
	IngestRejectionsTotal.WithLabelValues(reason).Inc()
}

// SetIngestQueueDepth sets the current ingest queue depth.
func SetIngestQueueDepth(depth int) {
	IngestQueueDepth.Set(float64(depth))
}

// RecordStreamMessage records a message read from the event stream.
func RecordStreamMessage(result string) {
	StreamMessagesTotal.WithLabelValues(result).Inc()
}

// RecordCacheRequest records a cache read.
func RecordCacheRequest(kind, result string) {
	CacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

// RecordCacheError records a degraded cache operation.
func RecordCacheError(op string) {
	CacheErrorsTotal.WithLabelValues(op).Inc()
}

// RecordAggregationRun records a daily aggregation. source is where the
// ledger was read from (cache or store).
func RecordAggregationRun(status, source string) {
	AggregationRunsTotal.WithLabelValues(status, source).Inc()
}

// ObserveAggregationDuration observes the duration of one aggregation.
func ObserveAggregationDuration(seconds float64) {
	AggregationDurationSeconds.Observe(seconds)
}

// RecordBadgeAwarded records a badge award event.
func RecordBadgeAwarded(badgeCode string) {
	BadgesAwardedTotal.WithLabelValues(badgeCode).Inc()
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeCode string, count int) {
	ActiveBadgeHolders.WithLabelValues(badgeCode).Set(float64(count))
}

// RecordBadgeEvaluationRun records a badge evaluation.
func RecordBadgeEvaluationRun(status string) {
	BadgeEvaluationRunsTotal.WithLabelValues(status).Inc()
}

// RecordReportGenerated records a report generation attempt.
func RecordReportGenerated(reportType, style, status string) {
	ReportsGeneratedTotal.WithLabelValues(reportType, style, status).Inc()
}

// ObserveReportGenerationDuration observes the text generator latency.
func ObserveReportGenerationDuration(reportType string, seconds float64) {
	ReportGenerationDurationSeconds.WithLabelValues(reportType).Observe(seconds)
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// RecordSchedulerUserProcessed records one user handled by the nightly batch.
func RecordSchedulerUserProcessed(status string) {
	SchedulerUsersProcessedTotal.WithLabelValues(status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
