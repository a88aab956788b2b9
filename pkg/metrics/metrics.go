// Package metrics registers the Prometheus collectors shared across the
// scheduler, worker pool, and matching/rating pipelines. The admin HTTP
// server in pkg/api exposes these on /metrics via promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coursesync_queue_depth",
		Help: "Number of runnable jobs currently queued.",
	})

	JobsLockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_jobs_locked_total",
		Help: "Total jobs claimed by a worker.",
	})

	JobsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_jobs_completed_total",
		Help: "Total jobs completed successfully.",
	})

	JobsRetriedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_jobs_retried_total",
		Help: "Total jobs that were retried after a recoverable error.",
	})

	JobsExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_jobs_exhausted_total",
		Help: "Total jobs that exhausted their retry budget.",
	})

	SchedulerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursesync_scheduler_cycle_duration_seconds",
		Help:    "Duration of one adaptive-scheduler cycle.",
		Buckets: prometheus.DefBuckets,
	})

	MatchConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursesync_match_confidence",
		Help:    "Confidence score of accepted/queued name matches.",
		Buckets: []float64{0, 0.1, 0.3, 0.4, 0.5, 0.7, 0.8, 0.85, 0.9, 1.0},
	})

	RatingRecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursesync_rating_recompute_duration_seconds",
		Help:    "Duration of a full recompute_all_scores pass.",
		Buckets: prometheus.DefBuckets,
	})

	EventBufferDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_event_buffer_dropped_total",
		Help: "Total events dropped from lagging subscribers.",
	})

	CoursesIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursesync_courses_ingested_total",
		Help: "Total course rows written by a single ingestion upsert call.",
	})
)

// Registry is the collector registry exposed by the HTTP surface.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		QueueDepth,
		JobsLockedTotal,
		JobsCompletedTotal,
		JobsRetriedTotal,
		JobsExhaustedTotal,
		SchedulerCycleDuration,
		MatchConfidence,
		RatingRecomputeDuration,
		EventBufferDroppedTotal,
		CoursesIngestedTotal,
	)
}
