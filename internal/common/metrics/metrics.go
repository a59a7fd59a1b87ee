// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	MatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_requests_total",
			Help: "Match calls by outcome",
		},
		[]string{"outcome"},
	)

	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_duration_seconds",
			Help:    "End-to-end match latency including collaborator reads",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	MatchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_candidates",
			Help:    "Facilities remaining after each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"stage"},
	)

	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_feedback_recorded_total",
			Help: "Feedback records appended",
		},
		[]string{"selection"},
	)

	FeedbackRowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_feedback_rows_skipped_total",
			Help: "Stored feedback rows that could not be decoded",
		},
		[]string{"query"},
	)

	AdaptationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_adaptation_runs_total",
			Help: "Weight adaptation cycles by result",
		},
		[]string{"result"},
	)

	ActiveProfileVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_active_profile_version",
			Help: "Version of the weight profile used by new matches",
		},
	)

	ActiveProfileWeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_active_profile_weight",
			Help: "Weight per sub-score in the active profile",
		},
		[]string{"sub_score"},
	)

	CatalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_catalog_cache_lookups_total",
			Help: "Catalog snapshot cache lookups by result",
		},
		[]string{"result"},
	)
)
