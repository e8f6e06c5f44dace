// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_completed_total",
			Help: "Total number of side-effect tasks delivered",
		},
		[]string{"task_type"},
	)

	DispatchTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_failed_total",
			Help: "Total number of side-effect tasks that exhausted their attempts",
		},
		[]string{"task_type", "error_code"},
	)

	DispatchTaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_task_retries_total",
			Help: "Total number of retried side-effect attempts",
		},
		[]string{"task_type"},
	)

	DispatchTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_task_duration_seconds",
			Help: "Duration of a single side-effect attempt in seconds",
		},
		[]string{"task_type"},
	)

	DispatchTasksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_tasks_active",
			Help: "Number of side-effect tasks currently being processed",
		},
		[]string{"task_type"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Side-effect tasks waiting in the queue",
		},
	)

	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permohonan_transitions_total",
			Help: "Application status transitions by outcome",
		},
		[]string{"transition", "outcome"},
	)

	UploadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permohonan_uploads_rejected_total",
			Help: "Document uploads rejected before storage",
		},
		[]string{"reason"},
	)

	OrphanedBlobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permohonan_orphaned_blobs_total",
			Help: "Blob deletions that failed and were queued for cleanup, and those later reclaimed",
		},
		[]string{"event"},
	)
)
