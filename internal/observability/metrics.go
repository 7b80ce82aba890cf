package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper pipeline service.
// Metrics are organized by subsystem: runs, scheduler, engine, stages,
// searches, providers, and publishing. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// RunsStarted counts run executions started, labeled by trigger.
	RunsStarted *prometheus.CounterVec

	// RunsCompleted counts runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunsCancelled counts runs cancelled by user or shutdown.
	RunsCancelled prometheus.Counter

	// RunsRejected counts submissions rejected because the engine was saturated.
	RunsRejected prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// EngineQueueDepth tracks the current number of queued run requests.
	EngineQueueDepth prometheus.Gauge

	// SchedulerMissedTicks counts due times skipped because the previous
	// run of the task was still in flight.
	SchedulerMissedTicks *prometheus.CounterVec

	// StageAttempts counts stage attempts, labeled by stage.
	StageAttempts *prometheus.CounterVec

	// StageFailures counts stage hard failures, labeled by stage.
	StageFailures *prometheus.CounterVec

	// StageRetries counts soft-failure retries, labeled by stage.
	StageRetries *prometheus.CounterVec

	// StageDuration observes stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// ItemsProcessed counts items reaching a terminal state, labeled by outcome.
	ItemsProcessed *prometheus.CounterVec

	// ItemsSkipped counts dedup skips and lost claim races.
	ItemsSkipped prometheus.Counter

	// ItemsFiltered counts items completed via the relevance-threshold shortcut.
	ItemsFiltered prometheus.Counter

	// SearchRequests counts search collaborator calls, labeled by source.
	SearchRequests *prometheus.CounterVec

	// SearchFailures counts failed search calls, labeled by source.
	SearchFailures *prometheus.CounterVec

	// SearchResults observes the number of candidates per search, labeled by source.
	SearchResults *prometheus.HistogramVec

	// ProviderRequests counts LLM provider calls, labeled by operation and model.
	ProviderRequests *prometheus.CounterVec

	// ProviderFailures counts failed LLM provider calls, labeled by operation and model.
	ProviderFailures *prometheus.CounterVec

	// ProviderDuration observes provider call duration in seconds, labeled by operation.
	ProviderDuration *prometheus.HistogramVec

	// PublishBytes counts bytes uploaded to the knowledge base.
	PublishBytes prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started",
		}, []string{"trigger"}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of runs that failed",
		}),
		RunsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of runs cancelled",
		}),
		RunsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Total number of run submissions rejected at capacity",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		EngineQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_queue_depth",
			Help:      "Current number of queued run requests",
		}),
		SchedulerMissedTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_missed_ticks_total",
			Help:      "Total number of due times skipped because the previous run had not finished",
		}, []string{"task"}),
		StageAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Total number of stage attempts",
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of stage hard failures",
		}, []string{"stage"}),
		StageRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Total number of stage soft-failure retries",
		}, []string{"stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage executions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		ItemsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Total number of items reaching a terminal state",
		}, []string{"outcome"}),
		ItemsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Total number of items skipped by dedup or claim races",
		}),
		ItemsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_filtered_total",
			Help:      "Total number of items filtered out below the relevance threshold",
		}),
		SearchRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search collaborator calls",
		}, []string{"source"}),
		SearchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_failures_total",
			Help:      "Total number of failed search collaborator calls",
		}, []string{"source"}),
		SearchResults: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of candidates returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"source"}),
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of LLM provider calls",
		}, []string{"operation", "model"}),
		ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Total number of failed LLM provider calls",
		}, []string{"operation", "model"}),
		ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Duration of LLM provider calls in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		PublishBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_bytes_total",
			Help:      "Total bytes uploaded to the knowledge base",
		}),
	}
}
