package pipeline

import "time"

// Metric helpers tolerate a nil Metrics so tests can run without touching
// the process-global Prometheus registry.

func (e *Executor) observeAttempt(stage string) {
	if e.metrics != nil {
		e.metrics.StageAttempts.WithLabelValues(stage).Inc()
	}
}

func (e *Executor) observeRetry(stage string) {
	if e.metrics != nil {
		e.metrics.StageRetries.WithLabelValues(stage).Inc()
	}
}

func (e *Executor) observeFailure(stage string) {
	if e.metrics != nil {
		e.metrics.StageFailures.WithLabelValues(stage).Inc()
	}
}

func (e *Executor) observeDuration(stage string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (e *Executor) observeSearchRequest(source string) {
	if e.metrics != nil {
		e.metrics.SearchRequests.WithLabelValues(source).Inc()
	}
}

func (e *Executor) observeSearchFailure(source string) {
	if e.metrics != nil {
		e.metrics.SearchFailures.WithLabelValues(source).Inc()
	}
}

func (e *Executor) observeSearchResults(source string, count int) {
	if e.metrics != nil {
		e.metrics.SearchResults.WithLabelValues(source).Observe(float64(count))
	}
}

func (e *Executor) observeItemSkipped() {
	if e.metrics != nil {
		e.metrics.ItemsSkipped.Inc()
	}
}

func (e *Executor) observeItemOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.ItemsProcessed.WithLabelValues(outcome).Inc()
		if outcome == "filtered" {
			e.metrics.ItemsFiltered.Inc()
		}
	}
}

func (e *Executor) observePublishBytes(n int) {
	if e.metrics != nil {
		e.metrics.PublishBytes.Add(float64(n))
	}
}
