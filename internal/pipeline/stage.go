// Package pipeline executes the per-run paper processing flow: search,
// dedup/claim, relevance gating, summarization, optional translation and
// analysis, and publishing.
//
// Stage failures fall into two classes. Soft failures (network errors, rate
// limits, server errors, per-attempt timeouts) are retried up to the
// configured attempt bound with exponential backoff; exhausting the bound
// hardens them. Hard failures (malformed model output, rejected requests)
// fail the item immediately: the same inputs would fail again. A failed item
// never aborts the run; it is recorded and the run moves on.
package pipeline

import (
	"context"
	"errors"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/llm"
)

// Stage names recorded on failed items and in metrics.
const (
	StageSearch    = "search"
	StageClaim     = "claim"
	StageRelevance = "relevance"
	StageSummarize = "summarize"
	StageTranslate = "translate"
	StageAnalyze   = "analyze"
	StagePublish   = "publish"
	StageStore     = "store"
)

// severity classifies a stage error.
type severity int

const (
	// severitySoft marks transient failures eligible for retry.
	severitySoft severity = iota
	// severityHard marks permanent failures that fail the item immediately.
	severityHard
	// severityCancel marks run cancellation, which stops processing without
	// consuming retry attempts.
	severityCancel
)

// classify maps a stage error to its severity.
//
// Provider and collaborator errors carry their own transience verdict.
// Per-attempt timeouts are soft: the next attempt gets a fresh deadline.
// Everything else, parse failures and data errors included, is hard.
func classify(err error) severity {
	if err == nil {
		return severityHard
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
		return severityCancel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return severitySoft
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsTransient() {
			return severitySoft
		}
		return severityHard
	}

	var extErr *domain.ExternalAPIError
	if errors.As(err, &extErr) {
		if extErr.Transient() {
			return severitySoft
		}
		return severityHard
	}

	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) {
		return severitySoft
	}

	return severityHard
}
