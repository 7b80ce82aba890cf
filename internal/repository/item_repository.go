package repository

import (
	"context"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// ItemRepository handles item persistence and the claim protocol that keeps
// concurrent runs from processing the same paper twice.
type ItemRepository interface {
	// GetBySourceID retrieves an item by its external identity.
	// Returns domain.ErrNotFound if no matching item exists.
	GetBySourceID(ctx context.Context, sourceID string) (*domain.Item, error)

	// CreateOrClaim inserts a new pending item owned by the given run, or
	// reopens an existing failed item for reprocessing. Items that exist
	// with any non-failed status are not touched.
	// Returns domain.ErrAlreadyClaimed (as *domain.ClaimConflictError) when
	// the item exists and is pending, in progress or completed.
	CreateOrClaim(ctx context.Context, item *domain.Item, taskName, runID string) error

	// Claim atomically transitions the item from pending to in_progress for
	// the given run. This is the CAS that serializes ownership: at most one
	// run can win it for a given identity.
	// Returns domain.ErrAlreadyClaimed if the swap did not apply.
	Claim(ctx context.Context, sourceID, runID string) error

	// UpdateOutputs persists stage outputs (score, summary, translation,
	// analysis, publish tracking) for an item the run currently owns.
	// Returns domain.ErrAlreadyClaimed if the item is not in progress under
	// the given run.
	UpdateOutputs(ctx context.Context, item *domain.Item, runID string) error

	// MarkCompleted transitions in_progress -> completed for the owning run
	// and persists the final outputs, including the filtered_out shortcut flag.
	// Returns domain.ErrAlreadyClaimed if the CAS did not apply.
	MarkCompleted(ctx context.Context, item *domain.Item, runID string) error

	// MarkFailed transitions in_progress -> failed for the owning run,
	// recording the failing stage and reason.
	// Returns domain.ErrAlreadyClaimed if the CAS did not apply.
	MarkFailed(ctx context.Context, sourceID, runID, failedStage, reason string) error

	// FindBy retrieves items matching the filter criteria along with the
	// total count for pagination. Used by the dashboard while runs execute.
	FindBy(ctx context.Context, filter ItemFilter) ([]*domain.Item, int64, error)

	// RequestDeepAnalysis transitions the deep-analysis sub-status to pending.
	// Only items with processing_status = completed are eligible; returns
	// domain.ErrNotCompleted otherwise and domain.ErrNotFound for unknown items.
	RequestDeepAnalysis(ctx context.Context, sourceID string) error

	// CompleteDeepAnalysis records the outcome of a deep-analysis attempt,
	// transitioning pending -> completed (with the analysis) or pending -> failed.
	CompleteDeepAnalysis(ctx context.Context, sourceID string, analysis domain.Analysis, succeeded bool) error
}

// ItemFilter specifies criteria for listing items.
type ItemFilter struct {
	// TaskName filters to items owned by a specific task (optional).
	TaskName string

	// RunID filters to items touched by a specific run (optional).
	RunID string

	// Status filters by processing status (optional).
	Status *domain.ProcessingStatus

	// FilteredOut filters by the below-threshold shortcut flag (optional).
	FilteredOut *bool

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *ItemFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
