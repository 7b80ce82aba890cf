package repository

import (
	"context"
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// RunLedger is the append-only record of run executions. A run is appended
// when it starts and finalized exactly once with a terminal outcome; terminal
// records are never rewritten.
type RunLedger interface {
	// Append records a newly started run.
	// Returns domain.ErrAlreadyExists if the run ID was already appended.
	Append(ctx context.Context, run *domain.Run) error

	// Finalize records the terminal outcome, counters and end time of a run.
	// The update only applies to runs without an outcome; finalizing a run
	// twice returns domain.ErrAlreadyExists, and finalizing an unknown run
	// returns domain.ErrRunNotFound.
	Finalize(ctx context.Context, runID string, outcome domain.RunOutcome, counters domain.RunCounters, endedAt time.Time, failureReason string) error

	// Get retrieves a single run by ID.
	// Returns domain.ErrRunNotFound if no matching run exists.
	Get(ctx context.Context, runID string) (*domain.Run, error)

	// ListByTask retrieves runs for a task, most recent first.
	ListByTask(ctx context.Context, taskName string, limit, offset int) ([]*domain.Run, int64, error)
}
