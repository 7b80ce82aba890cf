package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Compile-time interface verification.
var _ RunLedger = (*PgRunLedger)(nil)

// PgRunLedger is a PostgreSQL implementation of RunLedger.
type PgRunLedger struct {
	db DBTX
}

// NewPgRunLedger creates a new PostgreSQL run ledger.
func NewPgRunLedger(db DBTX) *PgRunLedger {
	return &PgRunLedger{db: db}
}

// Append records a newly started run.
func (r *PgRunLedger) Append(ctx context.Context, run *domain.Run) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == "" {
		return domain.NewValidationError("id", "run ID is required")
	}

	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}

	query := `
		INSERT INTO runs (id, task_name, trigger, started_at, counters)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.db.Exec(ctx, query, run.ID, run.TaskName, run.Trigger, run.StartedAt, countersJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewAlreadyExistsError("run", run.ID)
		}
		return fmt.Errorf("failed to append run: %w", err)
	}

	return nil
}

// Finalize records the terminal outcome of a run. The outcome IS NULL guard
// makes terminal records immutable: a second finalize affects zero rows.
func (r *PgRunLedger) Finalize(ctx context.Context, runID string, outcome domain.RunOutcome, counters domain.RunCounters, endedAt time.Time, failureReason string) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}

	query := `
		UPDATE runs
		SET outcome = $1, counters = $2, ended_at = $3, failure_reason = $4
		WHERE id = $5 AND outcome IS NULL`

	result, err := r.db.Exec(ctx, query, outcome, countersJSON, endedAt, failureReason, runID)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to inspect run: %w", err)
		}
		if !exists {
			return domain.ErrRunNotFound
		}
		return domain.NewAlreadyExistsError("run outcome", runID)
	}

	return nil
}

// Get retrieves a single run by ID.
func (r *PgRunLedger) Get(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
		SELECT id, task_name, trigger, started_at, ended_at, outcome, counters, failure_reason
		FROM runs
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListByTask retrieves runs for a task, most recent first.
func (r *PgRunLedger) ListByTask(ctx context.Context, taskName string, limit, offset int) ([]*domain.Run, int64, error) {
	applyPaginationDefaults(&limit, &offset)

	var totalCount int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE task_name = $1`, taskName).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT id, task_name, trigger, started_at, ended_at, outcome, counters, failure_reason
		FROM runs
		WHERE task_name = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, taskName, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0, limit)
	for rows.Next() {
		run, err := scanRunFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, totalCount, nil
}

// runScanDest holds the destination pointers for scanning a run row.
type runScanDest struct {
	run          domain.Run
	outcome      *domain.RunOutcome
	countersJSON []byte
}

func (d *runScanDest) destinations() []interface{} {
	return []interface{}{
		&d.run.ID, &d.run.TaskName, &d.run.Trigger, &d.run.StartedAt,
		&d.run.EndedAt, &d.outcome, &d.countersJSON, &d.run.FailureReason,
	}
}

func (d *runScanDest) finalize() (*domain.Run, error) {
	if d.outcome != nil {
		d.run.Outcome = *d.outcome
	}
	if len(d.countersJSON) > 0 {
		if err := json.Unmarshal(d.countersJSON, &d.run.Counters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
		}
	}
	return &d.run, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var dest runScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func scanRunFromRows(rows pgx.Rows) (*domain.Run, error) {
	var dest runScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
