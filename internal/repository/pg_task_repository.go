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
var _ TaskRepository = (*PgTaskRepository)(nil)

// PgTaskRepository is a PostgreSQL implementation of TaskRepository.
type PgTaskRepository struct {
	db DBTX
}

// NewPgTaskRepository creates a new PostgreSQL task repository.
func NewPgTaskRepository(db DBTX) *PgTaskRepository {
	return &PgTaskRepository{db: db}
}

// Create inserts a new task definition.
func (r *PgTaskRepository) Create(ctx context.Context, task *domain.TaskDefinition) error {
	if task == nil {
		return domain.NewValidationError("task", "task cannot be nil")
	}
	if task.Name == "" {
		return domain.NewValidationError("name", "task name is required")
	}

	pipelineJSON, err := json.Marshal(task.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline config: %w", err)
	}

	query := `
		INSERT INTO tasks (name, interval_secs, pipeline, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		task.Name,
		int64(task.Interval/time.Second),
		pipelineJSON,
		task.Enabled,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewAlreadyExistsError("task", task.Name)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByName retrieves a task definition by name.
func (r *PgTaskRepository) GetByName(ctx context.Context, name string) (*domain.TaskDefinition, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "task name is required")
	}

	query := `
		SELECT name, interval_secs, pipeline, enabled, created_at, updated_at
		FROM tasks
		WHERE name = $1`

	row := r.db.QueryRow(ctx, query, name)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("task", name)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// List retrieves all task definitions ordered by name.
func (r *PgTaskRepository) List(ctx context.Context) ([]*domain.TaskDefinition, error) {
	query := `
		SELECT name, interval_secs, pipeline, enabled, created_at, updated_at
		FROM tasks
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.TaskDefinition
	for rows.Next() {
		task, err := scanTaskFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// Update replaces the interval and pipeline configuration of an existing task.
func (r *PgTaskRepository) Update(ctx context.Context, task *domain.TaskDefinition) error {
	if task == nil {
		return domain.NewValidationError("task", "task cannot be nil")
	}

	pipelineJSON, err := json.Marshal(task.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline config: %w", err)
	}

	query := `
		UPDATE tasks
		SET interval_secs = $1, pipeline = $2, enabled = $3
		WHERE name = $4`

	result, err := r.db.Exec(ctx, query,
		int64(task.Interval/time.Second),
		pipelineJSON,
		task.Enabled,
		task.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("task", task.Name)
	}

	return nil
}

// SetEnabled pauses or resumes a task.
func (r *PgTaskRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	query := `UPDATE tasks SET enabled = $1 WHERE name = $2`

	result, err := r.db.Exec(ctx, query, enabled, name)
	if err != nil {
		return fmt.Errorf("failed to set task enabled: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("task", name)
	}

	return nil
}

// Delete removes a task definition.
func (r *PgTaskRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM tasks WHERE name = $1`

	result, err := r.db.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("task", name)
	}

	return nil
}

// taskScanDest holds the destination pointers for scanning a task row.
type taskScanDest struct {
	task         domain.TaskDefinition
	intervalSecs int64
	pipelineJSON []byte
}

func (d *taskScanDest) destinations() []interface{} {
	return []interface{}{
		&d.task.Name, &d.intervalSecs, &d.pipelineJSON, &d.task.Enabled,
		&d.task.CreatedAt, &d.task.UpdatedAt,
	}
}

func (d *taskScanDest) finalize() (*domain.TaskDefinition, error) {
	d.task.Interval = time.Duration(d.intervalSecs) * time.Second
	if err := json.Unmarshal(d.pipelineJSON, &d.task.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline config: %w", err)
	}
	return &d.task, nil
}

func scanTask(row pgx.Row) (*domain.TaskDefinition, error) {
	var dest taskScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func scanTaskFromRows(rows pgx.Rows) (*domain.TaskDefinition, error) {
	var dest taskScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
