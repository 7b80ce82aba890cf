package repository

import (
	"context"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// TaskRepository handles persistence of task definitions.
type TaskRepository interface {
	// Create inserts a new task definition.
	// Returns domain.ErrAlreadyExists if a task with the same name exists.
	Create(ctx context.Context, task *domain.TaskDefinition) error

	// GetByName retrieves a task definition by name.
	// Returns domain.ErrNotFound if no matching task exists.
	GetByName(ctx context.Context, name string) (*domain.TaskDefinition, error)

	// List retrieves all task definitions, enabled or not, ordered by name.
	List(ctx context.Context) ([]*domain.TaskDefinition, error)

	// Update replaces the interval and pipeline configuration of an existing task.
	// Returns domain.ErrNotFound if no matching task exists.
	Update(ctx context.Context, task *domain.TaskDefinition) error

	// SetEnabled pauses or resumes a task without touching its definition.
	// Returns domain.ErrNotFound if no matching task exists.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// Delete removes a task definition. Items and runs it produced remain.
	// Returns domain.ErrNotFound if no matching task exists.
	Delete(ctx context.Context, name string) error
}
