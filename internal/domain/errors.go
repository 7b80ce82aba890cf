package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyClaimed indicates that another run holds the claim on an item.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrDuplicateTask indicates that a task name is already registered.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrEngineSaturated indicates that the engine worker pool and queue are full.
	ErrEngineSaturated = errors.New("engine saturated")

	// ErrEngineStopped indicates that the engine no longer accepts submissions.
	ErrEngineStopped = errors.New("engine stopped")

	// ErrRunNotFound indicates that no in-flight run matches the given ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrRateLimited indicates that a request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external collaborator is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidScore indicates a missing or malformed relevance score.
	ErrInvalidScore = errors.New("invalid score")

	// ErrNotCompleted indicates an operation that requires a completed item.
	ErrNotCompleted = errors.New("item not completed")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ClaimConflictError reports that an item is already being processed by
// another run. Callers skip the item without marking failure.
type ClaimConflictError struct {
	SourceID string
	HeldBy   string
}

// Error implements the error interface.
func (e *ClaimConflictError) Error() string {
	if e.HeldBy != "" {
		return fmt.Sprintf("item %s already claimed by run %s", e.SourceID, e.HeldBy)
	}
	return fmt.Sprintf("item %s already claimed", e.SourceID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ClaimConflictError) Unwrap() error {
	return ErrAlreadyClaimed
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is worth retrying. Network-level
// failures (status 0), rate limits and server errors are transient; 4xx
// responses indicate a request that will not succeed on retry.
func (e *ExternalAPIError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewClaimConflictError creates a new ClaimConflictError.
func NewClaimConflictError(sourceID, heldBy string) *ClaimConflictError {
	return &ClaimConflictError{SourceID: sourceID, HeldBy: heldBy}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
