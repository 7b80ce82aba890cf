package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	taskNameKey  contextKey = "task_name"
	runIDKey     contextKey = "run_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRun adds task name and run ID to the context.
func WithRun(ctx context.Context, taskName, runID string) context.Context {
	ctx = context.WithValue(ctx, taskNameKey, taskName)
	ctx = context.WithValue(ctx, runIDKey, runID)
	return ctx
}

// RunFromContext retrieves the task name and run ID from context.
// Returns empty strings if not present.
func RunFromContext(ctx context.Context) (taskName, runID string) {
	if v := ctx.Value(taskNameKey); v != nil {
		if s, ok := v.(string); ok {
			taskName = s
		}
	}
	if v := ctx.Value(runIDKey); v != nil {
		if s, ok := v.(string); ok {
			runID = s
		}
	}
	return taskName, runID
}
