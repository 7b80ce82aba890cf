package domain

import "time"

// EventType identifies a lifecycle event published to the event stream.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunCancelled EventType = "run.cancelled"
	EventItemFailed   EventType = "item.failed"
)

// Event is a lifecycle event emitted for dashboard consumers.
type Event struct {
	// Type identifies the event kind.
	Type EventType `json:"type"`
	// TaskName is the owning task.
	TaskName string `json:"task_name"`
	// RunID is the run the event belongs to.
	RunID string `json:"run_id"`
	// SourceID is set for item-level events.
	SourceID string `json:"source_id,omitempty"`
	// Reason is set for failure events.
	Reason string `json:"reason,omitempty"`
	// Counters is set on run terminal events.
	Counters *RunCounters `json:"counters,omitempty"`
	// OccurredAt is the event timestamp.
	OccurredAt time.Time `json:"occurred_at"`
}
