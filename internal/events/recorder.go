package events

import (
	"context"
	"sync"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Recorder captures published events in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Ensure Recorder satisfies the interface.
var _ Publisher = (*Recorder)(nil)

// NewRecorder creates an in-memory event recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}
