// Package scheduler fires recurring task runs at interval-anchored due times.
//
// Due times advance from the previous due time, not from when the run was
// actually submitted, so late ticks do not accumulate drift. An overlapping
// run skips the due time entirely; a saturated engine leaves the due time in
// place so the next tick retries it.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
)

// Submitter hands due runs to the engine. Satisfied by engine.Engine.
type Submitter interface {
	Submit(task *domain.TaskDefinition, trigger domain.RunTrigger) (*domain.Run, error)
	TaskBusy(taskName string) bool
}

// entry is one registered recurring task with its next due time.
type entry struct {
	task    *domain.TaskDefinition
	nextDue time.Time
}

// Scheduler evaluates the due-time table on every tick.
type Scheduler struct {
	submitter Submitter
	metrics   *observability.Metrics
	logger    zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a scheduler.
func New(submitter Submitter, metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		submitter: submitter,
		metrics:   metrics,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		entries:   make(map[string]*entry),
	}
}

// Register adds a recurring task. Its first due time is one interval from now.
// Returns domain.ErrDuplicateTask if the name is already registered and
// domain.ErrInvalidInput for tasks without an interval.
func (s *Scheduler) Register(task *domain.TaskDefinition, now time.Time) error {
	if !task.Recurring() {
		return domain.NewValidationError("interval", "recurring tasks require a positive interval")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[task.Name]; ok {
		return domain.ErrDuplicateTask
	}
	s.entries[task.Name] = &entry{task: task, nextDue: now.Add(task.Interval)}
	s.logger.Info().
		Str("task", task.Name).
		Dur("interval", task.Interval).
		Time("next_due", now.Add(task.Interval)).
		Msg("task registered")
	return nil
}

// Update replaces a registered task's definition, re-anchoring the due time
// one interval from now. Tasks that are no longer recurring are removed.
func (s *Scheduler) Update(task *domain.TaskDefinition, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !task.Recurring() {
		delete(s.entries, task.Name)
		return
	}
	s.entries[task.Name] = &entry{task: task, nextDue: now.Add(task.Interval)}
}

// Unregister removes a task from the due-time table.
func (s *Scheduler) Unregister(taskName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, taskName)
}

// SetEnabled pauses or resumes a registered task. Paused tasks keep their
// due-time anchor; their due times pass without firing.
func (s *Scheduler) SetEnabled(taskName string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[taskName]; ok {
		e.task.Enabled = enabled
	}
}

// NextDue returns the task's next due time.
func (s *Scheduler) NextDue(taskName string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[taskName]; ok {
		return e.nextDue, true
	}
	return time.Time{}, false
}

// Tick evaluates the due-time table once against now.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		if now.Before(e.nextDue) {
			continue
		}

		if !e.task.Enabled {
			s.advance(e, now)
			continue
		}

		if s.submitter.TaskBusy(name) {
			s.logger.Warn().
				Str("task", name).
				Time("due", e.nextDue).
				Msg("previous run still in flight, skipping due time")
			s.observeMissedTick(name)
			s.advance(e, now)
			continue
		}

		run, err := s.submitter.Submit(e.task, domain.RunTriggerScheduled)
		if err != nil {
			if errors.Is(err, domain.ErrEngineSaturated) {
				// The due time stays put; the next tick retries it.
				s.logger.Warn().Str("task", name).Msg("engine saturated, retrying next tick")
				continue
			}
			s.logger.Error().Err(err).Str("task", name).Msg("failed to submit scheduled run")
			continue
		}

		s.logger.Info().
			Str("task", name).
			Str("run_id", run.ID).
			Time("due", e.nextDue).
			Msg("scheduled run submitted")
		s.advance(e, now)
	}
}

// advance moves the due time forward by whole intervals from its previous
// value until it lies in the future. Anchoring to the previous due time keeps
// the schedule arithmetic regardless of tick lateness.
func (s *Scheduler) advance(e *entry, now time.Time) {
	for !e.nextDue.After(now) {
		e.nextDue = e.nextDue.Add(e.task.Interval)
	}
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, tickInterval time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("tick_interval", tickInterval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

func (s *Scheduler) observeMissedTick(taskName string) {
	if s.metrics != nil {
		s.metrics.SchedulerMissedTicks.WithLabelValues(taskName).Inc()
	}
}
