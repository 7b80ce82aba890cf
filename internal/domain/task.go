package domain

import (
	"fmt"
	"time"
)

// PipelineConfig is the closed, typed per-task pipeline configuration.
// Unknown fields are rejected at decode time; fields whose zero value cannot
// be meant literally get an explicit default from ApplyDefaults.
type PipelineConfig struct {
	// Query is the search query submitted to the search collaborator.
	Query string `json:"query" validate:"required"`
	// Source selects the search collaborator (currently "arxiv").
	Source string `json:"source"`
	// MaxResults bounds the number of candidates fetched per run.
	MaxResults int `json:"max_results"`
	// ScoringModel selects the provider/model used by the relevance stage.
	ScoringModel string `json:"scoring_model"`
	// SummaryModel selects the provider/model used by the summarize stage.
	SummaryModel string `json:"summary_model"`
	// RelevanceThreshold gates the pipeline: items scoring below it are
	// completed immediately and skip all later stages. Must be in [0, 1].
	// Zero is a valid all-pass threshold; the API layer applies
	// DefaultRelevanceThreshold only when the field is absent from the
	// request, so ApplyDefaults leaves this field alone.
	RelevanceThreshold float64 `json:"relevance_threshold"`
	// TargetLanguage is the translation target (empty disables translate).
	TargetLanguage string `json:"target_language"`
	// EnableTranslate toggles the translate stage.
	EnableTranslate bool `json:"enable_translate"`
	// EnableAnalyze toggles the structured-analyze stage.
	EnableAnalyze bool `json:"enable_analyze"`
	// EnablePublish toggles the publish stage.
	EnablePublish bool `json:"enable_publish"`
	// ItemParallelism bounds concurrent item processing within one run.
	ItemParallelism int `json:"item_parallelism"`
	// RetryAttempts is the per-stage bound on attempts for soft failures.
	RetryAttempts int `json:"retry_attempts"`
	// RetryBaseDelay is the base delay for exponential backoff between attempts.
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
}

// Pipeline configuration defaults.
const (
	DefaultSource             = "arxiv"
	DefaultMaxResults         = 50
	DefaultRelevanceThreshold = 0.7
	DefaultItemParallelism    = 3
	DefaultRetryAttempts      = 3
	DefaultRetryBaseDelay     = time.Second
)

// ApplyDefaults fills unset configuration fields with their defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.ItemParallelism <= 0 {
		c.ItemParallelism = DefaultItemParallelism
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
}

// Validate checks the configuration for fatal errors. A failing validation
// aborts the run at start, before any item is claimed.
func (c *PipelineConfig) Validate() error {
	if c.Query == "" {
		return NewValidationError("query", "query is required")
	}
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return NewValidationError("relevance_threshold",
			fmt.Sprintf("must be in [0, 1], got %v", c.RelevanceThreshold))
	}
	if c.MaxResults < 0 {
		return NewValidationError("max_results", "must not be negative")
	}
	if c.EnableTranslate && c.TargetLanguage == "" {
		return NewValidationError("target_language", "required when translate is enabled")
	}
	return nil
}

// TaskDefinition is a named, independently schedulable unit of work wrapping
// one pipeline configuration.
type TaskDefinition struct {
	// Name uniquely identifies the task.
	Name string
	// Interval is the recurrence period. Zero means ad hoc only.
	Interval time.Duration
	// Pipeline is the pipeline configuration executed by each run.
	Pipeline PipelineConfig
	// Enabled gates scheduling; a paused task keeps its definition.
	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recurring returns true if the task is eligible for scheduler ticks.
func (t *TaskDefinition) Recurring() bool {
	return t.Interval > 0
}

// RunOutcome is the terminal outcome of a run.
// These values must match the database enum run_outcome.
type RunOutcome string

const (
	RunOutcomeCompleted RunOutcome = "completed"
	RunOutcomeFailed    RunOutcome = "failed"
	RunOutcomeCancelled RunOutcome = "cancelled"
)

// RunTrigger records what caused a run to be submitted.
type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerManual    RunTrigger = "manual"
)

// RunCounters holds per-item counts accumulated over one run.
type RunCounters struct {
	// ItemsSearched is the number of candidates returned by the search call.
	ItemsSearched int `json:"items_searched"`
	// ItemsSkipped counts dedup skips and lost claim races.
	ItemsSkipped int `json:"items_skipped"`
	// ItemsFiltered counts items completed via the below-threshold shortcut.
	ItemsFiltered int `json:"items_filtered"`
	// ItemsCompleted counts items that finished all applicable stages.
	ItemsCompleted int `json:"items_completed"`
	// ItemsFailed counts items that ended in a hard failure.
	ItemsFailed int `json:"items_failed"`
}

// Merge adds the counts from other into c.
func (c *RunCounters) Merge(other RunCounters) {
	c.ItemsSearched += other.ItemsSearched
	c.ItemsSkipped += other.ItemsSkipped
	c.ItemsFiltered += other.ItemsFiltered
	c.ItemsCompleted += other.ItemsCompleted
	c.ItemsFailed += other.ItemsFailed
}

// Run is one execution instance of a task. Immutable once terminal.
type Run struct {
	ID        string
	TaskName  string
	Trigger   RunTrigger
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   RunOutcome
	Counters  RunCounters
	// FailureReason is set for runs with outcome failed.
	FailureReason string
}

// Terminal returns true once the run has an outcome recorded.
func (r *Run) Terminal() bool {
	return r.Outcome != ""
}
