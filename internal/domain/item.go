// Package domain provides domain models and business logic for the Paper Pipeline Service.
package domain

import (
	"math"
	"strings"
	"time"
)

// ProcessingStatus represents the lifecycle states of an item within a run.
// These values must match the database enum processing_status.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusInProgress ProcessingStatus = "in_progress"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not
// change within the owning run.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case ProcessingStatusCompleted, ProcessingStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status machine permits moving to next.
// Transitions are monotonic: pending -> in_progress -> {completed, failed}.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case ProcessingStatusPending:
		return next == ProcessingStatusInProgress
	case ProcessingStatusInProgress:
		return next == ProcessingStatusCompleted || next == ProcessingStatusFailed
	default:
		return false
	}
}

// DeepAnalysisStatus represents the orthogonal deep-analysis enrichment state.
// These values must match the database enum deep_analysis_status.
type DeepAnalysisStatus string

const (
	DeepAnalysisStatusNone      DeepAnalysisStatus = "none"
	DeepAnalysisStatusPending   DeepAnalysisStatus = "pending"
	DeepAnalysisStatusCompleted DeepAnalysisStatus = "completed"
	DeepAnalysisStatusFailed    DeepAnalysisStatus = "failed"
)

// Analysis holds the structured analysis fields produced by the analyze stage.
type Analysis struct {
	Background  string   `json:"background,omitempty"`
	Objectives  string   `json:"objectives,omitempty"`
	Methods     string   `json:"methods,omitempty"`
	Findings    string   `json:"findings,omitempty"`
	Conclusions string   `json:"conclusions,omitempty"`
	Limitations string   `json:"limitations,omitempty"`
	FutureWork  string   `json:"future_work,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Empty returns true if no analysis field has been set.
func (a Analysis) Empty() bool {
	return a.Background == "" && a.Objectives == "" && a.Methods == "" &&
		a.Findings == "" && a.Conclusions == "" && a.Limitations == "" &&
		a.FutureWork == "" && len(a.Keywords) == 0
}

// PublishInfo tracks a successful upload to the external knowledge base.
type PublishInfo struct {
	// RemoteID is the identifier assigned by the external system.
	RemoteID string
	// UploadedAt is when the publish call succeeded.
	UploadedAt time.Time
	// ContentBytes is the size of the published content in bytes.
	ContentBytes int
}

// Item represents one paper tracked through the pipeline.
// Identity is the external SourceID, unique and immutable once created.
type Item struct {
	SourceID      string
	Title         string
	Abstract      string
	Authors       []string
	Category      string
	PublishedAt   *time.Time
	ContentURL    string
	Status        ProcessingStatus
	TaskName      string
	RunID         string
	FailedStage   string
	FailureReason string

	// RelevanceScore is set by the relevance stage, fixed at 3 decimal places
	// in [0.000, 1.000]. Nil until scored.
	RelevanceScore         *float64
	RelevanceJustification string
	// FilteredOut marks an item completed via the below-threshold shortcut,
	// distinguishing it from a fully analyzed item.
	FilteredOut bool

	Summary     string
	Translation string
	Analysis    Analysis

	DeepAnalysisStatus    DeepAnalysisStatus
	DeepAnalysis          Analysis
	DeepAnalysisCreatedAt *time.Time
	DeepAnalysisUpdatedAt *time.Time

	Publish *PublishInfo

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasIdentity returns true if the item carries a usable source identity.
func (i *Item) HasIdentity() bool {
	return strings.TrimSpace(i.SourceID) != ""
}

// SetRelevance records a relevance score, clamped to [0, 1] and rounded to
// the 3-decimal fixed-point representation used by the store.
func (i *Item) SetRelevance(score float64, justification string) {
	s := ClampScore(score)
	i.RelevanceScore = &s
	i.RelevanceJustification = justification
}

// MarkPublished records a successful publish to the external knowledge base.
func (i *Item) MarkPublished(remoteID string, contentBytes int, at time.Time) {
	i.Publish = &PublishInfo{
		RemoteID:     remoteID,
		UploadedAt:   at,
		ContentBytes: contentBytes,
	}
}

// ClampScore bounds a relevance score to [0, 1] and rounds it to 3 decimal
// places, matching the NUMERIC(4,3) column in the item store.
func ClampScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*1000) / 1000
}
