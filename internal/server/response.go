package server

import (
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Response types for JSON serialization.

type pipelineResponse struct {
	Query              string  `json:"query"`
	Source             string  `json:"source"`
	MaxResults         int     `json:"max_results"`
	ScoringModel       string  `json:"scoring_model,omitempty"`
	SummaryModel       string  `json:"summary_model,omitempty"`
	RelevanceThreshold float64 `json:"relevance_threshold"`
	TargetLanguage     string  `json:"target_language,omitempty"`
	EnableTranslate    bool    `json:"enable_translate"`
	EnableAnalyze      bool    `json:"enable_analyze"`
	EnablePublish      bool    `json:"enable_publish"`
	ItemParallelism    int     `json:"item_parallelism"`
	RetryAttempts      int     `json:"retry_attempts"`
	RetryBaseDelay     string  `json:"retry_base_delay"`
}

type taskResponse struct {
	Name      string           `json:"name"`
	Interval  string           `json:"interval,omitempty"`
	Enabled   bool             `json:"enabled"`
	Busy      bool             `json:"busy"`
	NextDue   *time.Time       `json:"next_due,omitempty"`
	Pipeline  pipelineResponse `json:"pipeline"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type listTasksResponse struct {
	Tasks      []taskResponse `json:"tasks"`
	TotalCount int            `json:"total_count"`
}

type runResponse struct {
	RunID         string             `json:"run_id"`
	TaskName      string             `json:"task_name"`
	Trigger       string             `json:"trigger"`
	Outcome       string             `json:"outcome,omitempty"`
	Counters      domain.RunCounters `json:"counters"`
	FailureReason string             `json:"failure_reason,omitempty"`
	// ItemsProcessed is the live progress counter, present only while the run
	// is in flight and the counter has not expired.
	ItemsProcessed *int64     `json:"items_processed,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type listRunsResponse struct {
	Runs       []runResponse `json:"runs"`
	TotalCount int           `json:"total_count"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

type cancelRunResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type analysisResponse struct {
	Background  string   `json:"background,omitempty"`
	Objectives  string   `json:"objectives,omitempty"`
	Methods     string   `json:"methods,omitempty"`
	Findings    string   `json:"findings,omitempty"`
	Conclusions string   `json:"conclusions,omitempty"`
	Limitations string   `json:"limitations,omitempty"`
	FutureWork  string   `json:"future_work,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

type publishInfoResponse struct {
	RemoteID     string    `json:"remote_id"`
	UploadedAt   time.Time `json:"uploaded_at"`
	ContentBytes int       `json:"content_bytes"`
}

type itemResponse struct {
	SourceID               string               `json:"source_id"`
	Title                  string               `json:"title"`
	Abstract               string               `json:"abstract,omitempty"`
	Authors                []string             `json:"authors,omitempty"`
	Category               string               `json:"category,omitempty"`
	PublishedAt            *time.Time           `json:"published_at,omitempty"`
	ContentURL             string               `json:"content_url,omitempty"`
	Status                 string               `json:"status"`
	TaskName               string               `json:"task_name,omitempty"`
	RunID                  string               `json:"run_id,omitempty"`
	FailedStage            string               `json:"failed_stage,omitempty"`
	FailureReason          string               `json:"failure_reason,omitempty"`
	RelevanceScore         *float64             `json:"relevance_score,omitempty"`
	RelevanceJustification string               `json:"relevance_justification,omitempty"`
	FilteredOut            bool                 `json:"filtered_out"`
	Summary                string               `json:"summary,omitempty"`
	Translation            string               `json:"translation,omitempty"`
	Analysis               *analysisResponse    `json:"analysis,omitempty"`
	DeepAnalysisStatus     string               `json:"deep_analysis_status"`
	DeepAnalysis           *analysisResponse    `json:"deep_analysis,omitempty"`
	Publish                *publishInfoResponse `json:"publish,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

type listItemsResponse struct {
	Items      []itemResponse `json:"items"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

type deepAnalysisResponse struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// Converter functions

func domainPipelineToResponse(c domain.PipelineConfig) pipelineResponse {
	return pipelineResponse{
		Query:              c.Query,
		Source:             c.Source,
		MaxResults:         c.MaxResults,
		ScoringModel:       c.ScoringModel,
		SummaryModel:       c.SummaryModel,
		RelevanceThreshold: c.RelevanceThreshold,
		TargetLanguage:     c.TargetLanguage,
		EnableTranslate:    c.EnableTranslate,
		EnableAnalyze:      c.EnableAnalyze,
		EnablePublish:      c.EnablePublish,
		ItemParallelism:    c.ItemParallelism,
		RetryAttempts:      c.RetryAttempts,
		RetryBaseDelay:     c.RetryBaseDelay.String(),
	}
}

func (s *Server) domainTaskToResponse(task *domain.TaskDefinition) taskResponse {
	resp := taskResponse{
		Name:      task.Name,
		Enabled:   task.Enabled,
		Busy:      s.engine.TaskBusy(task.Name),
		Pipeline:  domainPipelineToResponse(task.Pipeline),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	if task.Recurring() {
		resp.Interval = task.Interval.String()
		if due, ok := s.scheduler.NextDue(task.Name); ok {
			resp.NextDue = &due
		}
	}
	return resp
}

func domainRunToResponse(run *domain.Run) runResponse {
	return runResponse{
		RunID:         run.ID,
		TaskName:      run.TaskName,
		Trigger:       string(run.Trigger),
		Outcome:       string(run.Outcome),
		Counters:      run.Counters,
		FailureReason: run.FailureReason,
		StartedAt:     run.StartedAt,
		EndedAt:       run.EndedAt,
	}
}

func domainAnalysisToResponse(a domain.Analysis) *analysisResponse {
	if a.Empty() {
		return nil
	}
	return &analysisResponse{
		Background:  a.Background,
		Objectives:  a.Objectives,
		Methods:     a.Methods,
		Findings:    a.Findings,
		Conclusions: a.Conclusions,
		Limitations: a.Limitations,
		FutureWork:  a.FutureWork,
		Keywords:    a.Keywords,
	}
}

func domainItemToResponse(item *domain.Item) itemResponse {
	resp := itemResponse{
		SourceID:               item.SourceID,
		Title:                  item.Title,
		Abstract:               item.Abstract,
		Authors:                item.Authors,
		Category:               item.Category,
		PublishedAt:            item.PublishedAt,
		ContentURL:             item.ContentURL,
		Status:                 string(item.Status),
		TaskName:               item.TaskName,
		RunID:                  item.RunID,
		FailedStage:            item.FailedStage,
		FailureReason:          item.FailureReason,
		RelevanceScore:         item.RelevanceScore,
		RelevanceJustification: item.RelevanceJustification,
		FilteredOut:            item.FilteredOut,
		Summary:                item.Summary,
		Translation:            item.Translation,
		Analysis:               domainAnalysisToResponse(item.Analysis),
		DeepAnalysisStatus:     string(item.DeepAnalysisStatus),
		DeepAnalysis:           domainAnalysisToResponse(item.DeepAnalysis),
		CreatedAt:              item.CreatedAt,
		UpdatedAt:              item.UpdatedAt,
	}
	if item.Publish != nil {
		resp.Publish = &publishInfoResponse{
			RemoteID:     item.Publish.RemoteID,
			UploadedAt:   item.Publish.UploadedAt,
			ContentBytes: item.Publish.ContentBytes,
		}
	}
	return resp
}
