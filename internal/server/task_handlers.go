package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Request body and pagination limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB
	defaultPageSize    = 50
	maxPageSize        = 500
)

var validate = validator.New()

// taskRequest is the JSON request body for creating or updating a task.
type taskRequest struct {
	Name     string          `json:"name" validate:"omitempty,min=1,max=128"`
	Interval string          `json:"interval,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"`
	Pipeline pipelineRequest `json:"pipeline" validate:"required"`
}

// pipelineRequest carries the per-task pipeline configuration. Durations are
// Go duration strings ("30m", "24h").
type pipelineRequest struct {
	Query              string   `json:"query" validate:"required,min=2,max=1024"`
	Source             string   `json:"source,omitempty" validate:"omitempty,max=64"`
	MaxResults         int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=500"`
	ScoringModel       string   `json:"scoring_model,omitempty" validate:"omitempty,max=128"`
	SummaryModel       string   `json:"summary_model,omitempty" validate:"omitempty,max=128"`
	RelevanceThreshold *float64 `json:"relevance_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	TargetLanguage     string   `json:"target_language,omitempty" validate:"omitempty,max=64"`
	EnableTranslate    bool     `json:"enable_translate,omitempty"`
	EnableAnalyze      bool     `json:"enable_analyze,omitempty"`
	EnablePublish      bool     `json:"enable_publish,omitempty"`
	ItemParallelism    int      `json:"item_parallelism,omitempty" validate:"omitempty,min=1,max=32"`
	RetryAttempts      int      `json:"retry_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	RetryBaseDelay     string   `json:"retry_base_delay,omitempty"`
}

// decodeTaskRequest reads, parses and validates a task request body. Unknown
// fields are rejected so config typos fail loudly instead of being ignored.
func decodeTaskRequest(w http.ResponseWriter, r *http.Request) (*taskRequest, bool) {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()

	var req taskRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return nil, false
	}

	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return nil, false
	}

	return &req, true
}

// toDomain builds the task definition from the request, applying defaults and
// validating the pipeline configuration.
func (req *taskRequest) toDomain(name string) (*domain.TaskDefinition, error) {
	var interval time.Duration
	if req.Interval != "" {
		parsed, err := time.ParseDuration(req.Interval)
		if err != nil || parsed < 0 {
			return nil, domain.NewValidationError("interval", "must be a positive Go duration string")
		}
		interval = parsed
	}

	cfg := domain.PipelineConfig{
		Query:           strings.TrimSpace(req.Pipeline.Query),
		Source:          req.Pipeline.Source,
		MaxResults:      req.Pipeline.MaxResults,
		ScoringModel:    req.Pipeline.ScoringModel,
		SummaryModel:    req.Pipeline.SummaryModel,
		TargetLanguage:  req.Pipeline.TargetLanguage,
		EnableTranslate: req.Pipeline.EnableTranslate,
		EnableAnalyze:   req.Pipeline.EnableAnalyze,
		EnablePublish:   req.Pipeline.EnablePublish,
		ItemParallelism: req.Pipeline.ItemParallelism,
		RetryAttempts:   req.Pipeline.RetryAttempts,
	}
	// An explicit zero threshold means every scored item passes the gate, so
	// the default applies only when the field is absent from the request.
	if req.Pipeline.RelevanceThreshold != nil {
		cfg.RelevanceThreshold = *req.Pipeline.RelevanceThreshold
	} else {
		cfg.RelevanceThreshold = domain.DefaultRelevanceThreshold
	}
	if req.Pipeline.RetryBaseDelay != "" {
		delay, err := time.ParseDuration(req.Pipeline.RetryBaseDelay)
		if err != nil || delay < 0 {
			return nil, domain.NewValidationError("retry_base_delay", "must be a positive Go duration string")
		}
		cfg.RetryBaseDelay = delay
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &domain.TaskDefinition{
		Name:     name,
		Interval: interval,
		Pipeline: cfg,
		Enabled:  enabled,
	}, nil
}

// createTask handles POST /api/v1/tasks.
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := decodeTaskRequest(w, r)
	if !ok {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	task, err := req.toDomain(req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		writeDomainError(w, err)
		return
	}

	if task.Recurring() {
		if err := s.scheduler.Register(task, time.Now().UTC()); err != nil {
			s.logger.Error().Err(err).Str("task", task.Name).Msg("failed to register task with scheduler")
		}
	}

	writeJSON(w, http.StatusCreated, s.domainTaskToResponse(task))
}

// getTask handles GET /api/v1/tasks/{taskName}.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetByName(r.Context(), chi.URLParam(r, "taskName"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.domainTaskToResponse(task))
}

// listTasks handles GET /api/v1/tasks.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]taskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = s.domainTaskToResponse(task)
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Tasks: responses, TotalCount: len(responses)})
}

// updateTask handles PUT /api/v1/tasks/{taskName}.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "taskName")

	req, ok := decodeTaskRequest(w, r)
	if !ok {
		return
	}
	if req.Name != "" && req.Name != name {
		writeError(w, http.StatusBadRequest, "task name cannot be changed")
		return
	}

	task, err := req.toDomain(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		writeDomainError(w, err)
		return
	}
	s.scheduler.Update(task, time.Now().UTC())

	writeJSON(w, http.StatusOK, s.domainTaskToResponse(task))
}

// deleteTask handles DELETE /api/v1/tasks/{taskName}. Items and runs the
// task produced remain in the store.
func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")

	if err := s.tasks.Delete(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}
	s.scheduler.Unregister(name)

	w.WriteHeader(http.StatusNoContent)
}

// pauseTask handles POST /api/v1/tasks/{taskName}/pause.
func (s *Server) pauseTask(w http.ResponseWriter, r *http.Request) {
	s.setTaskEnabled(w, r, false)
}

// resumeTask handles POST /api/v1/tasks/{taskName}/resume.
func (s *Server) resumeTask(w http.ResponseWriter, r *http.Request) {
	s.setTaskEnabled(w, r, true)
}

func (s *Server) setTaskEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := chi.URLParam(r, "taskName")

	if err := s.tasks.SetEnabled(r.Context(), name, enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	s.scheduler.SetEnabled(name, enabled)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    name,
		"enabled": enabled,
	})
}

// validationMessage renders the first field violation of a validator error.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return "invalid field " + fe.Namespace() + ": failed " + fe.Tag() + " validation"
	}
	return "invalid request"
}
