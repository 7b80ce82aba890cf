package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// submitRun handles POST /api/v1/tasks/{taskName}/runs. Manual runs are
// allowed on paused tasks; pausing only stops the scheduler.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "taskName")

	task, err := s.tasks.GetByName(ctx, name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	run, err := s.engine.Submit(task, domain.RunTriggerManual)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, domainRunToResponse(run))
}

// listRuns handles GET /api/v1/tasks/{taskName}/runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	limit, offset := parsePaginationParams(r)

	runs, totalCount, err := s.runs.ListByTask(r.Context(), name, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]runResponse, len(runs))
	for i, run := range runs {
		responses[i] = domainRunToResponse(run)
	}
	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:       responses,
		TotalCount: int(totalCount),
		Limit:      limit,
		Offset:     offset,
	})
}

// getRun handles GET /api/v1/runs/{runID}. In-flight runs carry a live
// processed-item count from the cache; the ledger counters are only written
// when the run finalizes.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := domainRunToResponse(run)
	if !run.Terminal() {
		if count, found, err := s.progress.Progress(r.Context(), run.ID); err != nil {
			s.logger.Debug().Err(err).Str("run_id", run.ID).Msg("failed to read run progress")
		} else if found {
			resp.ItemsProcessed = &count
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// cancelRun handles DELETE /api/v1/runs/{runID}. Cancellation is a request:
// the run stops between items and stages and finalizes as cancelled.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	err := s.engine.Cancel(runID)
	if err == nil {
		writeJSON(w, http.StatusAccepted, cancelRunResponse{
			Success: true,
			Message: "cancellation requested",
		})
		return
	}
	if !errors.Is(err, domain.ErrRunNotFound) {
		writeDomainError(w, err)
		return
	}

	// Not in flight. Distinguish a finished run from an unknown one.
	run, ledgerErr := s.runs.Get(r.Context(), runID)
	if ledgerErr != nil {
		writeDomainError(w, ledgerErr)
		return
	}
	if run.Terminal() {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}
	writeDomainError(w, err)
}

// parsePaginationParams extracts limit and offset query parameters, applying
// default and maximum bounds.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	return limit, offset
}
