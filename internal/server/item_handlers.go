package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
)

// listItems handles GET /api/v1/items with optional task, run_id, status and
// filtered_out query filters.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	filter := repository.ItemFilter{
		TaskName: r.URL.Query().Get("task"),
		RunID:    r.URL.Query().Get("run_id"),
		Limit:    limit,
		Offset:   offset,
	}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.ProcessingStatus(statusParam)
		switch status {
		case domain.ProcessingStatusPending, domain.ProcessingStatusInProgress,
			domain.ProcessingStatusCompleted, domain.ProcessingStatusFailed:
			filter.Status = &status
		default:
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	if filteredParam := r.URL.Query().Get("filtered_out"); filteredParam != "" {
		switch filteredParam {
		case "true":
			filtered := true
			filter.FilteredOut = &filtered
		case "false":
			filtered := false
			filter.FilteredOut = &filtered
		default:
			writeError(w, http.StatusBadRequest, "filtered_out must be true or false")
			return
		}
	}

	items, totalCount, err := s.items.FindBy(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]itemResponse, len(items))
	for i, item := range items {
		responses[i] = domainItemToResponse(item)
	}
	writeJSON(w, http.StatusOK, listItemsResponse{
		Items:      responses,
		TotalCount: int(totalCount),
		Limit:      limit,
		Offset:     offset,
	})
}

// getItem handles GET /api/v1/items/{sourceID}.
func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.GetBySourceID(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainItemToResponse(item))
}

// requestDeepAnalysis handles POST /api/v1/items/{sourceID}/deep-analysis.
// The item must already be completed; the request flags the sub-status and
// enqueues the analysis on the engine.
func (s *Server) requestDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceID := chi.URLParam(r, "sourceID")

	if err := s.items.RequestDeepAnalysis(ctx, sourceID); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.engine.SubmitDeepAnalysis(sourceID); err != nil {
		// The sub-status stays pending; re-requesting later re-enqueues it.
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, deepAnalysisResponse{
		SourceID: sourceID,
		Status:   string(domain.DeepAnalysisStatusPending),
		Message:  "deep analysis queued",
	})
}
