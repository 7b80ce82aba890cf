// Package server provides the HTTP REST API for the paper pipeline service:
// task CRUD, run submission and cancellation, item listing and the
// deep-analysis trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/database"
	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
)

// RunEngine is the engine surface the API uses. Satisfied by engine.Engine.
type RunEngine interface {
	Submit(task *domain.TaskDefinition, trigger domain.RunTrigger) (*domain.Run, error)
	SubmitDeepAnalysis(sourceID string) error
	Cancel(runID string) error
	TaskBusy(taskName string) bool
}

// TaskScheduler is the scheduler surface the API uses to keep the due-time
// table in sync with task mutations. Satisfied by scheduler.Scheduler.
type TaskScheduler interface {
	Register(task *domain.TaskDefinition, now time.Time) error
	Update(task *domain.TaskDefinition, now time.Time)
	Unregister(taskName string)
	SetEnabled(taskName string, enabled bool)
	NextDue(taskName string) (time.Time, bool)
}

// HealthChecker reports storage health. Satisfied by database.DB.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// RunProgress reports live processed-item counts for in-flight runs.
// Satisfied by cache.ClaimCache.
type RunProgress interface {
	Progress(ctx context.Context, runID string) (count int64, found bool, err error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath exposes the Prometheus handler when non-empty.
	MetricsPath string
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     RunEngine
	scheduler  TaskScheduler
	tasks      repository.TaskRepository
	items      repository.ItemRepository
	runs       repository.RunLedger
	progress   RunProgress
	health     HealthChecker
	logger     zerolog.Logger
}

// New creates an HTTP server with all dependencies.
func New(
	cfg Config,
	eng RunEngine,
	sched TaskScheduler,
	tasks repository.TaskRepository,
	items repository.ItemRepository,
	runs repository.RunLedger,
	progress RunProgress,
	health HealthChecker,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		engine:    eng,
		scheduler: sched,
		tasks:     tasks,
		items:     items,
		runs:      runs,
		progress:  progress,
		health:    health,
		logger:    logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter(cfg.MetricsPath)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(metricsPath string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDHeaderMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/", s.listTasks)
			r.Get("/{taskName}", s.getTask)
			r.Put("/{taskName}", s.updateTask)
			r.Delete("/{taskName}", s.deleteTask)
			r.Post("/{taskName}/pause", s.pauseTask)
			r.Post("/{taskName}/resume", s.resumeTask)
			r.Post("/{taskName}/runs", s.submitRun)
			r.Get("/{taskName}/runs", s.listRuns)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/{runID}", s.getRun)
			r.Delete("/{runID}", s.cancelRun)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Get("/{sourceID}", s.getItem)
			r.Post("/{sourceID}/deep-analysis", s.requestDeepAnalysis)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to HTTP status codes without leaking
// internal details to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrNotCompleted):
		writeError(w, http.StatusConflict, "item is not completed")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrEngineSaturated):
		writeError(w, http.StatusServiceUnavailable, "engine at capacity, retry later")
	case errors.Is(err, domain.ErrEngineStopped):
		writeError(w, http.StatusServiceUnavailable, "engine is shutting down")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
