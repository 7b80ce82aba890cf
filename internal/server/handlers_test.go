package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarwatch/paper-pipeline-service/internal/cache"
	"github.com/scholarwatch/paper-pipeline-service/internal/database"
	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
)

// fakeEngine scripts engine responses.
type fakeEngine struct {
	submitErr  error
	cancelErr  error
	deepErr    error
	busy       map[string]bool
	submitted  []string
	cancelled  []string
	deepQueued []string
}

func (e *fakeEngine) Submit(task *domain.TaskDefinition, trigger domain.RunTrigger) (*domain.Run, error) {
	if e.submitErr != nil {
		return nil, e.submitErr
	}
	e.submitted = append(e.submitted, task.Name)
	return &domain.Run{
		ID:        "run-1",
		TaskName:  task.Name,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (e *fakeEngine) SubmitDeepAnalysis(sourceID string) error {
	if e.deepErr != nil {
		return e.deepErr
	}
	e.deepQueued = append(e.deepQueued, sourceID)
	return nil
}

func (e *fakeEngine) Cancel(runID string) error {
	if e.cancelErr != nil {
		return e.cancelErr
	}
	e.cancelled = append(e.cancelled, runID)
	return nil
}

func (e *fakeEngine) TaskBusy(taskName string) bool { return e.busy[taskName] }

// fakeScheduler records due-time table mutations.
type fakeScheduler struct {
	registered   []string
	updated      []string
	unregistered []string
	enabled      map[string]bool
	registerErr  error
}

func (s *fakeScheduler) Register(task *domain.TaskDefinition, _ time.Time) error {
	if s.registerErr != nil {
		return s.registerErr
	}
	s.registered = append(s.registered, task.Name)
	return nil
}

func (s *fakeScheduler) Update(task *domain.TaskDefinition, _ time.Time) {
	s.updated = append(s.updated, task.Name)
}

func (s *fakeScheduler) Unregister(taskName string) {
	s.unregistered = append(s.unregistered, taskName)
}

func (s *fakeScheduler) SetEnabled(taskName string, enabled bool) {
	if s.enabled == nil {
		s.enabled = make(map[string]bool)
	}
	s.enabled[taskName] = enabled
}

func (s *fakeScheduler) NextDue(string) (time.Time, bool) { return time.Time{}, false }

// fakeTaskRepo is an in-memory task store.
type fakeTaskRepo struct {
	tasks map[string]*domain.TaskDefinition
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*domain.TaskDefinition)}
}

func (r *fakeTaskRepo) Create(_ context.Context, task *domain.TaskDefinition) error {
	if _, ok := r.tasks[task.Name]; ok {
		return domain.NewAlreadyExistsError("task", task.Name)
	}
	r.tasks[task.Name] = task
	return nil
}

func (r *fakeTaskRepo) GetByName(_ context.Context, name string) (*domain.TaskDefinition, error) {
	task, ok := r.tasks[name]
	if !ok {
		return nil, domain.NewNotFoundError("task", name)
	}
	return task, nil
}

func (r *fakeTaskRepo) List(context.Context) ([]*domain.TaskDefinition, error) {
	out := make([]*domain.TaskDefinition, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *domain.TaskDefinition) error {
	if _, ok := r.tasks[task.Name]; !ok {
		return domain.NewNotFoundError("task", task.Name)
	}
	r.tasks[task.Name] = task
	return nil
}

func (r *fakeTaskRepo) SetEnabled(_ context.Context, name string, enabled bool) error {
	task, ok := r.tasks[name]
	if !ok {
		return domain.NewNotFoundError("task", name)
	}
	task.Enabled = enabled
	return nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, name string) error {
	if _, ok := r.tasks[name]; !ok {
		return domain.NewNotFoundError("task", name)
	}
	delete(r.tasks, name)
	return nil
}

// fakeItemRepo serves canned items and records deep-analysis requests.
type fakeItemRepo struct {
	items      map[string]*domain.Item
	lastFilter repository.ItemFilter
}

var _ repository.ItemRepository = (*fakeItemRepo)(nil)

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*domain.Item)}
}

func (r *fakeItemRepo) GetBySourceID(_ context.Context, sourceID string) (*domain.Item, error) {
	item, ok := r.items[sourceID]
	if !ok {
		return nil, domain.NewNotFoundError("item", sourceID)
	}
	return item, nil
}

func (r *fakeItemRepo) CreateOrClaim(context.Context, *domain.Item, string, string) error { return nil }
func (r *fakeItemRepo) Claim(context.Context, string, string) error                       { return nil }
func (r *fakeItemRepo) UpdateOutputs(context.Context, *domain.Item, string) error         { return nil }
func (r *fakeItemRepo) MarkCompleted(context.Context, *domain.Item, string) error         { return nil }
func (r *fakeItemRepo) MarkFailed(context.Context, string, string, string, string) error  { return nil }

func (r *fakeItemRepo) FindBy(_ context.Context, filter repository.ItemFilter) ([]*domain.Item, int64, error) {
	r.lastFilter = filter
	out := make([]*domain.Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	return out, int64(len(out)), nil
}

func (r *fakeItemRepo) RequestDeepAnalysis(_ context.Context, sourceID string) error {
	item, ok := r.items[sourceID]
	if !ok {
		return domain.NewNotFoundError("item", sourceID)
	}
	if item.Status != domain.ProcessingStatusCompleted {
		return domain.ErrNotCompleted
	}
	item.DeepAnalysisStatus = domain.DeepAnalysisStatusPending
	return nil
}

func (r *fakeItemRepo) CompleteDeepAnalysis(context.Context, string, domain.Analysis, bool) error {
	return nil
}

// fakeRunLedger serves canned runs.
type fakeRunLedger struct {
	runs map[string]*domain.Run
}

var _ repository.RunLedger = (*fakeRunLedger)(nil)

func newFakeRunLedger() *fakeRunLedger {
	return &fakeRunLedger{runs: make(map[string]*domain.Run)}
}

func (l *fakeRunLedger) Append(_ context.Context, run *domain.Run) error {
	l.runs[run.ID] = run
	return nil
}

func (l *fakeRunLedger) Finalize(context.Context, string, domain.RunOutcome, domain.RunCounters, time.Time, string) error {
	return nil
}

func (l *fakeRunLedger) Get(_ context.Context, runID string) (*domain.Run, error) {
	run, ok := l.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (l *fakeRunLedger) ListByTask(_ context.Context, taskName string, _, _ int) ([]*domain.Run, int64, error) {
	var out []*domain.Run
	for _, run := range l.runs {
		if run.TaskName == taskName {
			out = append(out, run)
		}
	}
	return out, int64(len(out)), nil
}

// fakeHealth reports a fixed health status.
type fakeHealth struct {
	status string
}

func (h *fakeHealth) Health(context.Context) database.HealthStatus {
	return database.HealthStatus{Status: h.status}
}

type testServer struct {
	server    *Server
	engine    *fakeEngine
	scheduler *fakeScheduler
	tasks     *fakeTaskRepo
	items     *fakeItemRepo
	runs      *fakeRunLedger
	progress  cache.ClaimCache
}

func newTestServer() *testServer {
	eng := &fakeEngine{busy: make(map[string]bool)}
	sched := &fakeScheduler{}
	tasks := newFakeTaskRepo()
	items := newFakeItemRepo()
	runs := newFakeRunLedger()

	progress := cache.NewMemoryCache()
	s := New(Config{}, eng, sched, tasks, items, runs, progress, &fakeHealth{status: "healthy"}, zerolog.Nop())

	return &testServer{
		server:    s,
		engine:    eng,
		scheduler: sched,
		tasks:     tasks,
		items:     items,
		runs:      runs,
		progress:  progress,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func validTaskBody() map[string]interface{} {
	return map[string]interface{}{
		"name":     "weekly-ml",
		"interval": "168h",
		"pipeline": map[string]interface{}{
			"query":               "machine learning",
			"relevance_threshold": 0.8,
			"enable_publish":      true,
		},
	}
}

func TestServer_CreateTask(t *testing.T) {
	t.Run("creates and registers a recurring task", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp taskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "weekly-ml", resp.Name)
		assert.Equal(t, "168h0m0s", resp.Interval)
		assert.True(t, resp.Enabled)
		assert.InDelta(t, 0.8, resp.Pipeline.RelevanceThreshold, 1e-9)
		// Defaults were applied.
		assert.Equal(t, "arxiv", resp.Pipeline.Source)
		assert.Equal(t, 3, resp.Pipeline.RetryAttempts)

		assert.Contains(t, ts.tasks.tasks, "weekly-ml")
		assert.Equal(t, []string{"weekly-ml"}, ts.scheduler.registered)
	})

	t.Run("ad hoc tasks are not registered with the scheduler", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		delete(body, "interval")

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, ts.scheduler.registered)
	})

	t.Run("explicit zero threshold is kept as all-pass", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["pipeline"] = map[string]interface{}{
			"query":               "machine learning",
			"relevance_threshold": 0,
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp taskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Zero(t, resp.Pipeline.RelevanceThreshold)
	})

	t.Run("absent threshold gets the default", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["pipeline"] = map[string]interface{}{"query": "machine learning"}

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp taskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.InDelta(t, domain.DefaultRelevanceThreshold, resp.Pipeline.RelevanceThreshold, 1e-9)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		ts := newTestServer()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["pipeline"] = map[string]interface{}{
			"query":     "machine learning",
			"treshhold": 0.8,
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a missing query", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["pipeline"] = map[string]interface{}{}

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an unparsable interval", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["interval"] = "every week"

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects translate without a target language", func(t *testing.T) {
		ts := newTestServer()
		body := validTaskBody()
		body["pipeline"] = map[string]interface{}{
			"query":            "machine learning",
			"enable_translate": true,
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		ts := newTestServer()
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody()).Code)

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestServer_TaskLifecycle(t *testing.T) {
	t.Run("get returns the task with busy flag", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())
		ts.engine.busy["weekly-ml"] = true

		rec := ts.do(t, http.MethodGet, "/api/v1/tasks/weekly-ml", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp taskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Busy)
	})

	t.Run("get returns 404 for unknown tasks", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodGet, "/api/v1/tasks/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update replaces the definition and re-anchors the schedule", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())

		body := validTaskBody()
		body["interval"] = "24h"
		rec := ts.do(t, http.MethodPut, "/api/v1/tasks/weekly-ml", body)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 24*time.Hour, ts.tasks.tasks["weekly-ml"].Interval)
		assert.Equal(t, []string{"weekly-ml"}, ts.scheduler.updated)
	})

	t.Run("pause and resume flip the enabled flag everywhere", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/weekly-ml/pause", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, ts.tasks.tasks["weekly-ml"].Enabled)
		assert.False(t, ts.scheduler.enabled["weekly-ml"])

		rec = ts.do(t, http.MethodPost, "/api/v1/tasks/weekly-ml/resume", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, ts.tasks.tasks["weekly-ml"].Enabled)
		assert.True(t, ts.scheduler.enabled["weekly-ml"])
	})

	t.Run("delete removes the task and its schedule entry", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())

		rec := ts.do(t, http.MethodDelete, "/api/v1/tasks/weekly-ml", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotContains(t, ts.tasks.tasks, "weekly-ml")
		assert.Equal(t, []string{"weekly-ml"}, ts.scheduler.unregistered)
	})
}

func TestServer_Runs(t *testing.T) {
	t.Run("submits a manual run", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/weekly-ml/runs", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "run-1", resp.RunID)
		assert.Equal(t, string(domain.RunTriggerManual), resp.Trigger)
		assert.Equal(t, []string{"weekly-ml"}, ts.engine.submitted)
	})

	t.Run("maps saturation to 503", func(t *testing.T) {
		ts := newTestServer()
		ts.do(t, http.MethodPost, "/api/v1/tasks/", validTaskBody())
		ts.engine.submitErr = domain.ErrEngineSaturated

		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/weekly-ml/runs", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("submitting for an unknown task returns 404", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodPost, "/api/v1/tasks/nope/runs", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancels an in-flight run", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodDelete, "/api/v1/runs/run-1", nil)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"run-1"}, ts.engine.cancelled)
	})

	t.Run("cancelling a finished run returns 409", func(t *testing.T) {
		ts := newTestServer()
		ts.engine.cancelErr = domain.ErrRunNotFound
		endedAt := time.Now().UTC()
		ts.runs.runs["run-1"] = &domain.Run{
			ID:       "run-1",
			TaskName: "weekly-ml",
			Outcome:  domain.RunOutcomeCompleted,
			EndedAt:  &endedAt,
		}

		rec := ts.do(t, http.MethodDelete, "/api/v1/runs/run-1", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("cancelling an unknown run returns 404", func(t *testing.T) {
		ts := newTestServer()
		ts.engine.cancelErr = domain.ErrRunNotFound

		rec := ts.do(t, http.MethodDelete, "/api/v1/runs/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("gets a run from the ledger", func(t *testing.T) {
		ts := newTestServer()
		ts.runs.runs["run-1"] = &domain.Run{
			ID:       "run-1",
			TaskName: "weekly-ml",
			Outcome:  domain.RunOutcomeCompleted,
			Counters: domain.RunCounters{ItemsSearched: 5, ItemsCompleted: 3},
		}

		rec := ts.do(t, http.MethodGet, "/api/v1/runs/run-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Outcome)
		assert.Equal(t, 3, resp.Counters.ItemsCompleted)
		assert.Nil(t, resp.ItemsProcessed)
	})

	t.Run("in-flight run reports live progress", func(t *testing.T) {
		ts := newTestServer()
		ts.runs.runs["run-1"] = &domain.Run{ID: "run-1", TaskName: "weekly-ml"}
		require.NoError(t, ts.progress.IncrProgress(context.Background(), "run-1", time.Minute))
		require.NoError(t, ts.progress.IncrProgress(context.Background(), "run-1", time.Minute))

		rec := ts.do(t, http.MethodGet, "/api/v1/runs/run-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Outcome)
		require.NotNil(t, resp.ItemsProcessed)
		assert.Equal(t, int64(2), *resp.ItemsProcessed)
	})

	t.Run("lists runs for a task", func(t *testing.T) {
		ts := newTestServer()
		ts.runs.runs["run-1"] = &domain.Run{ID: "run-1", TaskName: "weekly-ml"}

		rec := ts.do(t, http.MethodGet, "/api/v1/tasks/weekly-ml/runs?limit=10", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listRunsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.TotalCount)
		assert.Equal(t, 10, resp.Limit)
	})
}

func TestServer_Items(t *testing.T) {
	completedItem := func() *domain.Item {
		item := &domain.Item{
			SourceID: "arxiv:2501.01234",
			Title:    "A Paper",
			Status:   domain.ProcessingStatusCompleted,
			TaskName: "weekly-ml",
		}
		item.SetRelevance(0.91, "on topic")
		return item
	}

	t.Run("lists items with filters applied", func(t *testing.T) {
		ts := newTestServer()
		ts.items.items["arxiv:2501.01234"] = completedItem()

		rec := ts.do(t, http.MethodGet, "/api/v1/items/?task=weekly-ml&status=completed&filtered_out=false", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listItemsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "arxiv:2501.01234", resp.Items[0].SourceID)

		assert.Equal(t, "weekly-ml", ts.items.lastFilter.TaskName)
		require.NotNil(t, ts.items.lastFilter.Status)
		assert.Equal(t, domain.ProcessingStatusCompleted, *ts.items.lastFilter.Status)
		require.NotNil(t, ts.items.lastFilter.FilteredOut)
		assert.False(t, *ts.items.lastFilter.FilteredOut)
	})

	t.Run("rejects an invalid status filter", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodGet, "/api/v1/items/?status=exploded", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gets a single item", func(t *testing.T) {
		ts := newTestServer()
		ts.items.items["arxiv:2501.01234"] = completedItem()

		rec := ts.do(t, http.MethodGet, "/api/v1/items/arxiv:2501.01234", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp itemResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "A Paper", resp.Title)
		require.NotNil(t, resp.RelevanceScore)
		assert.InDelta(t, 0.91, *resp.RelevanceScore, 1e-9)
	})

	t.Run("queues deep analysis for a completed item", func(t *testing.T) {
		ts := newTestServer()
		ts.items.items["arxiv:2501.01234"] = completedItem()

		rec := ts.do(t, http.MethodPost, "/api/v1/items/arxiv:2501.01234/deep-analysis", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"arxiv:2501.01234"}, ts.engine.deepQueued)
		assert.Equal(t, domain.DeepAnalysisStatusPending, ts.items.items["arxiv:2501.01234"].DeepAnalysisStatus)
	})

	t.Run("rejects deep analysis for an unfinished item", func(t *testing.T) {
		ts := newTestServer()
		item := completedItem()
		item.Status = domain.ProcessingStatusInProgress
		ts.items.items["arxiv:2501.01234"] = item

		rec := ts.do(t, http.MethodPost, "/api/v1/items/arxiv:2501.01234/deep-analysis", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("deep analysis for an unknown item returns 404", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodPost, "/api/v1/items/arxiv:nope/deep-analysis", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
