package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/events"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
)

// fakeRunner scripts pipeline executions. When block is non-nil, Execute
// parks until the channel is closed or the run context is cancelled.
type fakeRunner struct {
	mu        sync.Mutex
	block     chan struct{}
	started   chan string
	counters  domain.RunCounters
	err       error
	deepCalls []string
}

func (r *fakeRunner) Execute(ctx context.Context, _ *domain.TaskDefinition, run *domain.Run) (domain.RunCounters, error) {
	if r.started != nil {
		r.started <- run.ID
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return domain.RunCounters{}, domain.ErrCancelled
		}
	}
	if ctx.Err() != nil {
		return domain.RunCounters{}, domain.ErrCancelled
	}
	return r.counters, r.err
}

func (r *fakeRunner) ExecuteDeepAnalysis(_ context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deepCalls = append(r.deepCalls, sourceID)
	return nil
}

func (r *fakeRunner) deep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deepCalls...)
}

// fakeLedger is an in-memory append-only run ledger.
type fakeLedger struct {
	mu   sync.Mutex
	runs map[string]*domain.Run
}

var _ repository.RunLedger = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{runs: make(map[string]*domain.Run)}
}

func (l *fakeLedger) Append(_ context.Context, run *domain.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[run.ID]; ok {
		return domain.NewAlreadyExistsError("run", run.ID)
	}
	copied := *run
	l.runs[run.ID] = &copied
	return nil
}

func (l *fakeLedger) Finalize(_ context.Context, runID string, outcome domain.RunOutcome, counters domain.RunCounters, endedAt time.Time, failureReason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if run.Terminal() {
		return domain.NewAlreadyExistsError("run outcome", runID)
	}
	run.Outcome = outcome
	run.Counters = counters
	run.EndedAt = &endedAt
	run.FailureReason = failureReason
	return nil
}

func (l *fakeLedger) Get(_ context.Context, runID string) (*domain.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (l *fakeLedger) ListByTask(context.Context, string, int, int) ([]*domain.Run, int64, error) {
	return nil, 0, nil
}

func (l *fakeLedger) outcome(runID string) domain.RunOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run, ok := l.runs[runID]; ok {
		return run.Outcome
	}
	return ""
}

func testTask(name string) *domain.TaskDefinition {
	return &domain.TaskDefinition{
		Name:    name,
		Enabled: true,
		Pipeline: domain.PipelineConfig{
			Query: "machine learning",
		},
	}
}

func newEngine(t *testing.T, cfg Config, runner Runner, ledger repository.RunLedger, recorder *events.Recorder) *Engine {
	t.Helper()
	var ev events.Publisher
	if recorder != nil {
		ev = recorder
	}
	e := New(cfg, runner, ledger, ev, nil, zerolog.Nop())
	e.Start()
	return e
}

func waitOutcome(t *testing.T, ledger *fakeLedger, runID string, want domain.RunOutcome) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ledger.outcome(runID) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_Submit(t *testing.T) {
	t.Run("executes a run and finalizes the ledger", func(t *testing.T) {
		ledger := newFakeLedger()
		recorder := events.NewRecorder()
		runner := &fakeRunner{counters: domain.RunCounters{ItemsSearched: 3, ItemsCompleted: 2, ItemsFiltered: 1}}
		e := newEngine(t, Config{Workers: 2, QueueDepth: 4}, runner, ledger, recorder)
		defer e.Shutdown()

		run, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerManual)
		require.NoError(t, err)
		require.NotEmpty(t, run.ID)

		waitOutcome(t, ledger, run.ID, domain.RunOutcomeCompleted)

		stored, err := ledger.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunCounters{ItemsSearched: 3, ItemsCompleted: 2, ItemsFiltered: 1}, stored.Counters)
		assert.NotNil(t, stored.EndedAt)
		assert.Empty(t, stored.FailureReason)

		require.Eventually(t, func() bool {
			return len(recorder.Events()) == 2
		}, 2*time.Second, 10*time.Millisecond)
		published := recorder.Events()
		assert.Equal(t, domain.EventRunStarted, published[0].Type)
		assert.Equal(t, domain.EventRunCompleted, published[1].Type)
		require.NotNil(t, published[1].Counters)
		assert.Equal(t, 2, published[1].Counters.ItemsCompleted)
	})

	t.Run("records a failed run with its reason", func(t *testing.T) {
		ledger := newFakeLedger()
		runner := &fakeRunner{err: errors.New("search exploded")}
		e := newEngine(t, Config{Workers: 1, QueueDepth: 2}, runner, ledger, nil)
		defer e.Shutdown()

		run, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerScheduled)
		require.NoError(t, err)

		waitOutcome(t, ledger, run.ID, domain.RunOutcomeFailed)

		stored, err := ledger.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Contains(t, stored.FailureReason, "search exploded")
	})

	t.Run("rejects submissions beyond capacity", func(t *testing.T) {
		ledger := newFakeLedger()
		runner := &fakeRunner{block: make(chan struct{}), started: make(chan string, 4)}
		e := newEngine(t, Config{Workers: 1, QueueDepth: 1}, runner, ledger, nil)
		defer e.Shutdown()

		running, err := e.Submit(testTask("task-a"), domain.RunTriggerManual)
		require.NoError(t, err)
		<-runner.started

		queued, err := e.Submit(testTask("task-b"), domain.RunTriggerManual)
		require.NoError(t, err)

		_, err = e.Submit(testTask("task-c"), domain.RunTriggerManual)
		assert.ErrorIs(t, err, domain.ErrEngineSaturated)

		close(runner.block)
		waitOutcome(t, ledger, running.ID, domain.RunOutcomeCompleted)
		waitOutcome(t, ledger, queued.ID, domain.RunOutcomeCompleted)
	})

	t.Run("rejects submissions after shutdown", func(t *testing.T) {
		ledger := newFakeLedger()
		e := newEngine(t, Config{Workers: 1, QueueDepth: 1}, &fakeRunner{}, ledger, nil)
		e.Shutdown()

		_, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerManual)
		assert.ErrorIs(t, err, domain.ErrEngineStopped)

		err = e.SubmitDeepAnalysis("arxiv:2501.00001")
		assert.ErrorIs(t, err, domain.ErrEngineStopped)
	})
}

func TestEngine_Cancel(t *testing.T) {
	t.Run("cancels an in-flight run", func(t *testing.T) {
		ledger := newFakeLedger()
		recorder := events.NewRecorder()
		runner := &fakeRunner{block: make(chan struct{}), started: make(chan string, 1)}
		e := newEngine(t, Config{Workers: 1, QueueDepth: 2}, runner, ledger, recorder)
		defer e.Shutdown()

		run, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerManual)
		require.NoError(t, err)
		<-runner.started

		require.NoError(t, e.Cancel(run.ID))
		waitOutcome(t, ledger, run.ID, domain.RunOutcomeCancelled)

		require.Eventually(t, func() bool {
			for _, event := range recorder.Events() {
				if event.Type == domain.EventRunCancelled {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("returns run not found for unknown runs", func(t *testing.T) {
		e := newEngine(t, Config{Workers: 1, QueueDepth: 1}, &fakeRunner{}, newFakeLedger(), nil)
		defer e.Shutdown()

		assert.ErrorIs(t, e.Cancel("no-such-run"), domain.ErrRunNotFound)
	})
}

func TestEngine_TaskBusy(t *testing.T) {
	ledger := newFakeLedger()
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan string, 1)}
	e := newEngine(t, Config{Workers: 1, QueueDepth: 2}, runner, ledger, nil)
	defer e.Shutdown()

	assert.False(t, e.TaskBusy("weekly-ml"))

	run, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerScheduled)
	require.NoError(t, err)
	<-runner.started

	assert.True(t, e.TaskBusy("weekly-ml"))
	assert.False(t, e.TaskBusy("other-task"))

	close(runner.block)
	waitOutcome(t, ledger, run.ID, domain.RunOutcomeCompleted)

	require.Eventually(t, func() bool {
		return !e.TaskBusy("weekly-ml")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_Shutdown(t *testing.T) {
	t.Run("drains queued runs before returning", func(t *testing.T) {
		ledger := newFakeLedger()
		runner := &fakeRunner{counters: domain.RunCounters{ItemsCompleted: 1}}
		e := newEngine(t, Config{Workers: 1, QueueDepth: 4, ShutdownTimeout: 5 * time.Second}, runner, ledger, nil)

		first, err := e.Submit(testTask("task-a"), domain.RunTriggerManual)
		require.NoError(t, err)
		second, err := e.Submit(testTask("task-b"), domain.RunTriggerManual)
		require.NoError(t, err)

		e.Shutdown()

		assert.Equal(t, domain.RunOutcomeCompleted, ledger.outcome(first.ID))
		assert.Equal(t, domain.RunOutcomeCompleted, ledger.outcome(second.ID))
	})

	t.Run("cancels in-flight runs when the drain times out", func(t *testing.T) {
		ledger := newFakeLedger()
		runner := &fakeRunner{block: make(chan struct{}), started: make(chan string, 1)}
		e := newEngine(t, Config{Workers: 1, QueueDepth: 2, ShutdownTimeout: 50 * time.Millisecond}, runner, ledger, nil)

		run, err := e.Submit(testTask("weekly-ml"), domain.RunTriggerManual)
		require.NoError(t, err)
		<-runner.started

		e.Shutdown()

		assert.Equal(t, domain.RunOutcomeCancelled, ledger.outcome(run.ID))
	})
}

func TestEngine_SubmitDeepAnalysis(t *testing.T) {
	runner := &fakeRunner{}
	e := newEngine(t, Config{Workers: 1, QueueDepth: 2}, runner, newFakeLedger(), nil)
	defer e.Shutdown()

	require.NoError(t, e.SubmitDeepAnalysis("arxiv:2501.00001"))

	require.Eventually(t, func() bool {
		deep := runner.deep()
		return len(deep) == 1 && deep[0] == "arxiv:2501.00001"
	}, 2*time.Second, 10*time.Millisecond)
}
