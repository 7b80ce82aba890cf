// Package engine executes submitted runs on a bounded worker pool backed by a
// fixed-depth queue. Submissions beyond capacity are rejected immediately
// rather than queued without bound; callers decide whether to retry.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/events"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
)

// Runner executes one run of a task's pipeline. Satisfied by
// pipeline.Executor.
type Runner interface {
	Execute(ctx context.Context, task *domain.TaskDefinition, run *domain.Run) (domain.RunCounters, error)
	ExecuteDeepAnalysis(ctx context.Context, sourceID string) error
}

// Config holds the engine's capacity settings.
type Config struct {
	// Workers is the number of concurrent run workers.
	Workers int
	// QueueDepth is the fixed depth of the pending queue.
	QueueDepth int
	// ShutdownTimeout bounds the drain wait during graceful shutdown before
	// in-flight runs are cancelled.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 16
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = time.Minute
	}
}

// request is one unit of queued work: either a task run or a deep-analysis
// request for a single item.
type request struct {
	run          *domain.Run
	task         *domain.TaskDefinition
	deepSourceID string
	ctx          context.Context
	cancel       context.CancelFunc
}

// Engine owns the worker pool and the in-flight run registry.
type Engine struct {
	cfg     Config
	runner  Runner
	ledger  repository.RunLedger
	events  events.Publisher
	metrics *observability.Metrics
	logger  zerolog.Logger

	queue chan *request
	wg    sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	active  map[string]*request
	busy    map[string]int
	stopped bool
}

// New creates an engine. Call Start before submitting work.
func New(cfg Config, runner Runner, ledger repository.RunLedger, ev events.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	if ev == nil {
		ev = events.NewNopPublisher()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		runner:     runner,
		ledger:     ledger,
		events:     ev,
		metrics:    metrics,
		logger:     logger.With().Str("component", "engine").Logger(),
		queue:      make(chan *request, cfg.QueueDepth),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		active:     make(map[string]*request),
		busy:       make(map[string]int),
	}
}

// Start launches the worker pool.
func (e *Engine) Start() {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.logger.Info().
		Int("workers", e.cfg.Workers).
		Int("queue_depth", e.cfg.QueueDepth).
		Msg("engine started")
}

// Submit enqueues one run of the task. It returns the created run immediately;
// execution happens on a worker. Returns domain.ErrEngineSaturated when the
// queue is full and domain.ErrEngineStopped after shutdown has begun.
func (e *Engine) Submit(task *domain.TaskDefinition, trigger domain.RunTrigger) (*domain.Run, error) {
	run := &domain.Run{
		ID:        uuid.NewString(),
		TaskName:  task.Name,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	req := &request{run: run, task: task, ctx: ctx, cancel: cancel}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		cancel()
		return nil, domain.ErrEngineStopped
	}
	select {
	case e.queue <- req:
		e.active[run.ID] = req
		e.busy[task.Name]++
	default:
		e.mu.Unlock()
		cancel()
		e.observeRejected()
		return nil, domain.ErrEngineSaturated
	}
	e.observeQueueDepth()
	e.mu.Unlock()

	return run, nil
}

// SubmitDeepAnalysis enqueues a deep-analysis request for one item. It shares
// the run queue and its capacity limits but does not create a ledger run.
func (e *Engine) SubmitDeepAnalysis(sourceID string) error {
	ctx, cancel := context.WithCancel(e.baseCtx)
	req := &request{deepSourceID: sourceID, ctx: ctx, cancel: cancel}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		cancel()
		return domain.ErrEngineStopped
	}
	select {
	case e.queue <- req:
		return nil
	default:
		cancel()
		e.observeRejected()
		return domain.ErrEngineSaturated
	}
}

// Cancel requests cancellation of an in-flight run. The run still finalizes
// through its worker, landing in the ledger with outcome cancelled.
// Returns domain.ErrRunNotFound if the run is not queued or running.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	req, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return domain.ErrRunNotFound
	}
	req.cancel()
	return nil
}

// TaskBusy reports whether the task has a queued or running run. The
// scheduler uses this to skip overlapping due times.
func (e *Engine) TaskBusy(taskName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy[taskName] > 0
}

// Shutdown stops accepting submissions and drains the queue. If the drain
// exceeds the configured timeout, in-flight runs are cancelled and finalize
// with outcome cancelled. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.queue)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Msg("engine drained")
	case <-time.After(e.cfg.ShutdownTimeout):
		e.logger.Warn().
			Dur("timeout", e.cfg.ShutdownTimeout).
			Msg("engine drain timed out, cancelling in-flight runs")
		e.baseCancel()
		<-done
	}
	e.baseCancel()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for req := range e.queue {
		e.observeQueueDepth()
		if req.deepSourceID != "" {
			e.runDeepAnalysis(req)
		} else {
			e.runTask(req)
		}
	}
}

// runTask executes one run end to end: ledger append, pipeline execution,
// ledger finalize, lifecycle events.
func (e *Engine) runTask(req *request) {
	run := req.run
	logger := observability.WithRunContext(e.logger, run.TaskName, run.ID)
	defer e.release(req)

	// Ledger writes survive run cancellation.
	storeCtx := context.WithoutCancel(req.ctx)

	if err := e.ledger.Append(storeCtx, run); err != nil {
		logger.Error().Err(err).Msg("failed to append run to ledger")
		return
	}

	e.observeStarted(string(run.Trigger))
	e.events.Publish(storeCtx, domain.Event{
		Type:       domain.EventRunStarted,
		TaskName:   run.TaskName,
		RunID:      run.ID,
		OccurredAt: time.Now().UTC(),
	})
	logger.Info().Str("trigger", string(run.Trigger)).Msg("run started")

	start := time.Now()
	counters, err := e.runner.Execute(req.ctx, req.task, run)

	outcome := domain.RunOutcomeCompleted
	reason := ""
	eventType := domain.EventRunCompleted
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCancelled):
		outcome = domain.RunOutcomeCancelled
		eventType = domain.EventRunCancelled
	default:
		outcome = domain.RunOutcomeFailed
		reason = err.Error()
		eventType = domain.EventRunFailed
	}

	endedAt := time.Now().UTC()
	if err := e.ledger.Finalize(storeCtx, run.ID, outcome, counters, endedAt, reason); err != nil {
		logger.Error().Err(err).Msg("failed to finalize run")
	}
	run.Outcome = outcome
	run.Counters = counters
	run.EndedAt = &endedAt
	run.FailureReason = reason

	e.observeOutcome(outcome, time.Since(start))
	e.events.Publish(storeCtx, domain.Event{
		Type:       eventType,
		TaskName:   run.TaskName,
		RunID:      run.ID,
		Reason:     reason,
		Counters:   &counters,
		OccurredAt: endedAt,
	})

	logger.Info().
		Str("outcome", string(outcome)).
		Dur("duration", time.Since(start)).
		Int("searched", counters.ItemsSearched).
		Int("completed", counters.ItemsCompleted).
		Int("filtered", counters.ItemsFiltered).
		Int("failed", counters.ItemsFailed).
		Int("skipped", counters.ItemsSkipped).
		Msg("run finished")
}

func (e *Engine) runDeepAnalysis(req *request) {
	defer req.cancel()
	logger := e.logger.With().Str("source_id", req.deepSourceID).Logger()
	if err := e.runner.ExecuteDeepAnalysis(req.ctx, req.deepSourceID); err != nil {
		logger.Error().Err(err).Msg("deep analysis request failed")
	}
}

// release removes the run from the in-flight registry.
func (e *Engine) release(req *request) {
	req.cancel()
	e.mu.Lock()
	delete(e.active, req.run.ID)
	if e.busy[req.task.Name] <= 1 {
		delete(e.busy, req.task.Name)
	} else {
		e.busy[req.task.Name]--
	}
	e.mu.Unlock()
}

func (e *Engine) observeQueueDepth() {
	if e.metrics != nil {
		e.metrics.EngineQueueDepth.Set(float64(len(e.queue)))
	}
}

func (e *Engine) observeRejected() {
	if e.metrics != nil {
		e.metrics.RunsRejected.Inc()
	}
}

func (e *Engine) observeStarted(trigger string) {
	if e.metrics != nil {
		e.metrics.RunsStarted.WithLabelValues(trigger).Inc()
	}
}

func (e *Engine) observeOutcome(outcome domain.RunOutcome, d time.Duration) {
	if e.metrics == nil {
		return
	}
	switch outcome {
	case domain.RunOutcomeCompleted:
		e.metrics.RunsCompleted.Inc()
	case domain.RunOutcomeFailed:
		e.metrics.RunsFailed.Inc()
	case domain.RunOutcomeCancelled:
		e.metrics.RunsCancelled.Inc()
	}
	e.metrics.RunDuration.Observe(d.Seconds())
}
