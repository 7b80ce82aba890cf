package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/cache"
	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/events"
	"github.com/scholarwatch/paper-pipeline-service/internal/llm"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
	"github.com/scholarwatch/paper-pipeline-service/internal/publish"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
	"github.com/scholarwatch/paper-pipeline-service/internal/search"
)

// defaultClaimTTL bounds how long a cache mark outlives a crashed worker.
const defaultClaimTTL = 15 * time.Minute

// Assistant is the prompt-driven collaborator used by the scoring, summarize,
// translate and analyze stages. Satisfied by llm.Assistant.
type Assistant interface {
	ScoreRelevance(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResult, error)
	Summarize(ctx context.Context, req llm.SummarizeRequest) (string, error)
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalysisResult, error)
}

// SourceResolver resolves a configured source name to a search backend.
// Satisfied by search.Registry.
type SourceResolver interface {
	Resolve(name string) (search.Source, error)
}

// Deps bundles the collaborators an Executor needs.
type Deps struct {
	Sources   SourceResolver
	Assistant Assistant
	Publisher publish.Publisher
	Items     repository.ItemRepository
	Claims    cache.ClaimCache
	// ClaimTTL is the cache mark lifetime. Zero uses defaultClaimTTL.
	ClaimTTL time.Duration
	Events   events.Publisher
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Executor runs pipeline executions. It is stateless across runs and safe for
// concurrent use; all per-run state lives in the runExecution created by
// Execute.
type Executor struct {
	sources   SourceResolver
	assistant Assistant
	publisher publish.Publisher
	items     repository.ItemRepository
	claims    cache.ClaimCache
	claimTTL  time.Duration
	events    events.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(deps Deps) *Executor {
	claimTTL := deps.ClaimTTL
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	ev := deps.Events
	if ev == nil {
		ev = events.NewNopPublisher()
	}
	return &Executor{
		sources:   deps.Sources,
		assistant: deps.Assistant,
		publisher: deps.Publisher,
		items:     deps.Items,
		claims:    deps.Claims,
		claimTTL:  claimTTL,
		events:    ev,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// runExecution is the per-run state of one Execute call.
type runExecution struct {
	exec   *Executor
	task   *domain.TaskDefinition
	run    *domain.Run
	cfg    domain.PipelineConfig
	policy retryPolicy
	logger zerolog.Logger

	mu       sync.Mutex
	counters domain.RunCounters
}

// Execute runs the task's pipeline once, returning the per-item counters and
// the run's terminal error.
//
// A configuration or search failure fails the run before any item is touched.
// Item failures never fail the run; they are counted and recorded on the item.
// Cancellation stops the run between items and stages, fails any item caught
// mid-flight, and returns domain.ErrCancelled.
func (e *Executor) Execute(ctx context.Context, task *domain.TaskDefinition, run *domain.Run) (domain.RunCounters, error) {
	cfg := task.Pipeline
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return domain.RunCounters{}, err
	}

	source, err := e.sources.Resolve(cfg.Source)
	if err != nil {
		return domain.RunCounters{}, err
	}

	x := &runExecution{
		exec:   e,
		task:   task,
		run:    run,
		cfg:    cfg,
		policy: policyFromConfig(cfg),
		logger: observability.WithRunContext(e.logger, task.Name, run.ID),
	}
	return x.execute(ctx, source)
}

func (x *runExecution) execute(ctx context.Context, source search.Source) (domain.RunCounters, error) {
	e := x.exec

	if ctx.Err() != nil {
		return x.snapshot(), domain.ErrCancelled
	}

	// Source clients retry and rate-limit internally, so a search error here
	// is already final. The call runs detached from run cancellation; an
	// in-flight search completes or times out on its own terms.
	e.observeSearchRequest(x.cfg.Source)
	result, err := source.Search(context.WithoutCancel(ctx), search.Params{
		Query:      x.cfg.Query,
		MaxResults: x.cfg.MaxResults,
	})
	if err != nil {
		e.observeSearchFailure(x.cfg.Source)
		return x.snapshot(), err
	}
	e.observeSearchResults(x.cfg.Source, len(result.Items))
	if ctx.Err() != nil {
		return x.snapshot(), domain.ErrCancelled
	}

	x.mu.Lock()
	x.counters.ItemsSearched = len(result.Items)
	x.mu.Unlock()

	x.logger.Info().
		Int("candidates", len(result.Items)).
		Str("source", x.cfg.Source).
		Msg("search completed")

	sem := make(chan struct{}, x.cfg.ItemParallelism)
	var wg sync.WaitGroup
	for _, item := range result.Items {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(item *domain.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			x.processItem(ctx, item)
		}(item)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return x.snapshot(), domain.ErrCancelled
	}
	return x.snapshot(), nil
}

// processItem claims one candidate and drives it to a terminal status.
func (x *runExecution) processItem(ctx context.Context, item *domain.Item) {
	if ctx.Err() != nil {
		return
	}

	e := x.exec
	logger := observability.WithItemContext(x.logger, item.SourceID)

	// Live progress for dashboard polling; skipped and failed items count too.
	defer func() {
		if err := e.claims.IncrProgress(context.WithoutCancel(ctx), x.run.ID, e.claimTTL); err != nil {
			logger.Debug().Err(err).Msg("failed to record run progress")
		}
	}()

	// The cache mark is a cheap first-pass filter. When the cache is down the
	// store's CAS still guarantees single ownership, so errors only log.
	marked, err := e.claims.TryMark(ctx, item.SourceID, x.run.ID, e.claimTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("claim cache unavailable")
	} else if !marked {
		logger.Debug().Msg("item marked in flight elsewhere, skipping")
		x.recordSkipped()
		return
	}
	if marked {
		// Drop the mark once the item is terminal so a failed item can be
		// reopened before the TTL expires. The store remains authoritative.
		defer func() {
			if err := e.claims.Release(context.WithoutCancel(ctx), item.SourceID); err != nil {
				logger.Debug().Err(err).Msg("failed to release claim mark")
			}
		}()
	}

	if err := e.items.CreateOrClaim(ctx, item, x.task.Name, x.run.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			logger.Debug().Err(err).Msg("item owned by another run, skipping")
			x.recordSkipped()
			return
		}
		logger.Error().Err(err).Msg("failed to create or claim item")
		x.recordFailed()
		return
	}

	if err := e.items.Claim(ctx, item.SourceID, x.run.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			logger.Debug().Err(err).Msg("lost claim race, skipping")
			x.recordSkipped()
			return
		}
		logger.Error().Err(err).Msg("failed to claim item")
		x.recordFailed()
		return
	}
	item.Status = domain.ProcessingStatusInProgress

	filtered, failedStage, err := x.runStages(ctx, item, logger)
	if err != nil {
		x.failItem(ctx, item, failedStage, err, logger)
		return
	}

	// Terminal write is detached so an item that finished its last stage still
	// lands in completed when cancellation arrives at the same moment.
	if err := e.items.MarkCompleted(context.WithoutCancel(ctx), item, x.run.ID); err != nil {
		x.failItem(ctx, item, StageStore, err, logger)
		return
	}
	item.Status = domain.ProcessingStatusCompleted

	if filtered {
		logger.Info().
			Float64("score", *item.RelevanceScore).
			Float64("threshold", x.cfg.RelevanceThreshold).
			Msg("item filtered out below relevance threshold")
		x.recordFiltered()
		return
	}

	logger.Info().Msg("item completed")
	x.recordCompleted()
}

// runStages executes the enabled stages in order. It returns filtered=true
// when the item scored below the threshold and skipped the remaining stages.
// On error the returned stage names where processing stopped.
func (x *runExecution) runStages(ctx context.Context, item *domain.Item, logger zerolog.Logger) (filtered bool, failedStage string, err error) {
	e := x.exec
	cfg := x.cfg

	err = x.runWithRetry(ctx, logger, StageRelevance, func(ctx context.Context) error {
		res, scoreErr := e.assistant.ScoreRelevance(ctx, llm.ScoreRequest{
			Query:    cfg.Query,
			Title:    item.Title,
			Abstract: item.Abstract,
			Model:    cfg.ScoringModel,
		})
		if scoreErr != nil {
			return scoreErr
		}
		item.SetRelevance(res.Score, res.Justification)
		return nil
	})
	if err != nil {
		return false, StageRelevance, err
	}

	// Persist the score before gating so it survives later failures and is
	// visible to the dashboard while the item is still in flight. Store writes
	// for an item already in flight are detached from run cancellation.
	if err = e.items.UpdateOutputs(context.WithoutCancel(ctx), item, x.run.ID); err != nil {
		return false, StageStore, err
	}

	if *item.RelevanceScore < cfg.RelevanceThreshold {
		item.FilteredOut = true
		return true, "", nil
	}

	err = x.runWithRetry(ctx, logger, StageSummarize, func(ctx context.Context) error {
		summary, sumErr := e.assistant.Summarize(ctx, llm.SummarizeRequest{
			Title:    item.Title,
			Abstract: item.Abstract,
			Model:    cfg.SummaryModel,
		})
		if sumErr != nil {
			return sumErr
		}
		item.Summary = summary
		return nil
	})
	if err != nil {
		return false, StageSummarize, err
	}

	if cfg.EnableTranslate {
		err = x.runWithRetry(ctx, logger, StageTranslate, func(ctx context.Context) error {
			translation, trErr := e.assistant.Translate(ctx, item.Summary, cfg.TargetLanguage)
			if trErr != nil {
				return trErr
			}
			item.Translation = translation
			return nil
		})
		if err != nil {
			return false, StageTranslate, err
		}
	}

	if cfg.EnableAnalyze {
		err = x.runWithRetry(ctx, logger, StageAnalyze, func(ctx context.Context) error {
			res, anErr := e.assistant.Analyze(ctx, llm.AnalyzeRequest{
				Title:    item.Title,
				Abstract: item.Abstract,
				Summary:  item.Summary,
				Model:    cfg.SummaryModel,
			})
			if anErr != nil {
				return anErr
			}
			item.Analysis = toDomainAnalysis(res)
			return nil
		})
		if err != nil {
			return false, StageAnalyze, err
		}
	}

	if err = e.items.UpdateOutputs(context.WithoutCancel(ctx), item, x.run.ID); err != nil {
		return false, StageStore, err
	}

	if cfg.EnablePublish {
		err = x.runWithRetry(ctx, logger, StagePublish, func(ctx context.Context) error {
			receipt, pubErr := e.publisher.Publish(ctx, item)
			if pubErr != nil {
				return pubErr
			}
			item.MarkPublished(receipt.RemoteID, receipt.ContentBytes, receipt.UploadedAt)
			e.observePublishBytes(receipt.ContentBytes)
			return nil
		})
		if err != nil {
			return false, StagePublish, err
		}
	}

	return false, "", nil
}

// failItem records a hard failure on the item. The store write uses a context
// detached from run cancellation so a cancelled item still lands in failed.
func (x *runExecution) failItem(ctx context.Context, item *domain.Item, stage string, cause error, logger zerolog.Logger) {
	reason := cause.Error()
	if errors.Is(cause, domain.ErrCancelled) {
		reason = "run cancelled"
	}

	storeCtx := context.WithoutCancel(ctx)
	if err := x.exec.items.MarkFailed(storeCtx, item.SourceID, x.run.ID, stage, reason); err != nil {
		logger.Error().Err(err).Str("stage", stage).Msg("failed to mark item failed")
	}
	item.Status = domain.ProcessingStatusFailed
	item.FailedStage = stage
	item.FailureReason = reason

	logger.Error().Err(cause).Str("stage", stage).Msg("item failed")

	x.exec.events.Publish(storeCtx, domain.Event{
		Type:       domain.EventItemFailed,
		TaskName:   x.task.Name,
		RunID:      x.run.ID,
		SourceID:   item.SourceID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})

	x.recordFailed()
}

func (x *runExecution) snapshot() domain.RunCounters {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.counters
}

func (x *runExecution) recordSkipped() {
	x.mu.Lock()
	x.counters.ItemsSkipped++
	x.mu.Unlock()
	x.exec.observeItemSkipped()
}

func (x *runExecution) recordFiltered() {
	x.mu.Lock()
	x.counters.ItemsFiltered++
	x.mu.Unlock()
	x.exec.observeItemOutcome("filtered")
}

func (x *runExecution) recordCompleted() {
	x.mu.Lock()
	x.counters.ItemsCompleted++
	x.mu.Unlock()
	x.exec.observeItemOutcome("completed")
}

func (x *runExecution) recordFailed() {
	x.mu.Lock()
	x.counters.ItemsFailed++
	x.mu.Unlock()
	x.exec.observeItemOutcome("failed")
}

// toDomainAnalysis maps the provider response onto the stored analysis.
func toDomainAnalysis(res *llm.AnalysisResult) domain.Analysis {
	return domain.Analysis{
		Background:  res.Background,
		Objectives:  res.Objectives,
		Methods:     res.Methods,
		Findings:    res.Findings,
		Conclusions: res.Conclusions,
		Limitations: res.Limitations,
		FutureWork:  res.FutureWork,
		Keywords:    res.Keywords,
	}
}
