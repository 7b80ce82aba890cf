package pipeline

import (
	"context"
	"fmt"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/llm"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
)

// ExecuteDeepAnalysis runs the extended analysis for one completed item whose
// deep-analysis sub-status is pending. The outcome lands on the sub-status
// only; the item's processing status is not touched.
func (e *Executor) ExecuteDeepAnalysis(ctx context.Context, sourceID string) error {
	item, err := e.items.GetBySourceID(ctx, sourceID)
	if err != nil {
		return err
	}
	if item.DeepAnalysisStatus != domain.DeepAnalysisStatusPending {
		return fmt.Errorf("%w: deep analysis for %s is %s, expected pending",
			domain.ErrInvalidInput, sourceID, item.DeepAnalysisStatus)
	}

	logger := observability.WithItemContext(
		e.logger.With().Str("flow", "deep_analysis").Logger(), sourceID)

	x := &runExecution{
		exec: e,
		policy: retryPolicy{
			attempts:  domain.DefaultRetryAttempts,
			baseDelay: domain.DefaultRetryBaseDelay,
		},
		logger: logger,
	}

	var analysis domain.Analysis
	runErr := x.runWithRetry(ctx, logger, StageAnalyze, func(ctx context.Context) error {
		res, anErr := e.assistant.Analyze(ctx, llm.AnalyzeRequest{
			Title:    item.Title,
			Abstract: item.Abstract,
			Summary:  item.Summary,
			Deep:     true,
		})
		if anErr != nil {
			return anErr
		}
		analysis = toDomainAnalysis(res)
		return nil
	})

	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("deep analysis failed")
		if err := e.items.CompleteDeepAnalysis(storeCtx, sourceID, domain.Analysis{}, false); err != nil {
			logger.Error().Err(err).Msg("failed to record deep-analysis failure")
		}
		return runErr
	}

	if err := e.items.CompleteDeepAnalysis(storeCtx, sourceID, analysis, true); err != nil {
		return err
	}
	logger.Info().Msg("deep analysis completed")
	return nil
}
