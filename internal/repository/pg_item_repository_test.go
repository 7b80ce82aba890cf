package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Helper to create a valid item for testing.
func newTestItem() *domain.Item {
	now := time.Now().UTC()
	published := now.Add(-48 * time.Hour)
	return &domain.Item{
		SourceID:    "arxiv:2501.01234",
		Title:       "Attention Is Not All You Need",
		Abstract:    "We revisit attention mechanisms under resource constraints.",
		Authors:     []string{"Ada Lovelace", "Alan Turing"},
		Category:    "cs.LG",
		PublishedAt: &published,
		ContentURL:  "https://arxiv.org/abs/2501.01234",
		Status:      domain.ProcessingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func itemRowColumns() []string {
	return []string{
		"source_id", "title", "abstract", "authors", "category", "published_at", "content_url",
		"processing_status", "task_name", "run_id", "failed_stage", "failure_reason",
		"relevance_score", "relevance_justification", "filtered_out",
		"summary", "translation", "analysis",
		"deep_analysis_status", "deep_analysis", "deep_analysis_created_at", "deep_analysis_updated_at",
		"publish_remote_id", "publish_uploaded_at", "publish_content_bytes",
		"created_at", "updated_at",
	}
}

func itemRow(item *domain.Item) *pgxmock.Rows {
	authorsJSON, _ := json.Marshal(item.Authors)
	return pgxmock.NewRows(itemRowColumns()).AddRow(
		item.SourceID, item.Title, item.Abstract, authorsJSON, item.Category, item.PublishedAt, item.ContentURL,
		item.Status, item.TaskName, item.RunID, item.FailedStage, item.FailureReason,
		item.RelevanceScore, item.RelevanceJustification, item.FilteredOut,
		item.Summary, item.Translation, nil,
		nil, nil, nil, nil,
		nil, nil, nil,
		item.CreatedAt, item.UpdatedAt,
	)
}

func TestPgItemRepository_GetBySourceID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns item when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()

		mock.ExpectQuery("FROM items\\s+WHERE source_id").
			WithArgs(item.SourceID).
			WillReturnRows(itemRow(item))

		result, err := repo.GetBySourceID(ctx, item.SourceID)
		require.NoError(t, err)
		assert.Equal(t, item.SourceID, result.SourceID)
		assert.Equal(t, item.Authors, result.Authors)
		assert.Equal(t, domain.DeepAnalysisStatusNone, result.DeepAnalysisStatus)
		assert.Nil(t, result.Publish)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown item", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectQuery("FROM items\\s+WHERE source_id").
			WithArgs("arxiv:missing").
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetBySourceID(ctx, "arxiv:missing")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("returns validation error for empty source ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		result, err := repo.GetBySourceID(ctx, "")

		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgItemRepository_CreateOrClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new pending item", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()
		now := time.Now().UTC()

		mock.ExpectQuery("INSERT INTO items").
			WithArgs(
				item.SourceID, item.Title, item.Abstract, pgxmock.AnyArg(), item.Category,
				item.PublishedAt, item.ContentURL, "weekly-ml", "run-1",
			).
			WillReturnRows(pgxmock.NewRows([]string{"processing_status", "created_at", "updated_at"}).
				AddRow(domain.ProcessingStatusPending, now, now))

		err = repo.CreateOrClaim(ctx, item, "weekly-ml", "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ProcessingStatusPending, item.Status)
		assert.Equal(t, "weekly-ml", item.TaskName)
		assert.Equal(t, "run-1", item.RunID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns claim conflict when item exists and is not failed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()

		mock.ExpectQuery("INSERT INTO items").
			WithArgs(
				item.SourceID, item.Title, item.Abstract, pgxmock.AnyArg(), item.Category,
				item.PublishedAt, item.ContentURL, "weekly-ml", "run-2",
			).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT run_id FROM items").
			WithArgs(item.SourceID).
			WillReturnRows(pgxmock.NewRows([]string{"run_id"}).AddRow("run-1"))

		err = repo.CreateOrClaim(ctx, item, "weekly-ml", "run-2")
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

		var conflict *domain.ClaimConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, item.SourceID, conflict.SourceID)
		assert.Equal(t, "run-1", conflict.HeldBy)
	})

	t.Run("treats concurrent insert race as claim conflict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()

		mock.ExpectQuery("INSERT INTO items").
			WithArgs(
				item.SourceID, item.Title, item.Abstract, pgxmock.AnyArg(), item.Category,
				item.PublishedAt, item.ContentURL, "weekly-ml", "run-2",
			).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectQuery("SELECT run_id FROM items").
			WithArgs(item.SourceID).
			WillReturnRows(pgxmock.NewRows([]string{"run_id"}).AddRow("run-1"))

		err = repo.CreateOrClaim(ctx, item, "weekly-ml", "run-2")
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("returns validation error for missing identity", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()
		item.SourceID = "  "

		err = repo.CreateOrClaim(ctx, item, "weekly-ml", "run-1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgItemRepository_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("claims pending item for owning run", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:2501.01234", "run-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.Claim(ctx, "arxiv:2501.01234", "run-1")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns claim conflict when swap does not apply", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:2501.01234", "run-2").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT run_id FROM items").
			WithArgs("arxiv:2501.01234").
			WillReturnRows(pgxmock.NewRows([]string{"run_id"}).AddRow("run-1"))

		err = repo.Claim(ctx, "arxiv:2501.01234", "run-2")
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})
}

func TestPgItemRepository_MarkCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("completes in-progress item with outputs", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()
		item.Status = domain.ProcessingStatusInProgress
		item.SetRelevance(0.912, "directly on topic")
		item.Summary = "A summary."

		mock.ExpectExec("UPDATE items").
			WithArgs(
				item.RelevanceScore, item.RelevanceJustification, false,
				item.Summary, "", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				item.SourceID, "run-1",
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.MarkCompleted(ctx, item, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ProcessingStatusCompleted, item.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns claim conflict when run no longer owns item", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()

		mock.ExpectExec("UPDATE items").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT run_id FROM items").
			WithArgs(item.SourceID).
			WillReturnRows(pgxmock.NewRows([]string{"run_id"}).AddRow("run-9"))

		err = repo.MarkCompleted(ctx, item, "run-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})
}

func TestPgItemRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("records failing stage and reason", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("summarize", "provider returned 500 after 3 attempts", "arxiv:2501.01234", "run-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.MarkFailed(ctx, "arxiv:2501.01234", "run-1", "summarize", "provider returned 500 after 3 attempts")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgItemRepository_FindBy(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by task and status with count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		item := newTestItem()
		item.TaskName = "weekly-ml"
		status := domain.ProcessingStatusCompleted
		item.Status = status

		mock.ExpectQuery("SELECT COUNT").
			WithArgs("weekly-ml", status).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectQuery("ORDER BY updated_at").
			WithArgs("weekly-ml", status, 100, 0).
			WillReturnRows(itemRow(item))

		items, total, err := repo.FindBy(ctx, ItemFilter{TaskName: "weekly-ml", Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, item.SourceID, items[0].SourceID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgItemRepository_RequestDeepAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("flags completed item", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:2501.01234").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.RequestDeepAnalysis(ctx, "arxiv:2501.01234")
		require.NoError(t, err)
	})

	t.Run("rejects item that is not completed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:2501.01234").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT processing_status, deep_analysis_status FROM items").
			WithArgs("arxiv:2501.01234").
			WillReturnRows(pgxmock.NewRows([]string{"processing_status", "deep_analysis_status"}).
				AddRow(domain.ProcessingStatusInProgress, nil))

		err = repo.RequestDeepAnalysis(ctx, "arxiv:2501.01234")
		assert.ErrorIs(t, err, domain.ErrNotCompleted)
	})

	t.Run("is idempotent for already pending request", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		pending := domain.DeepAnalysisStatusPending

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:2501.01234").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT processing_status, deep_analysis_status FROM items").
			WithArgs("arxiv:2501.01234").
			WillReturnRows(pgxmock.NewRows([]string{"processing_status", "deep_analysis_status"}).
				AddRow(domain.ProcessingStatusCompleted, &pending))

		err = repo.RequestDeepAnalysis(ctx, "arxiv:2501.01234")
		assert.NoError(t, err)
	})

	t.Run("returns not found for unknown item", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs("arxiv:missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT processing_status, deep_analysis_status FROM items").
			WithArgs("arxiv:missing").
			WillReturnError(pgx.ErrNoRows)

		err = repo.RequestDeepAnalysis(ctx, "arxiv:missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgItemRepository_CompleteDeepAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("stores analysis on success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)
		analysis := domain.Analysis{Findings: "Strong empirical results.", Keywords: []string{"attention"}}

		mock.ExpectExec("UPDATE items").
			WithArgs(domain.DeepAnalysisStatusCompleted, pgxmock.AnyArg(), "arxiv:2501.01234").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.CompleteDeepAnalysis(ctx, "arxiv:2501.01234", analysis, true)
		require.NoError(t, err)
	})

	t.Run("records failure without analysis", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgItemRepository(mock)

		mock.ExpectExec("UPDATE items").
			WithArgs(domain.DeepAnalysisStatusFailed, pgxmock.AnyArg(), "arxiv:2501.01234").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.CompleteDeepAnalysis(ctx, "arxiv:2501.01234", domain.Analysis{}, false)
		require.NoError(t, err)
	})
}
