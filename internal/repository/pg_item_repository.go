package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Compile-time interface verification.
var _ ItemRepository = (*PgItemRepository)(nil)

// PgItemRepository is a PostgreSQL implementation of ItemRepository.
type PgItemRepository struct {
	db DBTX
}

// NewPgItemRepository creates a new PostgreSQL item repository.
func NewPgItemRepository(db DBTX) *PgItemRepository {
	return &PgItemRepository{db: db}
}

const itemColumns = `source_id, title, abstract, authors, category, published_at, content_url,
		processing_status, task_name, run_id, failed_stage, failure_reason,
		relevance_score, relevance_justification, filtered_out,
		summary, translation, analysis,
		deep_analysis_status, deep_analysis, deep_analysis_created_at, deep_analysis_updated_at,
		publish_remote_id, publish_uploaded_at, publish_content_bytes,
		created_at, updated_at`

// GetBySourceID retrieves an item by its external identity.
func (r *PgItemRepository) GetBySourceID(ctx context.Context, sourceID string) (*domain.Item, error) {
	if sourceID == "" {
		return nil, domain.NewValidationError("source_id", "source ID is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM items WHERE source_id = $1`, itemColumns)

	row := r.db.QueryRow(ctx, query, sourceID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("item", sourceID)
		}
		return nil, fmt.Errorf("failed to get item by source ID: %w", err)
	}

	return item, nil
}

// CreateOrClaim inserts a new pending item for the run, or reopens an existing
// failed item. The conditional upsert only rewrites rows whose current status
// is failed; for any other existing status the statement affects zero rows and
// the caller gets a claim conflict, which the pipeline treats as a dedup skip.
func (r *PgItemRepository) CreateOrClaim(ctx context.Context, item *domain.Item, taskName, runID string) error {
	if item == nil {
		return domain.NewValidationError("item", "item cannot be nil")
	}
	if !item.HasIdentity() {
		return domain.NewValidationError("source_id", "source ID is required")
	}

	authorsJSON, err := json.Marshal(item.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}

	query := `
		INSERT INTO items (
			source_id, title, abstract, authors, category, published_at, content_url,
			processing_status, task_name, run_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9
		)
		ON CONFLICT (source_id) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			authors = EXCLUDED.authors,
			category = EXCLUDED.category,
			published_at = EXCLUDED.published_at,
			content_url = EXCLUDED.content_url,
			processing_status = 'pending',
			task_name = EXCLUDED.task_name,
			run_id = EXCLUDED.run_id,
			failed_stage = '',
			failure_reason = ''
		WHERE items.processing_status = 'failed'
		RETURNING processing_status, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		item.SourceID,
		item.Title,
		item.Abstract,
		authorsJSON,
		item.Category,
		item.PublishedAt,
		item.ContentURL,
		taskName,
		runID,
	).Scan(&item.Status, &item.CreatedAt, &item.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.claimConflict(ctx, item.SourceID)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Concurrent insert of the same identity won the race.
			return r.claimConflict(ctx, item.SourceID)
		}
		return fmt.Errorf("failed to create or reopen item: %w", err)
	}

	item.TaskName = taskName
	item.RunID = runID
	item.FailedStage = ""
	item.FailureReason = ""
	return nil
}

// Claim performs the pending -> in_progress compare-and-swap for the run.
func (r *PgItemRepository) Claim(ctx context.Context, sourceID, runID string) error {
	query := `
		UPDATE items
		SET processing_status = 'in_progress'
		WHERE source_id = $1 AND run_id = $2 AND processing_status = 'pending'`

	result, err := r.db.Exec(ctx, query, sourceID, runID)
	if err != nil {
		return fmt.Errorf("failed to claim item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.claimConflict(ctx, sourceID)
	}

	return nil
}

// UpdateOutputs persists stage outputs while the run still owns the item.
func (r *PgItemRepository) UpdateOutputs(ctx context.Context, item *domain.Item, runID string) error {
	if item == nil {
		return domain.NewValidationError("item", "item cannot be nil")
	}

	analysisJSON, err := marshalAnalysis(item.Analysis)
	if err != nil {
		return err
	}

	query := `
		UPDATE items
		SET relevance_score = $1,
			relevance_justification = $2,
			summary = $3,
			translation = $4,
			analysis = $5,
			publish_remote_id = $6,
			publish_uploaded_at = $7,
			publish_content_bytes = $8
		WHERE source_id = $9 AND run_id = $10 AND processing_status = 'in_progress'`

	remoteID, uploadedAt, contentBytes := publishColumns(item.Publish)
	result, err := r.db.Exec(ctx, query,
		item.RelevanceScore,
		item.RelevanceJustification,
		item.Summary,
		item.Translation,
		analysisJSON,
		remoteID,
		uploadedAt,
		contentBytes,
		item.SourceID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item outputs: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.claimConflict(ctx, item.SourceID)
	}

	return nil
}

// MarkCompleted performs the in_progress -> completed transition and persists
// the final outputs in the same statement.
func (r *PgItemRepository) MarkCompleted(ctx context.Context, item *domain.Item, runID string) error {
	if item == nil {
		return domain.NewValidationError("item", "item cannot be nil")
	}

	analysisJSON, err := marshalAnalysis(item.Analysis)
	if err != nil {
		return err
	}

	query := `
		UPDATE items
		SET processing_status = 'completed',
			relevance_score = $1,
			relevance_justification = $2,
			filtered_out = $3,
			summary = $4,
			translation = $5,
			analysis = $6,
			publish_remote_id = $7,
			publish_uploaded_at = $8,
			publish_content_bytes = $9,
			failed_stage = '',
			failure_reason = ''
		WHERE source_id = $10 AND run_id = $11 AND processing_status = 'in_progress'`

	remoteID, uploadedAt, contentBytes := publishColumns(item.Publish)
	result, err := r.db.Exec(ctx, query,
		item.RelevanceScore,
		item.RelevanceJustification,
		item.FilteredOut,
		item.Summary,
		item.Translation,
		analysisJSON,
		remoteID,
		uploadedAt,
		contentBytes,
		item.SourceID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.claimConflict(ctx, item.SourceID)
	}

	item.Status = domain.ProcessingStatusCompleted
	return nil
}

// MarkFailed performs the in_progress -> failed transition, recording which
// stage gave up and why.
func (r *PgItemRepository) MarkFailed(ctx context.Context, sourceID, runID, failedStage, reason string) error {
	query := `
		UPDATE items
		SET processing_status = 'failed',
			failed_stage = $1,
			failure_reason = $2
		WHERE source_id = $3 AND run_id = $4 AND processing_status = 'in_progress'`

	result, err := r.db.Exec(ctx, query, failedStage, reason, sourceID, runID)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.claimConflict(ctx, sourceID)
	}

	return nil
}

// FindBy retrieves items matching the filter criteria.
func (r *PgItemRepository) FindBy(ctx context.Context, filter ItemFilter) ([]*domain.Item, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.TaskName != "" {
		conditions = append(conditions, fmt.Sprintf("task_name = $%d", argIndex))
		args = append(args, filter.TaskName)
		argIndex++
	}

	if filter.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", argIndex))
		args = append(args, filter.RunID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("processing_status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.FilteredOut != nil {
		conditions = append(conditions, fmt.Sprintf("filtered_out = $%d", argIndex))
		args = append(args, *filter.FilteredOut)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM items %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM items
		%s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		itemColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Item, 0, filter.Limit)
	for rows.Next() {
		item, err := scanItemFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating items: %w", err)
	}

	return items, totalCount, nil
}

// RequestDeepAnalysis flags a completed item for deep analysis. Items whose
// base processing is not completed are rejected, and an already-pending
// request is left untouched so it is not queued twice.
func (r *PgItemRepository) RequestDeepAnalysis(ctx context.Context, sourceID string) error {
	query := `
		UPDATE items
		SET deep_analysis_status = 'pending',
			deep_analysis_created_at = COALESCE(deep_analysis_created_at, NOW()),
			deep_analysis_updated_at = NOW()
		WHERE source_id = $1
			AND processing_status = 'completed'
			AND (deep_analysis_status IS NULL OR deep_analysis_status IN ('none', 'failed'))`

	result, err := r.db.Exec(ctx, query, sourceID)
	if err != nil {
		return fmt.Errorf("failed to request deep analysis: %w", err)
	}

	if result.RowsAffected() == 0 {
		var status domain.ProcessingStatus
		var deepStatus *domain.DeepAnalysisStatus
		err := r.db.QueryRow(ctx,
			`SELECT processing_status, deep_analysis_status FROM items WHERE source_id = $1`,
			sourceID,
		).Scan(&status, &deepStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewNotFoundError("item", sourceID)
			}
			return fmt.Errorf("failed to inspect item for deep analysis: %w", err)
		}
		if status != domain.ProcessingStatusCompleted {
			return fmt.Errorf("item %s has status %s: %w", sourceID, status, domain.ErrNotCompleted)
		}
		// Already pending or completed; treat as idempotent success.
		return nil
	}

	return nil
}

// CompleteDeepAnalysis records the terminal deep-analysis state for an item.
func (r *PgItemRepository) CompleteDeepAnalysis(ctx context.Context, sourceID string, analysis domain.Analysis, succeeded bool) error {
	status := domain.DeepAnalysisStatusFailed
	var analysisJSON []byte
	var err error
	if succeeded {
		status = domain.DeepAnalysisStatusCompleted
		analysisJSON, err = json.Marshal(analysis)
		if err != nil {
			return fmt.Errorf("failed to marshal deep analysis: %w", err)
		}
	}

	query := `
		UPDATE items
		SET deep_analysis_status = $1,
			deep_analysis = $2,
			deep_analysis_updated_at = NOW()
		WHERE source_id = $3 AND deep_analysis_status = 'pending'`

	result, err := r.db.Exec(ctx, query, status, analysisJSON, sourceID)
	if err != nil {
		return fmt.Errorf("failed to complete deep analysis: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("pending deep analysis", sourceID)
	}

	return nil
}

// claimConflict builds the conflict error for a lost CAS, looking up who holds
// the item so the caller can log it. Lookup failures fall back to the bare
// sentinel.
func (r *PgItemRepository) claimConflict(ctx context.Context, sourceID string) error {
	var holder string
	err := r.db.QueryRow(ctx, `SELECT run_id FROM items WHERE source_id = $1`, sourceID).Scan(&holder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("item", sourceID)
		}
		return domain.ErrAlreadyClaimed
	}
	return domain.NewClaimConflictError(sourceID, holder)
}

// marshalAnalysis serializes an analysis for storage, mapping the zero value
// to SQL NULL.
func marshalAnalysis(a domain.Analysis) ([]byte, error) {
	if a.Empty() {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return data, nil
}

// publishColumns flattens optional publish tracking into nullable columns.
func publishColumns(p *domain.PublishInfo) (remoteID *string, uploadedAt *time.Time, contentBytes *int) {
	if p == nil {
		return nil, nil, nil
	}
	return &p.RemoteID, &p.UploadedAt, &p.ContentBytes
}

// itemScanDest holds the destination pointers for scanning an Item row.
type itemScanDest struct {
	item             domain.Item
	authorsJSON      []byte
	analysisJSON     []byte
	deepAnalysisJSON []byte
	deepStatus       *domain.DeepAnalysisStatus
	publishRemoteID  *string
	publishAt        *time.Time
	publishBytes     *int
}

// destinations returns the slice of pointers for Scan operations.
func (d *itemScanDest) destinations() []interface{} {
	return []interface{}{
		&d.item.SourceID, &d.item.Title, &d.item.Abstract, &d.authorsJSON, &d.item.Category,
		&d.item.PublishedAt, &d.item.ContentURL,
		&d.item.Status, &d.item.TaskName, &d.item.RunID, &d.item.FailedStage, &d.item.FailureReason,
		&d.item.RelevanceScore, &d.item.RelevanceJustification, &d.item.FilteredOut,
		&d.item.Summary, &d.item.Translation, &d.analysisJSON,
		&d.deepStatus, &d.deepAnalysisJSON, &d.item.DeepAnalysisCreatedAt, &d.item.DeepAnalysisUpdatedAt,
		&d.publishRemoteID, &d.publishAt, &d.publishBytes,
		&d.item.CreatedAt, &d.item.UpdatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields and folds
// nullable columns into domain types.
func (d *itemScanDest) finalize() (*domain.Item, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.item.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}

	if len(d.analysisJSON) > 0 {
		if err := json.Unmarshal(d.analysisJSON, &d.item.Analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
	}

	if len(d.deepAnalysisJSON) > 0 {
		if err := json.Unmarshal(d.deepAnalysisJSON, &d.item.DeepAnalysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deep analysis: %w", err)
		}
	}

	d.item.DeepAnalysisStatus = domain.DeepAnalysisStatusNone
	if d.deepStatus != nil {
		d.item.DeepAnalysisStatus = *d.deepStatus
	}

	if d.publishRemoteID != nil && d.publishAt != nil {
		bytes := 0
		if d.publishBytes != nil {
			bytes = *d.publishBytes
		}
		d.item.Publish = &domain.PublishInfo{
			RemoteID:     *d.publishRemoteID,
			UploadedAt:   *d.publishAt,
			ContentBytes: bytes,
		}
	}

	return &d.item, nil
}

// scanItem scans a single row into an Item.
func scanItem(row pgx.Row) (*domain.Item, error) {
	var dest itemScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanItemFromRows scans the current row from pgx.Rows into an Item.
func scanItemFromRows(rows pgx.Rows) (*domain.Item, error) {
	var dest itemScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
