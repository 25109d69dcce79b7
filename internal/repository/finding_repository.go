package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

// FindingRepository stores draft findings written offline.
type FindingRepository struct {
	db *sqlx.DB
}

func NewFindingRepository(db *sqlx.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// Upsert writes a finding, replacing any existing row with the same id.
func (r *FindingRepository) Upsert(ctx context.Context, f *models.DraftFinding) error {
	const query = `INSERT INTO draft_findings (id, review_id, checklist_item_id, title, description, severity, updated_at, sync_status)
VALUES (:id, :review_id, :checklist_item_id, :title, :description, :severity, :updated_at, :sync_status)
ON CONFLICT(id) DO UPDATE SET
    review_id = excluded.review_id,
    checklist_item_id = excluded.checklist_item_id,
    title = excluded.title,
    description = excluded.description,
    severity = excluded.severity,
    updated_at = excluded.updated_at,
    sync_status = excluded.sync_status`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("upsert draft finding: %w", err)
	}
	return nil
}

func (r *FindingRepository) GetByID(ctx context.Context, id string) (*models.DraftFinding, error) {
	const query = `SELECT id, review_id, checklist_item_id, title, description, severity, updated_at, sync_status
FROM draft_findings WHERE id = ?`
	var f models.DraftFinding
	if err := r.db.GetContext(ctx, &f, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get draft finding: %w", err)
	}
	return &f, nil
}

func (r *FindingRepository) ListByReview(ctx context.Context, reviewID string) ([]models.DraftFinding, error) {
	const query = `SELECT id, review_id, checklist_item_id, title, description, severity, updated_at, sync_status
FROM draft_findings WHERE review_id = ? ORDER BY updated_at DESC, id ASC`
	var fs []models.DraftFinding
	if err := r.db.SelectContext(ctx, &fs, query, reviewID); err != nil {
		return nil, fmt.Errorf("list draft findings: %w", err)
	}
	return fs, nil
}

// Update applies a partial edit; nil fields stay untouched.
func (r *FindingRepository) Update(ctx context.Context, id string, title, description *string, severity *models.FindingSeverity) (*models.DraftFinding, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if title != nil {
		f.Title = *title
	}
	if description != nil {
		f.Description = *description
	}
	if severity != nil {
		f.Severity = *severity
	}
	f.UpdatedAt = time.Now().UTC()
	f.SyncStatus = models.SyncStatePending

	const query = `UPDATE draft_findings SET title = :title, description = :description, severity = :severity, updated_at = :updated_at, sync_status = :sync_status
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return nil, fmt.Errorf("update draft finding: %w", err)
	}
	return f, nil
}

func (r *FindingRepository) SetSyncStatus(ctx context.Context, id string, status models.SyncState) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE draft_findings SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set finding sync status: %w", err)
	}
	return nil
}

func (r *FindingRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM draft_findings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft finding: %w", err)
	}
	return nil
}

func (r *FindingRepository) CountByReview(ctx context.Context, reviewID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM draft_findings WHERE review_id = ?`, reviewID); err != nil {
		return 0, fmt.Errorf("count draft findings: %w", err)
	}
	return n, nil
}
