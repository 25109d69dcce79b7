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

// ErrNotFound is returned when a row does not exist in the local store.
var ErrNotFound = errors.New("record not found")

// ChecklistRepository reads and writes checklist items in the local store.
type ChecklistRepository struct {
	db *sqlx.DB
}

func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

// Upsert writes an item, replacing any existing row with the same id. The
// bootstrap path and the keep-server resolution both go through it.
func (r *ChecklistRepository) Upsert(ctx context.Context, item *models.ChecklistItem) error {
	const query = `INSERT INTO checklist_items (id, review_id, title, is_completed, notes, completed_at, updated_at, sync_status, archived)
VALUES (:id, :review_id, :title, :is_completed, :notes, :completed_at, :updated_at, :sync_status, :archived)
ON CONFLICT(id) DO UPDATE SET
    review_id = excluded.review_id,
    title = excluded.title,
    is_completed = excluded.is_completed,
    notes = excluded.notes,
    completed_at = excluded.completed_at,
    updated_at = excluded.updated_at,
    sync_status = excluded.sync_status,
    archived = excluded.archived`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("upsert checklist item: %w", err)
	}
	return nil
}

func (r *ChecklistRepository) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	const query = `SELECT id, review_id, title, is_completed, notes, completed_at, updated_at, sync_status, archived
FROM checklist_items WHERE id = ?`
	var item models.ChecklistItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checklist item: %w", err)
	}
	return &item, nil
}

// ListByReview returns the non-archived items of one review in title order.
func (r *ChecklistRepository) ListByReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error) {
	const query = `SELECT id, review_id, title, is_completed, notes, completed_at, updated_at, sync_status, archived
FROM checklist_items WHERE review_id = ? AND archived = 0 ORDER BY title ASC, id ASC`
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query, reviewID); err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	return items, nil
}

// Update applies a partial edit; nil fields stay untouched. The write always
// refreshes updated_at and flips sync_status back to pending.
func (r *ChecklistRepository) Update(ctx context.Context, id string, isCompleted *bool, notes *string, completedAt *time.Time) (*models.ChecklistItem, error) {
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if isCompleted != nil {
		item.IsCompleted = *isCompleted
		if *isCompleted {
			item.CompletedAt = completedAt
			if completedAt == nil {
				now := time.Now().UTC()
				item.CompletedAt = &now
			}
		} else {
			item.CompletedAt = nil
		}
	}
	if notes != nil {
		item.Notes = *notes
	}
	item.UpdatedAt = time.Now().UTC()
	item.SyncStatus = models.SyncStatePending

	const query = `UPDATE checklist_items SET is_completed = :is_completed, notes = :notes, completed_at = :completed_at, updated_at = :updated_at, sync_status = :sync_status
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return nil, fmt.Errorf("update checklist item: %w", err)
	}
	return item, nil
}

// SetSyncStatus flips one item's sync marker.
func (r *ChecklistRepository) SetSyncStatus(ctx context.Context, id string, status models.SyncState) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE checklist_items SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set checklist sync status: %w", err)
	}
	return nil
}

// ArchiveForReview soft-deletes a review's items once the review closes.
func (r *ChecklistRepository) ArchiveForReview(ctx context.Context, reviewID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE checklist_items SET archived = 1 WHERE review_id = ?`, reviewID)
	if err != nil {
		return 0, fmt.Errorf("archive checklist items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountByReview backs the review-data preflight probe.
func (r *ChecklistRepository) CountByReview(ctx context.Context, reviewID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM checklist_items WHERE review_id = ? AND archived = 0`, reviewID); err != nil {
		return 0, fmt.Errorf("count checklist items: %w", err)
	}
	return n, nil
}
