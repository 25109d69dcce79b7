package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

// EvidenceRepository stores captured media and its metadata. Blobs live in
// the same row as the metadata; list queries never select them.
type EvidenceRepository struct {
	db *sqlx.DB
}

func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func (r *EvidenceRepository) Create(ctx context.Context, ev *models.FieldEvidence) error {
	const query = `INSERT INTO field_evidence (id, checklist_item_id, review_id, type, blob, thumbnail_blob, mime_type, file_name, file_size, gps_latitude, gps_longitude, gps_accuracy, captured_at, annotations, checksum, sync_status)
VALUES (:id, :checklist_item_id, :review_id, :type, :blob, :thumbnail_blob, :mime_type, :file_name, :file_size, :gps_latitude, :gps_longitude, :gps_accuracy, :captured_at, :annotations, :checksum, :sync_status)`
	if _, err := r.db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("create field evidence: %w", err)
	}
	return nil
}

// GetByID returns metadata only; use GetBlob for the payload.
func (r *EvidenceRepository) GetByID(ctx context.Context, id string) (*models.FieldEvidence, error) {
	const query = `SELECT id, checklist_item_id, review_id, type, mime_type, file_name, file_size, gps_latitude, gps_longitude, gps_accuracy, captured_at, annotations, checksum, sync_status
FROM field_evidence WHERE id = ?`
	var ev models.FieldEvidence
	if err := r.db.GetContext(ctx, &ev, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get field evidence: %w", err)
	}
	return &ev, nil
}

// GetBlob loads the raw media payload. Returns ErrNotFound when the row is
// missing and a nil slice when the blob was pruned after upload.
func (r *EvidenceRepository) GetBlob(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	if err := r.db.GetContext(ctx, &blob, `SELECT blob FROM field_evidence WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evidence blob: %w", err)
	}
	return blob, nil
}

func (r *EvidenceRepository) ListByItem(ctx context.Context, checklistItemID string) ([]models.FieldEvidence, error) {
	const query = `SELECT id, checklist_item_id, review_id, type, mime_type, file_name, file_size, gps_latitude, gps_longitude, gps_accuracy, captured_at, annotations, checksum, sync_status
FROM field_evidence WHERE checklist_item_id = ? ORDER BY captured_at ASC, id ASC`
	var evs []models.FieldEvidence
	if err := r.db.SelectContext(ctx, &evs, query, checklistItemID); err != nil {
		return nil, fmt.Errorf("list evidence by item: %w", err)
	}
	return evs, nil
}

func (r *EvidenceRepository) ListByReview(ctx context.Context, reviewID string) ([]models.FieldEvidence, error) {
	const query = `SELECT id, checklist_item_id, review_id, type, mime_type, file_name, file_size, gps_latitude, gps_longitude, gps_accuracy, captured_at, annotations, checksum, sync_status
FROM field_evidence WHERE review_id = ? ORDER BY captured_at ASC, id ASC`
	var evs []models.FieldEvidence
	if err := r.db.SelectContext(ctx, &evs, query, reviewID); err != nil {
		return nil, fmt.Errorf("list evidence by review: %w", err)
	}
	return evs, nil
}

// UpdateAnnotations edits the only mutable evidence field. The blob itself
// is immutable once captured.
func (r *EvidenceRepository) UpdateAnnotations(ctx context.Context, id, annotations string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE field_evidence SET annotations = ?, sync_status = 'pending' WHERE id = ?`, annotations, id)
	if err != nil {
		return fmt.Errorf("update evidence annotations: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EvidenceRepository) SetSyncStatus(ctx context.Context, id string, status models.SyncState) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE field_evidence SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set evidence sync status: %w", err)
	}
	return nil
}

// ApplyServerState overwrites the mutable metadata from a server snapshot
// and marks the row synced. Blobs are immutable and never touched.
func (r *EvidenceRepository) ApplyServerState(ctx context.Context, id, annotations string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE field_evidence SET annotations = ?, sync_status = 'synced' WHERE id = ?`, annotations, id)
	if err != nil {
		return fmt.Errorf("apply evidence server state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneBlob drops the payload of a confirmed upload while keeping the
// metadata row, reclaiming device storage.
func (r *EvidenceRepository) PruneBlob(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE field_evidence SET blob = NULL, thumbnail_blob = NULL WHERE id = ? AND sync_status = 'synced'`, id); err != nil {
		return fmt.Errorf("prune evidence blob: %w", err)
	}
	return nil
}

// Delete removes a capture that was discarded before save confirmation.
func (r *EvidenceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM field_evidence WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete field evidence: %w", err)
	}
	return nil
}

// TotalBlobBytes sums stored payload sizes for the storage quota check.
func (r *EvidenceRepository) TotalBlobBytes(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	if err := r.db.GetContext(ctx, &total, `SELECT SUM(file_size) FROM field_evidence WHERE blob IS NOT NULL`); err != nil {
		return 0, fmt.Errorf("total evidence bytes: %w", err)
	}
	return total.Int64, nil
}

// CountByReview backs the review summary export.
func (r *EvidenceRepository) CountByReview(ctx context.Context, reviewID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM field_evidence WHERE review_id = ?`, reviewID); err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}
