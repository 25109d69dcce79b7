package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

// QueueRepository persists the durable log of pending local mutations.
type QueueRepository struct {
	db       *sqlx.DB
	coalesce bool
}

// NewQueueRepository constructs the repository. When coalesce is true,
// enqueueing supersedes earlier pending entries for the same entity so only
// the latest payload is transmitted; conflicted entries are never superseded
// because the resolver owns them.
func NewQueueRepository(db *sqlx.DB, coalesce bool) *QueueRepository {
	return &QueueRepository{db: db, coalesce: coalesce}
}

// Enqueue appends an entry with retryCount=0.
func (r *QueueRepository) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.SyncEntryPending
	}
	if entry.MaxRetries <= 0 {
		entry.MaxRetries = 3
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if r.coalesce {
		const supersede = `DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND status != 'conflict'`
		if _, err := r.db.ExecContext(ctx, supersede, entry.EntityType, entry.EntityID); err != nil {
			return fmt.Errorf("supersede queue entries: %w", err)
		}
	}

	const query = `INSERT INTO sync_queue (id, entity_type, entity_id, action, payload, retry_count, max_retries, status, error, server_state, next_attempt_at, created_at)
VALUES (:id, :entity_type, :entity_id, :action, :payload, :retry_count, :max_retries, :status, :error, :server_state, :next_attempt_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("enqueue sync entry: %w", err)
	}
	return nil
}

// ListPending returns pending entries in creation order (FIFO, oldest first)
// so earlier edits of an entity are transmitted before later ones.
func (r *QueueRepository) ListPending(ctx context.Context) ([]models.SyncQueueEntry, error) {
	const query = `SELECT id, entity_type, entity_id, action, payload, retry_count, max_retries, status, error, server_state, next_attempt_at, created_at
FROM sync_queue WHERE status = 'pending' ORDER BY created_at ASC, id ASC`
	var entries []models.SyncQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list pending sync entries: %w", err)
	}
	return entries, nil
}

// ListByStatus returns entries in a given lifecycle state, oldest first.
func (r *QueueRepository) ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error) {
	const query = `SELECT id, entity_type, entity_id, action, payload, retry_count, max_retries, status, error, server_state, next_attempt_at, created_at
FROM sync_queue WHERE status = ? ORDER BY created_at ASC, id ASC`
	var entries []models.SyncQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, status); err != nil {
		return nil, fmt.Errorf("list sync entries by status: %w", err)
	}
	return entries, nil
}

// List returns all entries oldest first, for the manual retry/resolve panel.
func (r *QueueRepository) List(ctx context.Context, limit, offset int) ([]models.SyncQueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, entity_type, entity_id, action, payload, retry_count, max_retries, status, error, server_state, next_attempt_at, created_at
FROM sync_queue ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	var entries []models.SyncQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list sync entries: %w", err)
	}
	return entries, nil
}

// GetByID returns one entry.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*models.SyncQueueEntry, error) {
	const query = `SELECT id, entity_type, entity_id, action, payload, retry_count, max_retries, status, error, server_state, next_attempt_at, created_at
FROM sync_queue WHERE id = ?`
	var entry models.SyncQueueEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sync entry: %w", err)
	}
	return &entry, nil
}

// Delete removes a successfully transmitted or superseded entry.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete sync entry: %w", err)
	}
	return nil
}

// DeleteForEntity removes every outstanding entry for one entity. The
// keep-server resolution uses it so the entity is not re-sent.
func (r *QueueRepository) DeleteForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("delete entity sync entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordFailure updates retry bookkeeping after a failed attempt. When the
// ceiling is reached the entry flips to the terminal failed state and will
// not be retried automatically.
func (r *QueueRepository) RecordFailure(ctx context.Context, id string, retryCount int, status models.SyncEntryStatus, errMsg string, nextAttemptAt *time.Time) error {
	const query = `UPDATE sync_queue SET retry_count = ?, status = ?, error = ?, next_attempt_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, retryCount, status, errMsg, nextAttemptAt, id); err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	return nil
}

// MarkConflict tags an entry with the conflict sentinel and the best-effort
// server snapshot. The entry stays queued until the resolver acts.
func (r *QueueRepository) MarkConflict(ctx context.Context, id, errMsg string, serverState *string) error {
	const query = `UPDATE sync_queue SET status = ?, error = ?, server_state = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.SyncEntryConflict, errMsg, serverState, id); err != nil {
		return fmt.Errorf("mark sync conflict: %w", err)
	}
	return nil
}

// Requeue returns a conflicted or failed entry to pending with fresh retry
// bookkeeping (used by keep-mine resolutions).
func (r *QueueRepository) Requeue(ctx context.Context, id string, payload models.SyncPayload) error {
	const query = `UPDATE sync_queue SET status = 'pending', retry_count = 0, error = NULL, server_state = NULL, next_attempt_at = NULL, payload = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, payload, id); err != nil {
		return fmt.Errorf("requeue sync entry: %w", err)
	}
	return nil
}

// ResetFailed resets retryCount for every entry that exhausted its retries
// and returns how many were revived. Backs the manual "retry all" action.
func (r *QueueRepository) ResetFailed(ctx context.Context) (int64, error) {
	const query = `UPDATE sync_queue SET retry_count = 0, status = 'pending', error = NULL, next_attempt_at = NULL
WHERE status = 'failed' OR (status = 'pending' AND retry_count >= max_retries)`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset failed sync entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountByStatus returns entry counts per lifecycle state for the aggregate
// SyncStatus.
func (r *QueueRepository) CountByStatus(ctx context.Context) (map[models.SyncEntryStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS n FROM sync_queue GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count sync entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.SyncEntryStatus]int)
	for rows.Next() {
		var status models.SyncEntryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan sync entry count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync entry counts: %w", err)
	}
	return counts, nil
}
