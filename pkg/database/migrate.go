package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS checklist_items (
    id              TEXT PRIMARY KEY,
    review_id       TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    is_completed    INTEGER NOT NULL DEFAULT 0,
    notes           TEXT NOT NULL DEFAULT '',
    completed_at    TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL,
    sync_status     TEXT NOT NULL DEFAULT 'pending',
    archived        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checklist_items_review ON checklist_items(review_id);

CREATE TABLE IF NOT EXISTS field_evidence (
    id                TEXT PRIMARY KEY,
    checklist_item_id TEXT NOT NULL,
    review_id         TEXT NOT NULL,
    type              TEXT NOT NULL,
    blob              BLOB,
    thumbnail_blob    BLOB,
    mime_type         TEXT NOT NULL DEFAULT '',
    file_name         TEXT NOT NULL DEFAULT '',
    file_size         INTEGER NOT NULL DEFAULT 0,
    gps_latitude      REAL,
    gps_longitude     REAL,
    gps_accuracy      REAL,
    captured_at       TIMESTAMP NOT NULL,
    annotations       TEXT NOT NULL DEFAULT '',
    checksum          TEXT NOT NULL DEFAULT '',
    sync_status       TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_field_evidence_review ON field_evidence(review_id);
CREATE INDEX IF NOT EXISTS idx_field_evidence_item ON field_evidence(checklist_item_id);

CREATE TABLE IF NOT EXISTS draft_findings (
    id                TEXT PRIMARY KEY,
    review_id         TEXT NOT NULL,
    checklist_item_id TEXT,
    title             TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    severity          TEXT NOT NULL DEFAULT 'minor',
    updated_at        TIMESTAMP NOT NULL,
    sync_status       TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_draft_findings_review ON draft_findings(review_id);

CREATE TABLE IF NOT EXISTS sync_queue (
    id              TEXT PRIMARY KEY,
    entity_type     TEXT NOT NULL,
    entity_id       TEXT NOT NULL,
    action          TEXT NOT NULL,
    payload         TEXT NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    max_retries     INTEGER NOT NULL DEFAULT 3,
    status          TEXT NOT NULL DEFAULT 'pending',
    error           TEXT,
    server_state    TEXT,
    next_attempt_at TIMESTAMP,
    created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_sync_queue_created ON sync_queue(created_at);

CREATE TABLE IF NOT EXISTS field_report_jobs (
    id            TEXT PRIMARY KEY,
    review_id     TEXT NOT NULL,
    format        TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'QUEUED',
    progress      INTEGER NOT NULL DEFAULT 0,
    result_url    TEXT,
    error_message TEXT,
    created_at    TIMESTAMP NOT NULL,
    finished_at   TIMESTAMP
);
`

// Migrate creates the local store schema when missing. SQLite DDL is
// idempotent here, so this runs unconditionally at startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate local store: %w", err)
	}
	return nil
}
