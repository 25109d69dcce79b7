package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EntityType is the closed set of syncable entities. Queue draining, conflict
// lookup and payload application all switch exhaustively over this type, so
// adding a new entity is a compile-time visible change.
type EntityType string

const (
	EntityChecklistItem EntityType = "checklistItem"
	EntityFieldEvidence EntityType = "fieldEvidence"
	EntityDraftFinding  EntityType = "draftFinding"
)

// SyncAction enumerates queued mutation kinds.
type SyncAction string

const (
	ActionCreate SyncAction = "CREATE"
	ActionUpdate SyncAction = "UPDATE"
	ActionDelete SyncAction = "DELETE"
)

// SyncEntryStatus captures the queue-entry lifecycle. Entries that succeed
// are deleted rather than marked, so there is no "done" state.
type SyncEntryStatus string

const (
	// SyncEntryPending means the entry is awaiting transmission (or a retry).
	SyncEntryPending SyncEntryStatus = "pending"
	// SyncEntryFailed means retries are exhausted; only RetryFailed revives it.
	SyncEntryFailed SyncEntryStatus = "failed"
	// SyncEntryConflict means the server reported a version mismatch; only
	// the conflict resolver clears it.
	SyncEntryConflict SyncEntryStatus = "conflict"
)

// ConflictSentinel is the substring stored in a conflicted entry's error
// field. The UI layer scans for it to route entries to the resolver.
const ConflictSentinel = "Conflict"

// SyncPayload is the serialized entity snapshot carried by a queue entry.
type SyncPayload map[string]interface{}

// Value marshals the payload to JSON for persistence.
func (p SyncPayload) Value() (driver.Value, error) {
	if p == nil {
		p = SyncPayload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal sync payload: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals JSON payloads into the map.
func (p *SyncPayload) Scan(value interface{}) error {
	if value == nil {
		*p = SyncPayload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SyncPayload", value)
	}
	if len(data) == 0 {
		*p = SyncPayload{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal sync payload: %w", err)
	}
	return nil
}

// SyncQueueEntry is one pending mutation awaiting transmission.
//
// Entries are append-only: superseding local edits enqueue new entries rather
// than mutating earlier ones, and draining tolerates stale payloads. The
// newest entry per (EntityType, EntityID) is authoritative for retry.
type SyncQueueEntry struct {
	ID            string          `db:"id" json:"id"`
	EntityType    EntityType      `db:"entity_type" json:"entityType"`
	EntityID      string          `db:"entity_id" json:"entityId"`
	Action        SyncAction      `db:"action" json:"action"`
	Payload       SyncPayload     `db:"payload" json:"payload"`
	RetryCount    int             `db:"retry_count" json:"retryCount"`
	MaxRetries    int             `db:"max_retries" json:"maxRetries"`
	Status        SyncEntryStatus `db:"status" json:"status"`
	Error         *string         `db:"error" json:"error,omitempty"`
	ServerState   *string         `db:"server_state" json:"-"`
	NextAttemptAt *time.Time      `db:"next_attempt_at" json:"nextAttemptAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// EntityKey identifies the entity a queue entry belongs to.
type EntityKey struct {
	Type EntityType
	ID   string
}

// Key returns the entry's entity key.
func (e SyncQueueEntry) Key() EntityKey {
	return EntityKey{Type: e.EntityType, ID: e.EntityID}
}

// ValidEntityType reports whether t names a syncable entity.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityChecklistItem, EntityFieldEvidence, EntityDraftFinding:
		return true
	default:
		return false
	}
}
