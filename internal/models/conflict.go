package models

import (
	"encoding/json"
	"time"
)

// Resolution enumerates the two supported conflict outcomes. Merging is
// deliberately not offered; a conflicted entity is resolved whole.
type Resolution string

const (
	// ResolutionKeepMine re-enqueues the local payload and returns the entity to pending.
	ResolutionKeepMine Resolution = "keep_mine"
	// ResolutionKeepServer overwrites local fields with the server snapshot.
	ResolutionKeepServer Resolution = "keep_server"
)

// ConflictData is a transient view pairing a conflicted queue entry's local
// snapshot with the server's state for the same entity. It is built on demand
// for the resolution UI and never persisted on its own.
type ConflictData struct {
	EntryID       string          `json:"entryId"`
	EntityType    EntityType      `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Action        SyncAction      `json:"action"`
	LocalPayload  SyncPayload     `json:"localPayload"`
	ServerState   json.RawMessage `json:"serverState,omitempty"`
	HasServerData bool            `json:"hasServerData"`
	Error         string          `json:"error,omitempty"`
	DetectedAt    time.Time       `json:"detectedAt"`
}

// ValidResolution reports whether r is a supported outcome.
func ValidResolution(r Resolution) bool {
	return r == ResolutionKeepMine || r == ResolutionKeepServer
}
