package models

import "time"

// SyncStatus is the derived aggregate the UI panel polls. It is recomputed
// from the queue and network state on demand, never persisted.
type SyncStatus struct {
	IsOnline          bool       `json:"isOnline"`
	IsSyncing         bool       `json:"isSyncing"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
	Pending           int        `json:"pending"`
	Failed            int        `json:"failed"`
	Conflicts         int        `json:"conflicts"`
	SyncedThisSession int        `json:"syncedThisSession"`
}

// SyncOutcome summarises one drain pass.
type SyncOutcome struct {
	Attempted  int  `json:"attempted"`
	Succeeded  int  `json:"succeeded"`
	Failed     int  `json:"failed"`
	Conflicted int  `json:"conflicted"`
	Deferred   int  `json:"deferred"`
	Skipped    bool `json:"skipped"`
}
