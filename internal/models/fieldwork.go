package models

import "time"

// SyncState tracks how a locally stored entity relates to the server copy.
type SyncState string

const (
	// SyncStatePending marks local state that differs from the last known server state.
	SyncStatePending SyncState = "pending"
	// SyncStateSynced marks local state confirmed by the server.
	SyncStateSynced SyncState = "synced"
	// SyncStateConflict marks local state rejected by the server with a version mismatch.
	SyncStateConflict SyncState = "conflict"
)

// EvidenceType enumerates supported capture media.
type EvidenceType string

const (
	EvidencePhoto     EvidenceType = "PHOTO"
	EvidenceVoiceNote EvidenceType = "VOICE_NOTE"
	EvidenceVideo     EvidenceType = "VIDEO"
)

// FindingSeverity grades a draft finding raised during fieldwork.
type FindingSeverity string

const (
	SeverityObservation FindingSeverity = "observation"
	SeverityMinor       FindingSeverity = "minor"
	SeverityMajor       FindingSeverity = "major"
)

// ChecklistItem is one fieldwork checklist entry tied to a review.
// Items are never hard-deleted locally; they are archived when the review
// closes so the queue history stays resolvable.
type ChecklistItem struct {
	ID          string     `db:"id" json:"id"`
	ReviewID    string     `db:"review_id" json:"reviewId"`
	Title       string     `db:"title" json:"title"`
	IsCompleted bool       `db:"is_completed" json:"isCompleted"`
	Notes       string     `db:"notes" json:"notes"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	SyncStatus  SyncState  `db:"sync_status" json:"syncStatus"`
	Archived    bool       `db:"archived" json:"archived"`
}

// FieldEvidence is a captured media artifact attached to a checklist item.
// The blob is immutable once created; after a confirmed upload the blob may
// be pruned locally while the metadata row is kept.
type FieldEvidence struct {
	ID              string       `db:"id" json:"id"`
	ChecklistItemID string       `db:"checklist_item_id" json:"checklistItemId"`
	ReviewID        string       `db:"review_id" json:"reviewId"`
	Type            EvidenceType `db:"type" json:"type"`
	Blob            []byte       `db:"blob" json:"-"`
	ThumbnailBlob   []byte       `db:"thumbnail_blob" json:"-"`
	MimeType        string       `db:"mime_type" json:"mimeType"`
	FileName        string       `db:"file_name" json:"fileName"`
	FileSize        int64        `db:"file_size" json:"fileSize"`
	GPSLatitude     *float64     `db:"gps_latitude" json:"gpsLatitude,omitempty"`
	GPSLongitude    *float64     `db:"gps_longitude" json:"gpsLongitude,omitempty"`
	GPSAccuracy     *float64     `db:"gps_accuracy" json:"gpsAccuracy,omitempty"`
	CapturedAt      time.Time    `db:"captured_at" json:"capturedAt"`
	Annotations     string       `db:"annotations" json:"annotations"`
	Checksum        string       `db:"checksum" json:"checksum"`
	SyncStatus      SyncState    `db:"sync_status" json:"syncStatus"`
}

// DraftFinding is an offline-drafted finding awaiting upload.
type DraftFinding struct {
	ID              string          `db:"id" json:"id"`
	ReviewID        string          `db:"review_id" json:"reviewId"`
	ChecklistItemID *string         `db:"checklist_item_id" json:"checklistItemId,omitempty"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	Severity        FindingSeverity `db:"severity" json:"severity"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
	SyncStatus      SyncState       `db:"sync_status" json:"syncStatus"`
}

// Pagination carries list metadata in response envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// ValidEvidenceType reports whether t is a known capture medium.
func ValidEvidenceType(t EvidenceType) bool {
	switch t {
	case EvidencePhoto, EvidenceVoiceNote, EvidenceVideo:
		return true
	default:
		return false
	}
}
