package dto

import (
	"time"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

// CaptureEvidenceRequest carries a media capture to attach to a checklist
// item. The blob arrives base64-decoded by the handler; Duration is only
// meaningful for voice notes and video.
type CaptureEvidenceRequest struct {
	ChecklistItemID string              `json:"checklistItemId" validate:"required"`
	ReviewID        string              `json:"reviewId" validate:"required"`
	Type            models.EvidenceType `json:"type" validate:"required"`
	Blob            []byte              `json:"-"`
	Thumbnail       []byte              `json:"-"`
	MimeType        string              `json:"mimeType" validate:"required"`
	FileName        string              `json:"fileName"`
	Duration        time.Duration       `json:"-"`
	Annotations     string              `json:"annotations"`
}

// CaptureEvidenceResponse reports the stored capture plus any non-blocking
// capture warning (long recordings near the cap).
type CaptureEvidenceResponse struct {
	Evidence *models.FieldEvidence `json:"evidence"`
	Warning  string                `json:"warning,omitempty"`
}

// AnnotateEvidenceRequest edits the annotation overlay of a capture.
type AnnotateEvidenceRequest struct {
	Annotations string `json:"annotations" validate:"required"`
}
