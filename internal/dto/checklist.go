package dto

import "time"

// InitializeReviewRequest prepares a review for offline fieldwork.
type InitializeReviewRequest struct {
	ReviewID string `json:"reviewId" validate:"required"`
}

// UpdateChecklistItemRequest captures a partial checklist edit. Nil fields
// are left untouched.
type UpdateChecklistItemRequest struct {
	IsCompleted *bool      `json:"isCompleted,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
