package dto

import "github.com/noah-isme/fieldsync-api/internal/models"

// CreateFindingRequest drafts a finding during fieldwork.
type CreateFindingRequest struct {
	ReviewID        string                 `json:"reviewId" validate:"required"`
	ChecklistItemID *string                `json:"checklistItemId,omitempty"`
	Title           string                 `json:"title" validate:"required"`
	Description     string                 `json:"description"`
	Severity        models.FindingSeverity `json:"severity" validate:"required,oneof=observation minor major"`
}

// UpdateFindingRequest captures a partial finding edit.
type UpdateFindingRequest struct {
	Title       *string                 `json:"title,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Severity    *models.FindingSeverity `json:"severity,omitempty"`
}
