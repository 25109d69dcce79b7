package dto

import "github.com/noah-isme/fieldsync-api/internal/models"

// ResolveConflictRequest picks a resolution for one conflicted queue entry.
type ResolveConflictRequest struct {
	Resolution models.Resolution `json:"resolution" validate:"required,oneof=keep_mine keep_server"`
}

// SyncTriggerResponse summarises a manually triggered drain pass.
type SyncTriggerResponse struct {
	Outcome models.SyncOutcome `json:"outcome"`
	Status  models.SyncStatus  `json:"status"`
}

// RetryFailedResponse reports how many exhausted entries were revived.
type RetryFailedResponse struct {
	Revived int64 `json:"revived"`
}
