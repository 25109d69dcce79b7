package dto

import "github.com/noah-isme/fieldsync-api/internal/models"

// FieldReportRequest enqueues a fieldwork-summary export.
type FieldReportRequest struct {
	ReviewID string              `json:"reviewId" validate:"required"`
	Format   models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// FieldReportJobResponse is returned after enqueueing an export.
type FieldReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// FieldReportStatusResponse exposes job progress metadata.
type FieldReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
