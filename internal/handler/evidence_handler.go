package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/response"
)

type captureService interface {
	Capture(ctx context.Context, req dto.CaptureEvidenceRequest) (*dto.CaptureEvidenceResponse, error)
}

type evidenceService interface {
	ListEvidence(ctx context.Context, checklistItemID string) ([]models.FieldEvidence, error)
	GetEvidenceBlob(ctx context.Context, id string) (*models.FieldEvidence, []byte, error)
	AnnotateEvidence(ctx context.Context, id string, req dto.AnnotateEvidenceRequest) (*models.FieldEvidence, error)
	DiscardEvidence(ctx context.Context, id string) error
}

// EvidenceHandler exposes media capture endpoints.
type EvidenceHandler struct {
	capture captureService
	service evidenceService
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(capture captureService, service evidenceService) *EvidenceHandler {
	return &EvidenceHandler{capture: capture, service: service}
}

// captureBody is the wire form of a capture. Blob fields arrive base64
// encoded and decode straight into byte slices.
type captureBody struct {
	ReviewID        string              `json:"reviewId"`
	Type            models.EvidenceType `json:"type"`
	MimeType        string              `json:"mimeType"`
	FileName        string              `json:"fileName"`
	Blob            []byte              `json:"blob"`
	Thumbnail       []byte              `json:"thumbnail"`
	DurationSeconds float64             `json:"durationSeconds"`
	Annotations     string              `json:"annotations"`
}

// Capture godoc
// @Summary Attach a media capture to a checklist item
// @Tags Evidence
// @Accept json
// @Produce json
// @Param id path string true "Checklist item ID"
// @Success 201 {object} response.Envelope
// @Router /checklist-items/{id}/evidence [post]
func (h *EvidenceHandler) Capture(c *gin.Context) {
	var body captureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid capture payload"))
		return
	}
	req := dto.CaptureEvidenceRequest{
		ChecklistItemID: c.Param("id"),
		ReviewID:        body.ReviewID,
		Type:            body.Type,
		Blob:            body.Blob,
		Thumbnail:       body.Thumbnail,
		MimeType:        body.MimeType,
		FileName:        body.FileName,
		Duration:        time.Duration(body.DurationSeconds * float64(time.Second)),
		Annotations:     body.Annotations,
	}
	result, err := h.capture.Capture(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary Evidence metadata for one checklist item
// @Tags Evidence
// @Produce json
// @Param id path string true "Checklist item ID"
// @Success 200 {object} response.Envelope
// @Router /checklist-items/{id}/evidence [get]
func (h *EvidenceHandler) List(c *gin.Context) {
	evs, err := h.service.ListEvidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evs, nil)
}

// Blob godoc
// @Summary Raw media payload of one capture
// @Tags Evidence
// @Produce octet-stream
// @Param id path string true "Evidence ID"
// @Success 200
// @Router /evidence/{id}/blob [get]
func (h *EvidenceHandler) Blob(c *gin.Context) {
	ev, blob, err := h.service.GetEvidenceBlob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+ev.FileName+`"`)
	c.Data(http.StatusOK, ev.MimeType, blob)
}

// Annotate godoc
// @Summary Replace the annotation overlay of a capture
// @Tags Evidence
// @Accept json
// @Produce json
// @Param id path string true "Evidence ID"
// @Param payload body dto.AnnotateEvidenceRequest true "Annotations"
// @Success 200 {object} response.Envelope
// @Router /evidence/{id}/annotations [patch]
func (h *EvidenceHandler) Annotate(c *gin.Context) {
	var req dto.AnnotateEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid annotation payload"))
		return
	}
	ev, err := h.service.AnnotateEvidence(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ev, nil)
}

// Discard godoc
// @Summary Discard an unsynced capture
// @Tags Evidence
// @Param id path string true "Evidence ID"
// @Success 204
// @Router /evidence/{id} [delete]
func (h *EvidenceHandler) Discard(c *gin.Context) {
	if err := h.service.DiscardEvidence(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
