package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/response"
)

type checklistService interface {
	InitializeForReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error)
	ListChecklist(ctx context.Context, reviewID string) ([]models.ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, id string, req dto.UpdateChecklistItemRequest) (*models.ChecklistItem, error)
	CloseReview(ctx context.Context, reviewID string) (int64, error)
}

// ChecklistHandler exposes the review checklist endpoints.
type ChecklistHandler struct {
	service checklistService
}

// NewChecklistHandler constructs the handler.
func NewChecklistHandler(service checklistService) *ChecklistHandler {
	return &ChecklistHandler{service: service}
}

// Initialize godoc
// @Summary Prepare a review for offline fieldwork
// @Tags Checklist
// @Produce json
// @Param id path string true "Review ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/initialize [post]
func (h *ChecklistHandler) Initialize(c *gin.Context) {
	items, err := h.service.InitializeForReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary Review checklist
// @Tags Checklist
// @Produce json
// @Param id path string true "Review ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/checklist [get]
func (h *ChecklistHandler) List(c *gin.Context) {
	items, err := h.service.ListChecklist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpdateItem godoc
// @Summary Edit one checklist item
// @Tags Checklist
// @Accept json
// @Produce json
// @Param id path string true "Checklist item ID"
// @Param payload body dto.UpdateChecklistItemRequest true "Partial edit"
// @Success 200 {object} response.Envelope
// @Router /checklist-items/{id} [patch]
func (h *ChecklistHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid checklist payload"))
		return
	}
	item, err := h.service.UpdateChecklistItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Close godoc
// @Summary Archive a review's checklist
// @Tags Checklist
// @Produce json
// @Param id path string true "Review ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/close [post]
func (h *ChecklistHandler) Close(c *gin.Context) {
	archived, err := h.service.CloseReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"archived": archived}, nil)
}
