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

type findingService interface {
	CreateFinding(ctx context.Context, req dto.CreateFindingRequest) (*models.DraftFinding, error)
	UpdateFinding(ctx context.Context, id string, req dto.UpdateFindingRequest) (*models.DraftFinding, error)
	DeleteFinding(ctx context.Context, id string) error
	ListFindings(ctx context.Context, reviewID string) ([]models.DraftFinding, error)
}

// FindingHandler exposes draft finding endpoints.
type FindingHandler struct {
	service findingService
}

// NewFindingHandler constructs the handler.
func NewFindingHandler(service findingService) *FindingHandler {
	return &FindingHandler{service: service}
}

// Create godoc
// @Summary Draft a finding
// @Tags Findings
// @Accept json
// @Produce json
// @Param payload body dto.CreateFindingRequest true "Finding payload"
// @Success 201 {object} response.Envelope
// @Router /findings [post]
func (h *FindingHandler) Create(c *gin.Context) {
	var req dto.CreateFindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid finding payload"))
		return
	}
	finding, err := h.service.CreateFinding(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, finding)
}

// List godoc
// @Summary Draft findings of one review
// @Tags Findings
// @Produce json
// @Param id path string true "Review ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/findings [get]
func (h *FindingHandler) List(c *gin.Context) {
	findings, err := h.service.ListFindings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, findings, nil)
}

// Update godoc
// @Summary Edit a draft finding
// @Tags Findings
// @Accept json
// @Produce json
// @Param id path string true "Finding ID"
// @Param payload body dto.UpdateFindingRequest true "Partial edit"
// @Success 200 {object} response.Envelope
// @Router /findings/{id} [patch]
func (h *FindingHandler) Update(c *gin.Context) {
	var req dto.UpdateFindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid finding payload"))
		return
	}
	finding, err := h.service.UpdateFinding(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, finding, nil)
}

// Delete godoc
// @Summary Delete a draft finding
// @Tags Findings
// @Param id path string true "Finding ID"
// @Success 204
// @Router /findings/{id} [delete]
func (h *FindingHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteFinding(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
