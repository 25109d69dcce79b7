package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/response"
)

type preflightRunner interface {
	Run(ctx context.Context, reviewID string) models.PreflightReport
}

// PreflightHandler exposes the pre-fieldwork capability checks.
type PreflightHandler struct {
	service preflightRunner
}

// NewPreflightHandler constructs the handler.
func NewPreflightHandler(service preflightRunner) *PreflightHandler {
	return &PreflightHandler{service: service}
}

// Run godoc
// @Summary Run preflight checks for a review
// @Tags Preflight
// @Produce json
// @Param id path string true "Review ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/preflight [get]
func (h *PreflightHandler) Run(c *gin.Context) {
	report := h.service.Run(c.Request.Context(), c.Param("id"))
	response.JSON(c, http.StatusOK, report, nil)
}
