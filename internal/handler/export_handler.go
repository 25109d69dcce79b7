package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/response"
)

type exportService interface {
	CreateJob(ctx context.Context, req dto.FieldReportRequest) (*dto.FieldReportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.FieldReportStatusResponse, error)
	Download(ctx context.Context, token string) (*os.File, string, models.ReportFormat, error)
}

// ExportHandler exposes fieldwork report endpoints.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Create godoc
// @Summary Queue a fieldwork summary export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.FieldReportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /field-reports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	var req dto.FieldReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Export job progress
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /field-reports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200
// @Router /field-reports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	file, filename, format, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}

	contentType := "text/csv"
	if format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
