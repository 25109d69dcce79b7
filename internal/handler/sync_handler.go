package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/response"
)

type syncService interface {
	TriggerSync(ctx context.Context) (*dto.SyncTriggerResponse, error)
	RetryFailed(ctx context.Context) (int64, error)
	SyncStatus(ctx context.Context) (models.SyncStatus, error)
}

type conflictResolver interface {
	List(ctx context.Context) ([]models.ConflictData, error)
	Resolve(ctx context.Context, entryID string, resolution models.Resolution) error
}

type queueReader interface {
	List(ctx context.Context, limit, offset int) ([]models.SyncQueueEntry, error)
	ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error)
}

// SyncHandler exposes the sync panel endpoints.
type SyncHandler struct {
	service   syncService
	conflicts conflictResolver
	queue     queueReader
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(service syncService, conflicts conflictResolver, queue queueReader) *SyncHandler {
	return &SyncHandler{service: service, conflicts: conflicts, queue: queue}
}

// Trigger godoc
// @Summary Run one sync pass now
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	result, err := h.service.TriggerSync(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Aggregate sync status
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.service.SyncStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Queue godoc
// @Summary List queued mutations
// @Tags Sync
// @Produce json
// @Param status query string false "Filter by entry status (pending|failed|conflict)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /sync/queue [get]
func (h *SyncHandler) Queue(c *gin.Context) {
	if raw := c.Query("status"); raw != "" {
		status := models.SyncEntryStatus(raw)
		switch status {
		case models.SyncEntryPending, models.SyncEntryFailed, models.SyncEntryConflict:
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown queue status"))
			return
		}
		entries, err := h.queue.ListByStatus(c.Request.Context(), status)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, entries, nil)
		return
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	entries, err := h.queue.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// RetryFailed godoc
// @Summary Revive exhausted queue entries
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/retry-failed [post]
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	revived, err := h.service.RetryFailed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RetryFailedResponse{Revived: revived}, nil)
}

// Conflicts godoc
// @Summary List conflicted entries with both sides
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/conflicts [get]
func (h *SyncHandler) Conflicts(c *gin.Context) {
	conflicts, err := h.conflicts.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// ResolveConflict godoc
// @Summary Resolve one conflicted entry
// @Tags Sync
// @Accept json
// @Produce json
// @Param id path string true "Queue entry ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution choice"
// @Success 204
// @Router /sync/conflicts/{id}/resolve [post]
func (h *SyncHandler) ResolveConflict(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
		return
	}
	if err := h.conflicts.Resolve(c.Request.Context(), c.Param("id"), req.Resolution); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
