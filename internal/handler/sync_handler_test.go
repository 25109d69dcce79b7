package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

type syncServiceMock struct {
	triggerResp *dto.SyncTriggerResponse
	triggerErr  error
	status      models.SyncStatus
	revived     int64
}

func (m *syncServiceMock) TriggerSync(ctx context.Context) (*dto.SyncTriggerResponse, error) {
	return m.triggerResp, m.triggerErr
}

func (m *syncServiceMock) RetryFailed(ctx context.Context) (int64, error) {
	return m.revived, nil
}

func (m *syncServiceMock) SyncStatus(ctx context.Context) (models.SyncStatus, error) {
	return m.status, nil
}

type conflictResolverMock struct {
	conflicts  []models.ConflictData
	resolveErr error
	resolved   []string
}

func (m *conflictResolverMock) List(ctx context.Context) ([]models.ConflictData, error) {
	return m.conflicts, nil
}

func (m *conflictResolverMock) Resolve(ctx context.Context, entryID string, resolution models.Resolution) error {
	if m.resolveErr != nil {
		return m.resolveErr
	}
	m.resolved = append(m.resolved, entryID)
	return nil
}

type queueReaderMock struct {
	entries []models.SyncQueueEntry
}

func (m *queueReaderMock) List(ctx context.Context, limit, offset int) ([]models.SyncQueueEntry, error) {
	return m.entries, nil
}

func (m *queueReaderMock) ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error) {
	var out []models.SyncQueueEntry
	for _, e := range m.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestSyncHandlerTrigger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &syncServiceMock{triggerResp: &dto.SyncTriggerResponse{
		Outcome: models.SyncOutcome{Attempted: 2, Succeeded: 2},
	}}
	handler := NewSyncHandler(svc, &conflictResolverMock{}, &queueReaderMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/sync", nil)

	handler.Trigger(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"succeeded":2`)
}

func TestSyncHandlerQueueRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSyncHandler(&syncServiceMock{}, &conflictResolverMock{}, &queueReaderMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/sync/queue?status=done", nil)

	handler.Queue(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandlerQueueFiltersByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &queueReaderMock{entries: []models.SyncQueueEntry{
		{ID: "q-1", Status: models.SyncEntryPending},
		{ID: "q-2", Status: models.SyncEntryFailed},
	}}
	handler := NewSyncHandler(&syncServiceMock{}, &conflictResolverMock{}, queue)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/sync/queue?status=failed", nil)

	handler.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "q-2")
	assert.NotContains(t, w.Body.String(), "q-1")
}

func TestSyncHandlerResolveConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &conflictResolverMock{}
	handler := NewSyncHandler(&syncServiceMock{}, resolver, &queueReaderMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.ResolveConflictRequest{Resolution: models.ResolutionKeepServer})
	c.Request, _ = http.NewRequest(http.MethodPost, "/sync/conflicts/q-1/resolve", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "q-1"}}

	handler.ResolveConflict(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"q-1"}, resolver.resolved)
}

func TestSyncHandlerResolveConflictNoServerState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &conflictResolverMock{resolveErr: appErrors.ErrNoServerState}
	handler := NewSyncHandler(&syncServiceMock{}, resolver, &queueReaderMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.ResolveConflictRequest{Resolution: models.ResolutionKeepServer})
	c.Request, _ = http.NewRequest(http.MethodPost, "/sync/conflicts/q-1/resolve", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "q-1"}}

	handler.ResolveConflict(c)
	assert.Equal(t, appErrors.ErrNoServerState.Status, w.Code)
}
