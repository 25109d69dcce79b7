package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	"github.com/noah-isme/fieldsync-api/pkg/config"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

type mockCaptureEvidence struct {
	created []models.FieldEvidence
	used    int64
}

func (m *mockCaptureEvidence) Create(ctx context.Context, ev *models.FieldEvidence) error {
	m.created = append(m.created, *ev)
	return nil
}

func (m *mockCaptureEvidence) TotalBlobBytes(ctx context.Context) (int64, error) {
	return m.used, nil
}

type mockChecklistReader struct {
	items map[string]models.ChecklistItem
}

func (m *mockChecklistReader) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	if item, ok := m.items[id]; ok {
		return &item, nil
	}
	return nil, repository.ErrNotFound
}

type mockCaptureQueue struct {
	entries []models.SyncQueueEntry
}

func (m *mockCaptureQueue) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

type stubGeo struct {
	lat, lon, acc float64
	err           error
}

func (g *stubGeo) Current(ctx context.Context) (float64, float64, float64, error) {
	return g.lat, g.lon, g.acc, g.err
}

func captureConfig() config.EvidenceConfig {
	return config.EvidenceConfig{
		MaxBlobBytes:         1024,
		MaxRecordingDuration: 10 * time.Minute,
		RecordingWarning:     9 * time.Minute,
		AllowedMIMEs:         []string{"image/jpeg", "audio/webm"},
	}
}

func newCaptureFixture(geo GeolocationProvider) (*CaptureService, *mockCaptureEvidence, *mockCaptureQueue) {
	evidence := &mockCaptureEvidence{}
	queue := &mockCaptureQueue{}
	checklists := &mockChecklistReader{items: map[string]models.ChecklistItem{
		"ci-1": {ID: "ci-1", ReviewID: "rev-1"},
	}}
	svc := NewCaptureService(evidence, checklists, queue, geo, validator.New(), captureConfig(), 3, zap.NewNop())
	return svc, evidence, queue
}

func photoRequest() dto.CaptureEvidenceRequest {
	return dto.CaptureEvidenceRequest{
		ChecklistItemID: "ci-1",
		ReviewID:        "rev-1",
		Type:            models.EvidencePhoto,
		Blob:            []byte{0xFF, 0xD8, 0xFF},
		MimeType:        "image/jpeg",
		FileName:        "ramp.jpg",
	}
}

func TestCaptureStoresEvidenceAndEnqueuesUpload(t *testing.T) {
	svc, evidence, queue := newCaptureFixture(&stubGeo{lat: -6.2, lon: 106.8, acc: 5})

	resp, err := svc.Capture(context.Background(), photoRequest())
	require.NoError(t, err)
	assert.Empty(t, resp.Warning)
	assert.NotEmpty(t, resp.Evidence.ID)
	assert.Len(t, resp.Evidence.Checksum, 64)
	require.NotNil(t, resp.Evidence.GPSLatitude)
	assert.InDelta(t, -6.2, *resp.Evidence.GPSLatitude, 0.001)

	require.Len(t, evidence.created, 1)
	require.Len(t, queue.entries, 1)
	entry := queue.entries[0]
	assert.Equal(t, models.EntityFieldEvidence, entry.EntityType)
	assert.Equal(t, models.ActionCreate, entry.Action)
	assert.Equal(t, resp.Evidence.ID, entry.EntityID)
	assert.NotEmpty(t, entry.Payload["blob"])
}

func TestCaptureProceedsWithoutGPS(t *testing.T) {
	svc, _, _ := newCaptureFixture(&stubGeo{err: errors.New("no fix")})

	resp, err := svc.Capture(context.Background(), photoRequest())
	require.NoError(t, err)
	assert.Nil(t, resp.Evidence.GPSLatitude)
}

func TestCaptureRejectsUnknownMIME(t *testing.T) {
	svc, _, queue := newCaptureFixture(nil)

	req := photoRequest()
	req.MimeType = "application/pdf"
	_, err := svc.Capture(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrCaptureFailed.Code, appErr.Code)
	assert.Empty(t, queue.entries)
}

func TestCaptureRejectsOversizedBlob(t *testing.T) {
	svc, _, _ := newCaptureFixture(nil)

	req := photoRequest()
	req.Blob = make([]byte, 2048)
	_, err := svc.Capture(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrCaptureFailed.Code, appErr.Code)
}

func TestCaptureQuotaExceeded(t *testing.T) {
	svc, evidence, _ := newCaptureFixture(nil)
	evidence.used = 1024 * 20

	_, err := svc.Capture(context.Background(), photoRequest())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStorageQuota.Code, appErr.Code)
}

func TestCaptureVoiceNoteDurationCapAndWarning(t *testing.T) {
	svc, _, _ := newCaptureFixture(nil)

	req := photoRequest()
	req.Type = models.EvidenceVoiceNote
	req.MimeType = "audio/webm"

	req.Duration = 11 * time.Minute
	_, err := svc.Capture(context.Background(), req)
	require.Error(t, err)

	req.Duration = 9*time.Minute + 30*time.Second
	resp, err := svc.Capture(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Warning)

	req.Duration = time.Minute
	resp, err = svc.Capture(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Warning)
}

func TestCaptureUnknownChecklistItem(t *testing.T) {
	svc, _, _ := newCaptureFixture(nil)

	req := photoRequest()
	req.ChecklistItemID = "missing"
	_, err := svc.Capture(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
