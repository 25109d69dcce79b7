package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

type captureEvidenceStore interface {
	Create(ctx context.Context, ev *models.FieldEvidence) error
	TotalBlobBytes(ctx context.Context) (int64, error)
}

type captureChecklistReader interface {
	GetByID(ctx context.Context, id string) (*models.ChecklistItem, error)
}

type captureQueueWriter interface {
	Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error
}

// GeolocationProvider abstracts the device position source. Captures proceed
// without coordinates when the provider errors; GPS is tagged best-effort.
type GeolocationProvider interface {
	Current(ctx context.Context) (lat, lon, accuracy float64, err error)
}

// CaptureService validates and stores media captures. Failure modes matter
// here: a capture rejected for quota must surface as such so the inspector
// can free space in the field, and long recordings warn before they hit the
// hard cap.
type CaptureService struct {
	evidence   captureEvidenceStore
	checklists captureChecklistReader
	queue      captureQueueWriter
	geo        GeolocationProvider
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        config.EvidenceConfig
	maxRetries int
}

func NewCaptureService(
	evidence captureEvidenceStore,
	checklists captureChecklistReader,
	queue captureQueueWriter,
	geo GeolocationProvider,
	validate *validator.Validate,
	cfg config.EvidenceConfig,
	maxRetries int,
	logger *zap.Logger,
) *CaptureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBlobBytes <= 0 {
		cfg.MaxBlobBytes = 50 * 1024 * 1024
	}
	return &CaptureService{
		evidence:   evidence,
		checklists: checklists,
		queue:      queue,
		geo:        geo,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		maxRetries: maxRetries,
	}
}

// Capture validates, checksums and stores one media capture, then enqueues
// the upload. The returned warning is non-blocking.
func (s *CaptureService) Capture(ctx context.Context, req dto.CaptureEvidenceRequest) (*dto.CaptureEvidenceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !models.ValidEvidenceType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown evidence type")
	}
	if len(req.Blob) == 0 {
		return nil, appErrors.Clone(appErrors.ErrCaptureFailed, "capture produced no data")
	}
	if !s.mimeAllowed(req.MimeType) {
		return nil, appErrors.Clone(appErrors.ErrCaptureFailed, fmt.Sprintf("media type %s is not accepted", req.MimeType))
	}
	if int64(len(req.Blob)) > s.cfg.MaxBlobBytes {
		return nil, appErrors.Clone(appErrors.ErrCaptureFailed, "capture exceeds the per-file size limit")
	}

	var warning string
	if req.Type == models.EvidenceVoiceNote || req.Type == models.EvidenceVideo {
		if s.cfg.MaxRecordingDuration > 0 && req.Duration > s.cfg.MaxRecordingDuration {
			return nil, appErrors.Clone(appErrors.ErrCaptureFailed, "recording exceeds the maximum duration")
		}
		if s.cfg.RecordingWarning > 0 && req.Duration >= s.cfg.RecordingWarning {
			warning = "recording is close to the maximum duration"
		}
	}

	// Checklist item must exist before the capture is attached to it.
	if _, err := s.checklists.GetByID(ctx, req.ChecklistItemID); err != nil {
		return nil, mapStoreError(err, "checklist item")
	}

	used, err := s.evidence.TotalBlobBytes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check storage usage")
	}
	// The aggregate cap is a fixed multiple of the per-file cap so one
	// review cannot fill the device.
	if used+int64(len(req.Blob)) > s.cfg.MaxBlobBytes*20 {
		return nil, appErrors.Clone(appErrors.ErrStorageQuota, "local evidence storage is full, sync and prune first")
	}

	sum := blake2b.Sum256(req.Blob)
	ev := &models.FieldEvidence{
		ID:              uuid.NewString(),
		ChecklistItemID: req.ChecklistItemID,
		ReviewID:        req.ReviewID,
		Type:            req.Type,
		Blob:            req.Blob,
		ThumbnailBlob:   req.Thumbnail,
		MimeType:        req.MimeType,
		FileName:        req.FileName,
		FileSize:        int64(len(req.Blob)),
		CapturedAt:      time.Now().UTC(),
		Annotations:     req.Annotations,
		Checksum:        hex.EncodeToString(sum[:]),
		SyncStatus:      models.SyncStatePending,
	}

	if s.geo != nil {
		if lat, lon, acc, geoErr := s.geo.Current(ctx); geoErr == nil {
			ev.GPSLatitude = &lat
			ev.GPSLongitude = &lon
			ev.GPSAccuracy = &acc
		} else {
			s.logger.Debug("capture proceeding without GPS", zap.Error(geoErr))
		}
	}

	if err := s.evidence.Create(ctx, ev); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store capture")
	}

	entry := &models.SyncQueueEntry{
		EntityType: models.EntityFieldEvidence,
		EntityID:   ev.ID,
		Action:     models.ActionCreate,
		Payload:    s.uploadPayload(ev),
		MaxRetries: s.maxRetries,
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue upload")
	}

	s.logger.Info("evidence captured",
		zap.String("evidence_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.Int64("bytes", ev.FileSize),
		zap.Bool("gps", ev.GPSLatitude != nil))

	return &dto.CaptureEvidenceResponse{Evidence: ev, Warning: warning}, nil
}

// uploadPayload inlines the blob base64-encoded; the remote API expects the
// whole capture in one request.
func (s *CaptureService) uploadPayload(ev *models.FieldEvidence) models.SyncPayload {
	payload := models.SyncPayload{
		"id":              ev.ID,
		"checklistItemId": ev.ChecklistItemID,
		"reviewId":        ev.ReviewID,
		"type":            string(ev.Type),
		"mimeType":        ev.MimeType,
		"fileName":        ev.FileName,
		"fileSize":        ev.FileSize,
		"capturedAt":      ev.CapturedAt.Format(time.RFC3339),
		"annotations":     ev.Annotations,
		"checksum":        ev.Checksum,
		"blob":            base64.StdEncoding.EncodeToString(ev.Blob),
	}
	if ev.GPSLatitude != nil {
		payload["gpsLatitude"] = *ev.GPSLatitude
		payload["gpsLongitude"] = *ev.GPSLongitude
		payload["gpsAccuracy"] = *ev.GPSAccuracy
	}
	return payload
}

func (s *CaptureService) mimeAllowed(mime string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if allowed == mime {
			return true
		}
	}
	return false
}
