package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	"github.com/noah-isme/fieldsync-api/pkg/config"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

const statusCacheKey = "fieldsync:status"

type checklistStore interface {
	Upsert(ctx context.Context, item *models.ChecklistItem) error
	GetByID(ctx context.Context, id string) (*models.ChecklistItem, error)
	ListByReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error)
	Update(ctx context.Context, id string, isCompleted *bool, notes *string, completedAt *time.Time) (*models.ChecklistItem, error)
	ArchiveForReview(ctx context.Context, reviewID string) (int64, error)
}

type findingStore interface {
	Upsert(ctx context.Context, f *models.DraftFinding) error
	GetByID(ctx context.Context, id string) (*models.DraftFinding, error)
	ListByReview(ctx context.Context, reviewID string) ([]models.DraftFinding, error)
	Update(ctx context.Context, id string, title, description *string, severity *models.FindingSeverity) (*models.DraftFinding, error)
	Delete(ctx context.Context, id string) error
}

type evidenceStore interface {
	GetByID(ctx context.Context, id string) (*models.FieldEvidence, error)
	GetBlob(ctx context.Context, id string) ([]byte, error)
	ListByItem(ctx context.Context, checklistItemID string) ([]models.FieldEvidence, error)
	ListByReview(ctx context.Context, reviewID string) ([]models.FieldEvidence, error)
	UpdateAnnotations(ctx context.Context, id, annotations string) error
	Delete(ctx context.Context, id string) error
}

type queueWriter interface {
	Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error
	DeleteForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error)
}

type syncRunner interface {
	Drain(ctx context.Context) (models.SyncOutcome, error)
	Status(ctx context.Context) (models.SyncStatus, error)
	RetryFailed(ctx context.Context) (int64, error)
}

type checklistFetcher interface {
	FetchChecklist(ctx context.Context, reviewID string) ([]models.ChecklistItem, error)
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FieldworkService is the facade the handlers talk to. Every local write goes
// through it so the store mutation and the matching queue entry always happen
// together.
type FieldworkService struct {
	checklists checklistStore
	findings   findingStore
	evidence   evidenceStore
	queue      queueWriter
	engine     syncRunner
	remote     checklistFetcher
	cache      statusCache
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	syncCfg    config.SyncConfig
}

func NewFieldworkService(
	checklists checklistStore,
	findings findingStore,
	evidence evidenceStore,
	queue queueWriter,
	engine syncRunner,
	remoteClient checklistFetcher,
	cache statusCache,
	validate *validator.Validate,
	syncCfg config.SyncConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *FieldworkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldworkService{
		checklists: checklists,
		findings:   findings,
		evidence:   evidence,
		queue:      queue,
		engine:     engine,
		remote:     remoteClient,
		cache:      cache,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		syncCfg:    syncCfg,
	}
}

// InitializeForReview makes a review workable offline. Locally present items
// win; otherwise the checklist is bootstrapped from the server, which
// requires connectivity.
func (s *FieldworkService) InitializeForReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error) {
	if reviewID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reviewId is required")
	}

	items, err := s.checklists.ListByReview(ctx, reviewID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read local checklist")
	}
	if len(items) > 0 {
		return items, nil
	}

	fetched, err := s.remote.FetchChecklist(ctx, reviewID)
	if err != nil {
		return nil, appErrors.Wrap(err, "REVIEW_BOOTSTRAP_FAILED", appErrors.ErrConflict.Status, "review has no local data and the server is unreachable")
	}

	for i := range fetched {
		fetched[i].ReviewID = reviewID
		fetched[i].SyncStatus = models.SyncStateSynced
		if fetched[i].UpdatedAt.IsZero() {
			fetched[i].UpdatedAt = time.Now().UTC()
		}
		if err := s.checklists.Upsert(ctx, &fetched[i]); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store checklist item")
		}
	}

	s.logger.Info("review initialized for offline fieldwork",
		zap.String("review_id", reviewID),
		zap.Int("items", len(fetched)))
	return fetched, nil
}

// ListChecklist returns the working checklist of one review.
func (s *FieldworkService) ListChecklist(ctx context.Context, reviewID string) ([]models.ChecklistItem, error) {
	items, err := s.checklists.ListByReview(ctx, reviewID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list checklist")
	}
	return items, nil
}

// UpdateChecklistItem writes the edit locally and enqueues it in one logical
// step. The local write is authoritative; sync happens later.
func (s *FieldworkService) UpdateChecklistItem(ctx context.Context, id string, req dto.UpdateChecklistItemRequest) (*models.ChecklistItem, error) {
	if req.IsCompleted == nil && req.Notes == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	item, err := s.checklists.Update(ctx, id, req.IsCompleted, req.Notes, req.CompletedAt)
	if err != nil {
		return nil, mapStoreError(err, "checklist item")
	}

	if err := s.enqueue(ctx, models.EntityChecklistItem, item.ID, models.ActionUpdate, item); err != nil {
		return nil, err
	}
	return item, nil
}

// CreateFinding drafts a finding offline.
func (s *FieldworkService) CreateFinding(ctx context.Context, req dto.CreateFindingRequest) (*models.DraftFinding, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	finding := &models.DraftFinding{
		ID:              uuid.NewString(),
		ReviewID:        req.ReviewID,
		ChecklistItemID: req.ChecklistItemID,
		Title:           req.Title,
		Description:     req.Description,
		Severity:        req.Severity,
		UpdatedAt:       time.Now().UTC(),
		SyncStatus:      models.SyncStatePending,
	}
	if err := s.findings.Upsert(ctx, finding); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store finding")
	}

	if err := s.enqueue(ctx, models.EntityDraftFinding, finding.ID, models.ActionCreate, finding); err != nil {
		return nil, err
	}
	return finding, nil
}

// UpdateFinding edits a draft and enqueues the new snapshot.
func (s *FieldworkService) UpdateFinding(ctx context.Context, id string, req dto.UpdateFindingRequest) (*models.DraftFinding, error) {
	if req.Severity != nil {
		switch *req.Severity {
		case models.SeverityObservation, models.SeverityMinor, models.SeverityMajor:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown severity")
		}
	}

	finding, err := s.findings.Update(ctx, id, req.Title, req.Description, req.Severity)
	if err != nil {
		return nil, mapStoreError(err, "draft finding")
	}

	if err := s.enqueue(ctx, models.EntityDraftFinding, finding.ID, models.ActionUpdate, finding); err != nil {
		return nil, err
	}
	return finding, nil
}

// DeleteFinding removes the draft locally and enqueues the deletion.
func (s *FieldworkService) DeleteFinding(ctx context.Context, id string) error {
	finding, err := s.findings.GetByID(ctx, id)
	if err != nil {
		return mapStoreError(err, "draft finding")
	}

	if err := s.findings.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete finding")
	}

	// A draft that never reached the server needs no tombstone upstream.
	if finding.SyncStatus == models.SyncStatePending {
		if _, err := s.queue.DeleteForEntity(ctx, models.EntityDraftFinding, id); err != nil {
			s.logger.Error("failed to drop queue entries for deleted draft", zap.String("finding_id", id), zap.Error(err))
		}
		return nil
	}
	return s.enqueue(ctx, models.EntityDraftFinding, id, models.ActionDelete, nil)
}

// ListFindings returns a review's drafts.
func (s *FieldworkService) ListFindings(ctx context.Context, reviewID string) ([]models.DraftFinding, error) {
	findings, err := s.findings.ListByReview(ctx, reviewID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list findings")
	}
	return findings, nil
}

// ListEvidence returns capture metadata for one checklist item.
func (s *FieldworkService) ListEvidence(ctx context.Context, checklistItemID string) ([]models.FieldEvidence, error) {
	evs, err := s.evidence.ListByItem(ctx, checklistItemID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evidence")
	}
	return evs, nil
}

// GetEvidenceBlob loads a capture's payload for local display.
func (s *FieldworkService) GetEvidenceBlob(ctx context.Context, id string) (*models.FieldEvidence, []byte, error) {
	ev, err := s.evidence.GetByID(ctx, id)
	if err != nil {
		return nil, nil, mapStoreError(err, "field evidence")
	}
	blob, err := s.evidence.GetBlob(ctx, id)
	if err != nil {
		return nil, nil, mapStoreError(err, "field evidence")
	}
	if len(blob) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "evidence blob was pruned after upload")
	}
	return ev, blob, nil
}

// AnnotateEvidence overlays annotations on a capture and enqueues the edit.
func (s *FieldworkService) AnnotateEvidence(ctx context.Context, id string, req dto.AnnotateEvidenceRequest) (*models.FieldEvidence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if err := s.evidence.UpdateAnnotations(ctx, id, req.Annotations); err != nil {
		return nil, mapStoreError(err, "field evidence")
	}
	ev, err := s.evidence.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "field evidence")
	}

	if err := s.enqueue(ctx, models.EntityFieldEvidence, id, models.ActionUpdate, map[string]interface{}{
		"id":          id,
		"annotations": ev.Annotations,
	}); err != nil {
		return nil, err
	}
	return ev, nil
}

// DiscardEvidence drops a capture that was never confirmed.
func (s *FieldworkService) DiscardEvidence(ctx context.Context, id string) error {
	ev, err := s.evidence.GetByID(ctx, id)
	if err != nil {
		return mapStoreError(err, "field evidence")
	}
	if ev.SyncStatus == models.SyncStateSynced {
		return appErrors.Clone(appErrors.ErrValidation, "synced evidence cannot be discarded")
	}
	if err := s.evidence.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard evidence")
	}
	if _, err := s.queue.DeleteForEntity(ctx, models.EntityFieldEvidence, id); err != nil {
		s.logger.Error("failed to drop queue entries for discarded evidence", zap.String("evidence_id", id), zap.Error(err))
	}
	return nil
}

// CloseReview archives a review's checklist once fieldwork is over.
func (s *FieldworkService) CloseReview(ctx context.Context, reviewID string) (int64, error) {
	n, err := s.checklists.ArchiveForReview(ctx, reviewID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive checklist")
	}
	return n, nil
}

// TriggerSync runs one drain pass and returns the fresh status.
func (s *FieldworkService) TriggerSync(ctx context.Context) (*dto.SyncTriggerResponse, error) {
	outcome, err := s.engine.Drain(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sync pass failed")
	}
	s.invalidateStatus(ctx)

	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute sync status")
	}
	return &dto.SyncTriggerResponse{Outcome: outcome, Status: status}, nil
}

// RetryFailed revives exhausted queue entries.
func (s *FieldworkService) RetryFailed(ctx context.Context) (int64, error) {
	n, err := s.engine.RetryFailed(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revive entries")
	}
	s.invalidateStatus(ctx)
	return n, nil
}

// SyncStatus returns the aggregate panel view, cached briefly because the UI
// polls it aggressively.
func (s *FieldworkService) SyncStatus(ctx context.Context) (models.SyncStatus, error) {
	if s.cache != nil {
		var cached models.SyncStatus
		if err := s.cache.Get(ctx, statusCacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	status, err := s.engine.Status(ctx)
	if err != nil {
		return models.SyncStatus{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute sync status")
	}

	if s.cache != nil {
		ttl := s.syncCfg.StatusCacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		if err := s.cache.Set(ctx, statusCacheKey, status, ttl); err != nil {
			s.logger.Warn("failed to cache sync status", zap.Error(err))
		}
	}
	return status, nil
}

// enqueue snapshots the entity and appends a queue entry.
func (s *FieldworkService) enqueue(ctx context.Context, entityType models.EntityType, entityID string, action models.SyncAction, snapshot interface{}) error {
	payload, err := toPayload(snapshot)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot entity")
	}
	entry := &models.SyncQueueEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Payload:    payload,
		MaxRetries: s.syncCfg.MaxRetries,
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue mutation")
	}
	return nil
}

func (s *FieldworkService) invalidateStatus(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusCacheKey); err != nil {
		s.logger.Warn("failed to invalidate status cache", zap.Error(err))
	}
}

// toPayload converts an entity snapshot into the queue's payload map.
func toPayload(v interface{}) (models.SyncPayload, error) {
	if v == nil {
		return models.SyncPayload{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var payload models.SyncPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return payload, nil
}

// mapStoreError translates repository sentinel errors into typed API errors.
func mapStoreError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "local store failure")
}
