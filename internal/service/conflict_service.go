package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

type conflictQueueStore interface {
	ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error)
	GetByID(ctx context.Context, id string) (*models.SyncQueueEntry, error)
	Requeue(ctx context.Context, id string, payload models.SyncPayload) error
	DeleteForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error)
}

type checklistConflictStore interface {
	GetByID(ctx context.Context, id string) (*models.ChecklistItem, error)
	Upsert(ctx context.Context, item *models.ChecklistItem) error
	SetSyncStatus(ctx context.Context, id string, status models.SyncState) error
}

type evidenceConflictStore interface {
	GetByID(ctx context.Context, id string) (*models.FieldEvidence, error)
	ApplyServerState(ctx context.Context, id, annotations string) error
	SetSyncStatus(ctx context.Context, id string, status models.SyncState) error
}

type findingConflictStore interface {
	GetByID(ctx context.Context, id string) (*models.DraftFinding, error)
	Upsert(ctx context.Context, f *models.DraftFinding) error
	SetSyncStatus(ctx context.Context, id string, status models.SyncState) error
}

// ConflictService lists conflicted queue entries and applies user-chosen
// resolutions. Resolutions are whole-entity; field-level merging is not
// offered.
type ConflictService struct {
	queue      conflictQueueStore
	checklists checklistConflictStore
	evidence   evidenceConflictStore
	findings   findingConflictStore
	logger     *zap.Logger
}

func NewConflictService(
	queue conflictQueueStore,
	checklists checklistConflictStore,
	evidence evidenceConflictStore,
	findings findingConflictStore,
	logger *zap.Logger,
) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		queue:      queue,
		checklists: checklists,
		evidence:   evidence,
		findings:   findings,
		logger:     logger,
	}
}

// List builds the transient conflict views for the resolution UI.
func (s *ConflictService) List(ctx context.Context) ([]models.ConflictData, error) {
	entries, err := s.queue.ListByStatus(ctx, models.SyncEntryConflict)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}

	conflicts := make([]models.ConflictData, 0, len(entries))
	for _, entry := range entries {
		data := models.ConflictData{
			EntryID:      entry.ID,
			EntityType:   entry.EntityType,
			EntityID:     entry.EntityID,
			Action:       entry.Action,
			LocalPayload: entry.Payload,
			DetectedAt:   entry.CreatedAt,
		}
		if entry.Error != nil {
			data.Error = *entry.Error
		}
		if entry.ServerState != nil && *entry.ServerState != "" {
			data.ServerState = json.RawMessage(*entry.ServerState)
			data.HasServerData = true
		}
		conflicts = append(conflicts, data)
	}
	return conflicts, nil
}

// Resolve applies one resolution. Resolving an entry that no longer exists is
// a no-op so repeated submissions from the UI stay safe.
func (s *ConflictService) Resolve(ctx context.Context, entryID string, resolution models.Resolution) error {
	if !models.ValidResolution(resolution) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown resolution")
	}

	entry, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("conflict entry already resolved", zap.String("entry", entryID))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict entry")
	}
	if entry.Status != models.SyncEntryConflict {
		return appErrors.Clone(appErrors.ErrValidation, "entry is not conflicted")
	}

	switch resolution {
	case models.ResolutionKeepMine:
		return s.keepMine(ctx, entry)
	case models.ResolutionKeepServer:
		return s.keepServer(ctx, entry)
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown resolution")
	}
}

// keepMine returns the entry to pending with a fresh snapshot of the local
// entity, so edits made while the conflict sat unresolved are what the next
// drain pass transmits. Deletes keep their original payload; an entity that
// vanished locally falls back to the payload captured at enqueue time.
func (s *ConflictService) keepMine(ctx context.Context, entry *models.SyncQueueEntry) error {
	payload, err := s.currentPayload(ctx, entry)
	if err != nil {
		return err
	}
	if err := s.queue.Requeue(ctx, entry.ID, payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to requeue entry")
	}
	if err := s.markEntity(ctx, entry.EntityType, entry.EntityID, models.SyncStatePending); err != nil {
		s.logger.Error("failed to mark entity pending after keep-mine", zap.String("entry", entry.ID), zap.Error(err))
	}
	s.logger.Info("conflict resolved keeping local state",
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID))
	return nil
}

// currentPayload re-reads the local entity at resolve time. Evidence blobs
// are immutable, so only the annotations are refreshed on top of the stored
// upload payload.
func (s *ConflictService) currentPayload(ctx context.Context, entry *models.SyncQueueEntry) (models.SyncPayload, error) {
	if entry.Action == models.ActionDelete {
		return entry.Payload, nil
	}

	switch entry.EntityType {
	case models.EntityChecklistItem:
		item, err := s.checklists.GetByID(ctx, entry.EntityID)
		if err != nil {
			return fallbackPayload(entry, err)
		}
		return snapshotPayload(item)

	case models.EntityFieldEvidence:
		ev, err := s.evidence.GetByID(ctx, entry.EntityID)
		if err != nil {
			return fallbackPayload(entry, err)
		}
		payload := make(models.SyncPayload, len(entry.Payload))
		for k, v := range entry.Payload {
			payload[k] = v
		}
		payload["annotations"] = ev.Annotations
		return payload, nil

	case models.EntityDraftFinding:
		finding, err := s.findings.GetByID(ctx, entry.EntityID)
		if err != nil {
			return fallbackPayload(entry, err)
		}
		return snapshotPayload(finding)

	default:
		return entry.Payload, nil
	}
}

func snapshotPayload(v interface{}) (models.SyncPayload, error) {
	payload, err := toPayload(v)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot entity")
	}
	return payload, nil
}

func fallbackPayload(entry *models.SyncQueueEntry, err error) (models.SyncPayload, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return entry.Payload, nil
	}
	return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load local entity")
}

// keepServer overwrites the local entity with the server snapshot and drops
// every queued entry for it. Without a snapshot the resolution is refused;
// the UI disables the option in that case.
func (s *ConflictService) keepServer(ctx context.Context, entry *models.SyncQueueEntry) error {
	if entry.ServerState == nil || *entry.ServerState == "" {
		return appErrors.ErrNoServerState
	}

	if err := s.applyServerState(ctx, entry.EntityType, entry.EntityID, []byte(*entry.ServerState)); err != nil {
		return err
	}

	if _, err := s.queue.DeleteForEntity(ctx, entry.EntityType, entry.EntityID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear entity queue entries")
	}

	s.logger.Info("conflict resolved keeping server state",
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID))
	return nil
}

// applyServerState writes the snapshot into the local store. The switch is
// exhaustive over the closed EntityType set.
func (s *ConflictService) applyServerState(ctx context.Context, entityType models.EntityType, entityID string, snapshot []byte) error {
	switch entityType {
	case models.EntityChecklistItem:
		var item models.ChecklistItem
		if err := json.Unmarshal(snapshot, &item); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed server snapshot")
		}
		if item.ID == "" {
			item.ID = entityID
		}
		item.SyncStatus = models.SyncStateSynced
		if err := s.checklists.Upsert(ctx, &item); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply server snapshot")
		}
		return nil

	case models.EntityFieldEvidence:
		var snap struct {
			Annotations string `json:"annotations"`
		}
		if err := json.Unmarshal(snapshot, &snap); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed server snapshot")
		}
		if err := s.evidence.ApplyServerState(ctx, entityID, snap.Annotations); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Capture was discarded locally; nothing to overwrite.
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply server snapshot")
		}
		return nil

	case models.EntityDraftFinding:
		var finding models.DraftFinding
		if err := json.Unmarshal(snapshot, &finding); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed server snapshot")
		}
		if finding.ID == "" {
			finding.ID = entityID
		}
		finding.SyncStatus = models.SyncStateSynced
		if err := s.findings.Upsert(ctx, &finding); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply server snapshot")
		}
		return nil

	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown entity type")
	}
}

func (s *ConflictService) markEntity(ctx context.Context, entityType models.EntityType, entityID string, state models.SyncState) error {
	switch entityType {
	case models.EntityChecklistItem:
		return s.checklists.SetSyncStatus(ctx, entityID, state)
	case models.EntityFieldEvidence:
		return s.evidence.SetSyncStatus(ctx, entityID, state)
	case models.EntityDraftFinding:
		return s.findings.SetSyncStatus(ctx, entityID, state)
	default:
		return nil
	}
}
