package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
)

type mockConflictQueue struct {
	entries  map[string]models.SyncQueueEntry
	requeued []string
	payloads map[string]models.SyncPayload
	cleared  []models.EntityKey
}

func (m *mockConflictQueue) ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error) {
	var out []models.SyncQueueEntry
	for _, e := range m.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockConflictQueue) GetByID(ctx context.Context, id string) (*models.SyncQueueEntry, error) {
	if e, ok := m.entries[id]; ok {
		return &e, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockConflictQueue) Requeue(ctx context.Context, id string, payload models.SyncPayload) error {
	m.requeued = append(m.requeued, id)
	if m.payloads == nil {
		m.payloads = make(map[string]models.SyncPayload)
	}
	m.payloads[id] = payload
	e := m.entries[id]
	e.Status = models.SyncEntryPending
	e.RetryCount = 0
	e.ServerState = nil
	e.Payload = payload
	m.entries[id] = e
	return nil
}

func (m *mockConflictQueue) DeleteForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	m.cleared = append(m.cleared, models.EntityKey{Type: entityType, ID: entityID})
	var n int64
	for id, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

type mockChecklistStore struct {
	mockStateWriter
	items    map[string]*models.ChecklistItem
	upserted []models.ChecklistItem
}

func (m *mockChecklistStore) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	if item, ok := m.items[id]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockChecklistStore) Upsert(ctx context.Context, item *models.ChecklistItem) error {
	m.upserted = append(m.upserted, *item)
	return nil
}

type mockEvidenceStore struct {
	mockStateWriter
	records  map[string]*models.FieldEvidence
	applied  map[string]string
	applyErr error
}

func (m *mockEvidenceStore) GetByID(ctx context.Context, id string) (*models.FieldEvidence, error) {
	if ev, ok := m.records[id]; ok {
		copied := *ev
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockEvidenceStore) ApplyServerState(ctx context.Context, id, annotations string) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	if m.applied == nil {
		m.applied = make(map[string]string)
	}
	m.applied[id] = annotations
	return nil
}

type mockFindingStore struct {
	mockStateWriter
	records  map[string]*models.DraftFinding
	upserted []models.DraftFinding
}

func (m *mockFindingStore) GetByID(ctx context.Context, id string) (*models.DraftFinding, error) {
	if f, ok := m.records[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockFindingStore) Upsert(ctx context.Context, f *models.DraftFinding) error {
	m.upserted = append(m.upserted, *f)
	return nil
}

func conflictedEntry(id string, entityType models.EntityType, entityID string, serverState *string) models.SyncQueueEntry {
	msg := "Conflict: stale version"
	return models.SyncQueueEntry{
		ID: id, EntityType: entityType, EntityID: entityID, Action: models.ActionUpdate,
		Payload: models.SyncPayload{"id": entityID, "notes": "mine"}, MaxRetries: 3,
		Status: models.SyncEntryConflict, Error: &msg, ServerState: serverState,
		CreatedAt: time.Now().Add(-time.Minute),
	}
}

func newConflictFixture(entries ...models.SyncQueueEntry) (*ConflictService, *mockConflictQueue, *mockChecklistStore, *mockEvidenceStore, *mockFindingStore) {
	queue := &mockConflictQueue{entries: make(map[string]models.SyncQueueEntry)}
	for _, e := range entries {
		queue.entries[e.ID] = e
	}
	checklists := &mockChecklistStore{}
	evidence := &mockEvidenceStore{}
	findings := &mockFindingStore{}
	svc := NewConflictService(queue, checklists, evidence, findings, zap.NewNop())
	return svc, queue, checklists, evidence, findings
}

func TestConflictServiceListExposesBothSides(t *testing.T) {
	state := `{"id":"ci-1","isCompleted":false,"notes":"theirs"}`
	svc, _, _, _, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", &state),
		conflictedEntry("e-2", models.EntityDraftFinding, "df-1", nil),
	)

	conflicts, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	byEntry := make(map[string]models.ConflictData)
	for _, c := range conflicts {
		byEntry[c.EntryID] = c
	}
	withState := byEntry["e-1"]
	assert.True(t, withState.HasServerData)
	assert.JSONEq(t, state, string(withState.ServerState))
	assert.Equal(t, "mine", withState.LocalPayload["notes"])
	assert.Contains(t, withState.Error, models.ConflictSentinel)

	withoutState := byEntry["e-2"]
	assert.False(t, withoutState.HasServerData)
	assert.Empty(t, withoutState.ServerState)
}

func TestConflictServiceKeepMineRequeues(t *testing.T) {
	state := `{"id":"ci-1"}`
	svc, queue, checklists, _, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", &state),
	)

	err := svc.Resolve(context.Background(), "e-1", models.ResolutionKeepMine)
	require.NoError(t, err)
	assert.Equal(t, []string{"e-1"}, queue.requeued)
	assert.Equal(t, models.SyncEntryPending, queue.entries["e-1"].Status)
	assert.Equal(t, models.SyncStatePending, checklists.statuses["ci-1"])
}

func TestConflictServiceKeepMineRequeuesCurrentLocalState(t *testing.T) {
	state := `{"id":"ci-1"}`
	svc, queue, checklists, _, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", &state),
	)
	// The inspector kept editing while the conflict sat unresolved; the
	// requeued payload must carry the edit, not the conflict-time snapshot.
	checklists.items = map[string]*models.ChecklistItem{
		"ci-1": {
			ID: "ci-1", ReviewID: "rev-1", Title: "Ramp inspection",
			Notes: "revised in the field", SyncStatus: models.SyncStateConflict,
		},
	}

	require.NoError(t, svc.Resolve(context.Background(), "e-1", models.ResolutionKeepMine))
	require.Contains(t, queue.payloads, "e-1")
	assert.Equal(t, "revised in the field", queue.payloads["e-1"]["notes"])
	assert.Equal(t, models.SyncEntryPending, queue.entries["e-1"].Status)
}

func TestConflictServiceKeepMineEvidenceRefreshesAnnotations(t *testing.T) {
	entry := conflictedEntry("e-1", models.EntityFieldEvidence, "ev-1", nil)
	entry.Action = models.ActionCreate
	entry.Payload = models.SyncPayload{"id": "ev-1", "blob": "aGVsbG8=", "annotations": "old note"}
	svc, queue, _, evidence, _ := newConflictFixture(entry)
	evidence.records = map[string]*models.FieldEvidence{
		"ev-1": {ID: "ev-1", Annotations: "updated note"},
	}

	require.NoError(t, svc.Resolve(context.Background(), "e-1", models.ResolutionKeepMine))
	payload := queue.payloads["e-1"]
	assert.Equal(t, "updated note", payload["annotations"])
	// The upload blob is immutable and must survive the refresh.
	assert.Equal(t, "aGVsbG8=", payload["blob"])
}

func TestConflictServiceKeepServerOverwritesLocal(t *testing.T) {
	state := `{"id":"ci-1","title":"Ramp inspection","isCompleted":false,"notes":"theirs","updatedAt":"2026-08-29T10:00:00Z"}`
	svc, queue, checklists, _, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", &state),
	)

	err := svc.Resolve(context.Background(), "e-1", models.ResolutionKeepServer)
	require.NoError(t, err)

	require.Len(t, checklists.upserted, 1)
	applied := checklists.upserted[0]
	assert.Equal(t, "ci-1", applied.ID)
	assert.Equal(t, "theirs", applied.Notes)
	assert.Equal(t, models.SyncStateSynced, applied.SyncStatus)

	assert.Equal(t, []models.EntityKey{{Type: models.EntityChecklistItem, ID: "ci-1"}}, queue.cleared)
	assert.Empty(t, queue.entries)
}

func TestConflictServiceKeepServerIsIdempotent(t *testing.T) {
	state := `{"id":"df-1","title":"Theirs","severity":"minor"}`
	svc, _, _, _, findings := newConflictFixture(
		conflictedEntry("e-1", models.EntityDraftFinding, "df-1", &state),
	)

	require.NoError(t, svc.Resolve(context.Background(), "e-1", models.ResolutionKeepServer))
	// Entry is gone now; a repeated submission must still succeed.
	require.NoError(t, svc.Resolve(context.Background(), "e-1", models.ResolutionKeepServer))
	assert.Len(t, findings.upserted, 1)
}

func TestConflictServiceKeepServerWithoutSnapshotRefused(t *testing.T) {
	svc, queue, _, _, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", nil),
	)

	err := svc.Resolve(context.Background(), "e-1", models.ResolutionKeepServer)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNoServerState.Code, appErr.Code)
	// The entry stays parked for keep-mine.
	assert.Equal(t, models.SyncEntryConflict, queue.entries["e-1"].Status)
}

func TestConflictServiceKeepServerEvidenceAppliesAnnotations(t *testing.T) {
	state := `{"id":"ev-1","annotations":"server overlay"}`
	svc, _, _, evidence, _ := newConflictFixture(
		conflictedEntry("e-1", models.EntityFieldEvidence, "ev-1", &state),
	)

	require.NoError(t, svc.Resolve(context.Background(), "e-1", models.ResolutionKeepServer))
	assert.Equal(t, "server overlay", evidence.applied["ev-1"])
}

func TestConflictServiceResolveRejectsNonConflictedEntry(t *testing.T) {
	entry := conflictedEntry("e-1", models.EntityChecklistItem, "ci-1", nil)
	entry.Status = models.SyncEntryPending
	svc, _, _, _, _ := newConflictFixture(entry)

	err := svc.Resolve(context.Background(), "e-1", models.ResolutionKeepMine)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
