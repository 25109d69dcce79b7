package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

func newQueueMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestQueueRepositoryEnqueueDefaults(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	mock.ExpectExec("INSERT INTO sync_queue").
		WithArgs(sqlmock.AnyArg(), models.EntityChecklistItem, "ci-1", models.ActionUpdate, sqlmock.AnyArg(), 0, 3, models.SyncEntryPending, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.SyncQueueEntry{
		EntityType: models.EntityChecklistItem,
		EntityID:   "ci-1",
		Action:     models.ActionUpdate,
		Payload:    models.SyncPayload{"isCompleted": true},
	}
	err := repo.Enqueue(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.SyncEntryPending, entry.Status)
	assert.Equal(t, 3, entry.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryEnqueueCoalesceSupersedes(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, true)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND status != 'conflict'")).
		WithArgs(models.EntityDraftFinding, "df-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO sync_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Enqueue(context.Background(), &models.SyncQueueEntry{
		EntityType: models.EntityDraftFinding,
		EntityID:   "df-1",
		Action:     models.ActionUpdate,
		Payload:    models.SyncPayload{"title": "latest"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryListPendingIsFIFO(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "action", "payload", "retry_count", "max_retries", "status", "error", "server_state", "next_attempt_at", "created_at"}).
		AddRow("e-1", "checklistItem", "ci-1", "UPDATE", `{"n":1}`, 0, 3, "pending", nil, nil, nil, now.Add(-2*time.Minute)).
		AddRow("e-2", "checklistItem", "ci-1", "UPDATE", `{"n":2}`, 0, 3, "pending", nil, nil, nil, now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sync_queue WHERE status = 'pending' ORDER BY created_at ASC, id ASC")).
		WillReturnRows(rows)

	entries, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-1", entries[0].ID)
	assert.Equal(t, "e-2", entries[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryRecordFailure(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	next := time.Now().Add(4 * time.Second)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sync_queue SET retry_count = ?, status = ?, error = ?, next_attempt_at = ? WHERE id = ?")).
		WithArgs(2, models.SyncEntryPending, "transient remote failure: status 502", &next, "e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordFailure(context.Background(), "e-1", 2, models.SyncEntryPending, "transient remote failure: status 502", &next)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryMarkConflictStoresServerState(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	state := `{"id":"ci-1","isCompleted":false}`
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sync_queue SET status = ?, error = ?, server_state = ? WHERE id = ?")).
		WithArgs(models.SyncEntryConflict, "Conflict: stale version", &state, "e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkConflict(context.Background(), "e-1", "Conflict: stale version", &state)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryResetFailed(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	mock.ExpectExec("UPDATE sync_queue SET retry_count = 0, status = 'pending'").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ResetFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryDeleteForEntity(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?")).
		WithArgs(models.EntityFieldEvidence, "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteForEntity(context.Background(), models.EntityFieldEvidence, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newQueueMock(t)
	defer cleanup()
	repo := NewQueueRepository(db, false)

	rows := sqlmock.NewRows([]string{"status", "n"}).
		AddRow("pending", 3).
		AddRow("conflict", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS n FROM sync_queue GROUP BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.SyncEntryPending])
	assert.Equal(t, 1, counts[models.SyncEntryConflict])
	assert.Equal(t, 0, counts[models.SyncEntryFailed])
	assert.NoError(t, mock.ExpectationsWereMet())
}
