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

func newEvidenceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEvidenceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEvidenceMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectExec("INSERT INTO field_evidence").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.FieldEvidence{
		ID: "ev-1", ChecklistItemID: "ci-1", ReviewID: "rev-1",
		Type: models.EvidencePhoto, Blob: []byte{0xFF, 0xD8}, MimeType: "image/jpeg",
		FileName: "ramp.jpg", FileSize: 2, CapturedAt: time.Now(),
		Checksum: "abc", SyncStatus: models.SyncStatePending,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryListByItemSkipsBlobs(t *testing.T) {
	db, mock, cleanup := newEvidenceMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "checklist_item_id", "review_id", "type", "mime_type", "file_name", "file_size", "gps_latitude", "gps_longitude", "gps_accuracy", "captured_at", "annotations", "checksum", "sync_status"}).
		AddRow("ev-1", "ci-1", "rev-1", "PHOTO", "image/jpeg", "ramp.jpg", 120, nil, nil, nil, time.Now(), "", "abc", "pending")
	mock.ExpectQuery(regexp.QuoteMeta("FROM field_evidence WHERE checklist_item_id = ? ORDER BY captured_at ASC, id ASC")).
		WithArgs("ci-1").
		WillReturnRows(rows)

	evs, err := repo.ListByItem(context.Background(), "ci-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].Blob)
	assert.Equal(t, models.EvidencePhoto, evs[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryUpdateAnnotationsNotFound(t *testing.T) {
	db, mock, cleanup := newEvidenceMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectExec("UPDATE field_evidence SET annotations = ").
		WithArgs("circled crack", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAnnotations(context.Background(), "missing", "circled crack")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryPruneBlobOnlyWhenSynced(t *testing.T) {
	db, mock, cleanup := newEvidenceMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE field_evidence SET blob = NULL, thumbnail_blob = NULL WHERE id = ? AND sync_status = 'synced'")).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.PruneBlob(context.Background(), "ev-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryTotalBlobBytesEmpty(t *testing.T) {
	db, mock, cleanup := newEvidenceMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(file_size) FROM field_evidence WHERE blob IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	total, err := repo.TotalBlobBytes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
