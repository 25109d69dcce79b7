package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/jobs"
	"github.com/noah-isme/fieldsync-api/pkg/storage"
)

type mockJobStore struct {
	jobs map[string]*models.FieldReportJob
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[string]*models.FieldReportJob)}
}

func (m *mockJobStore) Create(ctx context.Context, job *models.FieldReportJob) error {
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockJobStore) GetByID(ctx context.Context, id string) (*models.FieldReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockJobStore) UpdateProgress(ctx context.Context, id string, status models.ReportStatus, progress int, resultURL, errorMessage *string) error {
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Status = status
	job.Progress = progress
	job.ResultURL = resultURL
	job.ErrorMessage = errorMessage
	return nil
}

func (m *mockJobStore) ListUnfinished(ctx context.Context) ([]models.FieldReportJob, error) {
	var out []models.FieldReportJob
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued || job.Status == models.ReportStatusProcessing {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockJobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type failingChecklistReader struct{}

func (f *failingChecklistReader) ListByReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error) {
	return nil, errors.New("database is locked")
}

func newExportFixture(t *testing.T, store *mockJobStore, dispatcher *mockDispatcher) (*ExportService, *fakeChecklistStore) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test_secret", time.Hour)
	checklists := &fakeChecklistStore{items: make(map[string]models.ChecklistItem)}
	evidence := &fakeEvidenceStore{evidence: make(map[string]models.FieldEvidence)}
	findings := &fakeFindingStore{findings: make(map[string]models.DraftFinding)}
	svc := NewExportService(store, checklists, evidence, findings, dispatcher, files, signer, time.Hour, zap.NewNop())
	return svc, checklists
}

func TestExportCreateJobQueuesWork(t *testing.T) {
	store := newMockJobStore()
	dispatcher := &mockDispatcher{}
	svc, _ := newExportFixture(t, store, dispatcher)

	job, err := svc.CreateJob(context.Background(), dto.FieldReportRequest{ReviewID: "rev-1", Format: models.ReportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}

func TestExportCreateJobRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportFixture(t, newMockJobStore(), &mockDispatcher{})

	_, err := svc.CreateJob(context.Background(), dto.FieldReportRequest{ReviewID: "rev-1", Format: "xlsx"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportProcessFinishesAndServesDownload(t *testing.T) {
	store := newMockJobStore()
	dispatcher := &mockDispatcher{}
	svc, checklists := newExportFixture(t, store, dispatcher)
	now := time.Now().UTC()
	checklists.items["ci-1"] = models.ChecklistItem{
		ID: "ci-1", ReviewID: "rev-1", Title: "Ramp inspection",
		IsCompleted: true, CompletedAt: &now, UpdatedAt: now,
		SyncStatus: models.SyncStateSynced,
	}

	created, err := svc.CreateJob(context.Background(), dto.FieldReportRequest{ReviewID: "rev-1", Format: models.ReportFormatCSV})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: created.ID, Type: "field_report"}))

	status, err := svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.ResultURL)

	token := strings.TrimPrefix(*status.ResultURL, "/api/v1/field-reports/download?token=")
	file, filename, format, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "fieldwork-rev-1.csv", filename)
	assert.Equal(t, models.ReportFormatCSV, format)
}

func TestExportProcessDatasetFailureIsTerminal(t *testing.T) {
	store := newMockJobStore()
	dispatcher := &mockDispatcher{}
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test_secret", time.Hour)
	evidence := &fakeEvidenceStore{evidence: make(map[string]models.FieldEvidence)}
	findings := &fakeFindingStore{findings: make(map[string]models.DraftFinding)}
	svc := NewExportService(store, &failingChecklistReader{}, evidence, findings, dispatcher, files, signer, time.Hour, zap.NewNop())

	created, err := svc.CreateJob(context.Background(), dto.FieldReportRequest{ReviewID: "rev-1", Format: models.ReportFormatPDF})
	require.NoError(t, err)

	// No error returned: the dispatcher must not retry a terminal failure.
	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: created.ID, Type: "field_report"}))

	status, err := svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "read checklist")
}

func TestExportProcessVanishedJobIsNoop(t *testing.T) {
	svc, _ := newExportFixture(t, newMockJobStore(), &mockDispatcher{})
	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: "missing", Type: "field_report"}))
}
