package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/dto"
	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/internal/repository"
	appErrors "github.com/noah-isme/fieldsync-api/pkg/errors"
	"github.com/noah-isme/fieldsync-api/pkg/export"
	"github.com/noah-isme/fieldsync-api/pkg/jobs"
	"github.com/noah-isme/fieldsync-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.FieldReportJob) error
	GetByID(ctx context.Context, id string) (*models.FieldReportJob, error)
	UpdateProgress(ctx context.Context, id string, status models.ReportStatus, progress int, resultURL, errorMessage *string) error
	ListUnfinished(ctx context.Context) ([]models.FieldReportJob, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type exportDataReader interface {
	ListByReview(ctx context.Context, reviewID string) ([]models.ChecklistItem, error)
}

type exportEvidenceReader interface {
	ListByReview(ctx context.Context, reviewID string) ([]models.FieldEvidence, error)
}

type exportFindingReader interface {
	ListByReview(ctx context.Context, reviewID string) ([]models.DraftFinding, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type fileSaver interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportService generates fieldwork-summary reports asynchronously. Jobs are
// persisted so a restart can recover queued work; the in-memory dispatcher
// only carries the wake-up signal.
type ExportService struct {
	repo       exportJobStore
	checklists exportDataReader
	evidence   exportEvidenceReader
	findings   exportFindingReader
	queue      jobDispatcher
	files      fileSaver
	signer     *storage.SignedURLSigner
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
	resultTTL  time.Duration
}

func NewExportService(
	repo exportJobStore,
	checklists exportDataReader,
	evidence exportEvidenceReader,
	findings exportFindingReader,
	queue jobDispatcher,
	files fileSaver,
	signer *storage.SignedURLSigner,
	resultTTL time.Duration,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &ExportService{
		repo:       repo,
		checklists: checklists,
		evidence:   evidence,
		findings:   findings,
		queue:      queue,
		files:      files,
		signer:     signer,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		resultTTL:  resultTTL,
	}
}

// CreateJob persists and enqueues one export.
func (s *ExportService) CreateJob(ctx context.Context, req dto.FieldReportRequest) (*dto.FieldReportJobResponse, error) {
	if req.ReviewID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reviewId is required")
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported format")
	}

	job := &models.FieldReportJob{
		ID:        uuid.NewString(),
		ReviewID:  req.ReviewID,
		Format:    req.Format,
		Status:    models.ReportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "field_report"}); err != nil {
		msg := "failed to enqueue job"
		_ = s.repo.UpdateProgress(ctx, job.ID, models.ReportStatusFailed, 100, nil, &msg)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	return &dto.FieldReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata.
func (s *ExportService) GetStatus(ctx context.Context, id string) (*dto.FieldReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	resp := &dto.FieldReportStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// Download resolves a signed token into an open report file.
func (s *ExportService) Download(ctx context.Context, token string) (*os.File, string, models.ReportFormat, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", "", appErrors.ErrNotFound
		}
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "report is not ready")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "report file no longer exists")
	}
	return file, fmt.Sprintf("fieldwork-%s.%s", job.ReviewID, job.Format), job.Format, nil
}

// Process is the queue handler. Returning an error lets the dispatcher retry;
// terminal failures are recorded on the job row instead.
func (s *ExportService) Process(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("export job vanished before processing", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusProcessing, 10, nil, nil); err != nil {
		return err
	}

	dataset, err := s.buildDataset(ctx, record.ReviewID)
	if err != nil {
		msg := err.Error()
		_ = s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusFailed, 100, nil, &msg)
		return nil
	}
	_ = s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusProcessing, 60, nil, nil)

	var rendered []byte
	switch record.Format {
	case models.ReportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Fieldwork summary "+record.ReviewID)
	default:
		rendered, err = s.csv.Render(dataset)
	}
	if err != nil {
		msg := err.Error()
		_ = s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusFailed, 100, nil, &msg)
		return nil
	}

	relPath := fmt.Sprintf("reports/%s-%s.%s", record.ReviewID, record.ID, record.Format)
	if _, err := s.files.Save(relPath, rendered); err != nil {
		// Disk trouble may be transient on a device; let the dispatcher retry.
		return err
	}

	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		msg := err.Error()
		_ = s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusFailed, 100, nil, &msg)
		return nil
	}

	resultURL := "/api/v1/field-reports/download?token=" + token
	if err := s.repo.UpdateProgress(ctx, record.ID, models.ReportStatusFinished, 100, &resultURL, nil); err != nil {
		return err
	}

	s.logger.Info("fieldwork report generated",
		zap.String("job_id", record.ID),
		zap.String("review_id", record.ReviewID),
		zap.String("format", string(record.Format)))
	return nil
}

// RecoverPending requeues jobs that a previous process left unfinished.
func (s *ExportService) RecoverPending(ctx context.Context) error {
	pending, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "field_report"}); err != nil {
			s.logger.Error("failed to requeue recovered export", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered unfinished export jobs", zap.Int("count", len(pending)))
	}
	return nil
}

// CleanupOnce drops expired report files and their job rows.
func (s *ExportService) CleanupOnce(ctx context.Context) {
	removed, err := s.files.CleanupOlderThan(s.resultTTL)
	if err != nil {
		s.logger.Error("export file cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("expired report files removed", zap.Int("count", len(removed)))
	}

	n, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-s.resultTTL))
	if err != nil {
		s.logger.Error("export job cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired report jobs removed", zap.Int64("count", n))
	}
}

// CleanupLoop runs CleanupOnce on a fixed interval until cancelled.
func (s *ExportService) CleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupOnce(ctx)
		}
	}
}

// buildDataset flattens one review's fieldwork into a tabular summary:
// checklist completion first, then evidence inventory, then draft findings.
func (s *ExportService) buildDataset(ctx context.Context, reviewID string) (export.Dataset, error) {
	dataset := export.Dataset{
		Headers: []string{"Section", "Item", "Detail", "Status", "Timestamp"},
	}

	items, err := s.checklists.ListByReview(ctx, reviewID)
	if err != nil {
		return dataset, fmt.Errorf("read checklist: %w", err)
	}
	for _, item := range items {
		detail := item.Notes
		status := "open"
		timestamp := item.UpdatedAt.Format(time.RFC3339)
		if item.IsCompleted {
			status = "completed"
			if item.CompletedAt != nil {
				timestamp = item.CompletedAt.Format(time.RFC3339)
			}
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Section":   "Checklist",
			"Item":      item.Title,
			"Detail":    detail,
			"Status":    status + " / " + string(item.SyncStatus),
			"Timestamp": timestamp,
		})
	}

	evs, err := s.evidence.ListByReview(ctx, reviewID)
	if err != nil {
		return dataset, fmt.Errorf("read evidence: %w", err)
	}
	for _, ev := range evs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Section":   "Evidence",
			"Item":      ev.FileName,
			"Detail":    fmt.Sprintf("%s, %d bytes", ev.MimeType, ev.FileSize),
			"Status":    string(ev.Type) + " / " + string(ev.SyncStatus),
			"Timestamp": ev.CapturedAt.Format(time.RFC3339),
		})
	}

	fs, err := s.findings.ListByReview(ctx, reviewID)
	if err != nil {
		return dataset, fmt.Errorf("read findings: %w", err)
	}
	for _, f := range fs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Section":   "Findings",
			"Item":      f.Title,
			"Detail":    f.Description,
			"Status":    string(f.Severity) + " / " + string(f.SyncStatus),
			"Timestamp": f.UpdatedAt.Format(time.RFC3339),
		})
	}

	return dataset, nil
}
