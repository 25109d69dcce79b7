package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldsync-api/internal/models"
)

// ReportRepository persists fieldwork-summary export jobs so queued work
// survives a process restart.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, job *models.FieldReportJob) error {
	const query = `INSERT INTO field_report_jobs (id, review_id, format, status, progress, result_url, error_message, created_at, finished_at)
VALUES (:id, :review_id, :format, :status, :progress, :result_url, :error_message, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.FieldReportJob, error) {
	const query = `SELECT id, review_id, format, status, progress, result_url, error_message, created_at, finished_at
FROM field_report_jobs WHERE id = ?`
	var job models.FieldReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// UpdateProgress moves a job through its lifecycle. Terminal updates carry a
// result URL or an error message and stamp finished_at.
func (r *ReportRepository) UpdateProgress(ctx context.Context, id string, status models.ReportStatus, progress int, resultURL, errorMessage *string) error {
	var finishedAt *time.Time
	if status == models.ReportStatusFinished || status == models.ReportStatusFailed {
		now := time.Now().UTC()
		finishedAt = &now
	}
	const query = `UPDATE field_report_jobs SET status = ?, progress = ?, result_url = ?, error_message = ?, finished_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, progress, resultURL, errorMessage, finishedAt, id); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListUnfinished returns jobs interrupted by a restart so the worker can
// resume or fail them.
func (r *ReportRepository) ListUnfinished(ctx context.Context) ([]models.FieldReportJob, error) {
	const query = `SELECT id, review_id, format, status, progress, result_url, error_message, created_at, finished_at
FROM field_report_jobs WHERE status IN ('QUEUED', 'PROCESSING') ORDER BY created_at ASC`
	var jobs []models.FieldReportJob
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("list unfinished report jobs: %w", err)
	}
	return jobs, nil
}

// DeleteOlderThan removes terminal jobs past the retention window.
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM field_report_jobs WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old report jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
