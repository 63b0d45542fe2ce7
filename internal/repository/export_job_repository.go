package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reuseworks/volsched-api/internal/models"
)

// ExportJobRepository persists roster export jobs.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository constructs an ExportJobRepository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

const exportJobColumns = "id, station_id, window_from, window_to, format, status, file_path, error_message, created_by, created_at, finished_at"

// Create inserts a queued export job.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}

	const query = `INSERT INTO export_jobs (id, station_id, window_from, window_to, format, status, file_path, error_message, created_by, created_at, finished_at)
		VALUES (:id, :station_id, :window_from, :window_to, :format, :status, :file_path, :error_message, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID fetches an export job by ID.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := fmt.Sprintf("SELECT %s FROM export_jobs WHERE id = $1", exportJobColumns)
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateExportJobParams captures the mutable fields of a job.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	FilePath     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the provided fields to the job record.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	const query = `UPDATE export_jobs SET
		status = COALESCE($2, status),
		file_path = COALESCE($3, file_path),
		error_message = COALESCE($4, error_message),
		finished_at = COALESCE($5, finished_at)
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, params.Status, params.FilePath, params.ErrorMessage, params.FinishedAt); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}
