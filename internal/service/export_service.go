package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/internal/repository"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
	"github.com/reuseworks/volsched-api/pkg/export"
	"github.com/reuseworks/volsched-api/pkg/jobs"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

type rosterSource interface {
	ListWindow(ctx context.Context, stationID string, from, to time.Time) ([]models.Appointment, error)
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type urlSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CreateExportRequest asks for a station roster export.
type CreateExportRequest struct {
	StationID string     `json:"station_id"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	Format    string     `json:"format"`
}

// ExportStatusResponse is the polling payload, carrying a signed
// download URL once the file is ready.
type ExportStatusResponse struct {
	models.ExportJob
	DownloadToken string     `json:"download_token,omitempty"`
	TokenExpires  *time.Time `json:"token_expires,omitempty"`
}

// ExportService generates station roster files in the background.
// Requests are persisted, queued, rendered by a worker, and served
// back through signed download tokens.
type ExportService struct {
	jobsRepo exportJobRepository
	roster   rosterSource
	stations stationFinder
	profiles profileFinder
	store    fileStore
	signer   urlSigner
	queue    jobEnqueuer
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(jobsRepo exportJobRepository, roster rosterSource, stations stationFinder, profiles profileFinder, store fileStore, signer urlSigner, queue jobEnqueuer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		jobsRepo: jobsRepo,
		roster:   roster,
		stations: stations,
		profiles: profiles,
		store:    store,
		signer:   signer,
		queue:    queue,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// Enqueue validates the request, persists a queued job, and hands it
// to the worker pool.
func (s *ExportService) Enqueue(ctx context.Context, req CreateExportRequest, createdBy string) (*models.ExportJob, error) {
	if req.StationID == "" {
		return nil, appErrors.MissingField("station")
	}
	if req.From == nil {
		return nil, appErrors.MissingField("from")
	}
	if req.To == nil {
		return nil, appErrors.MissingField("to")
	}
	format := models.ExportFormat(req.Format)
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if !req.From.Before(*req.To) {
		return nil, appErrors.ErrInvalidTimeRange
	}

	if _, err := s.stations.FindByID(ctx, req.StationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}

	job := &models.ExportJob{
		StationID: req.StationID,
		From:      req.From.UTC(),
		To:        req.To.UTC(),
		Format:    format,
		Status:    models.ExportStatusQueued,
		CreatedBy: createdBy,
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster_export", Payload: job.ID}); err != nil {
		s.failJob(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	s.logger.Info("export enqueued",
		zap.String("job_id", job.ID),
		zap.String("station_id", job.StationID),
		zap.String("format", string(job.Format)),
	)
	return job, nil
}

// Get returns job status. Finished jobs carry a signed download token.
func (s *ExportService) Get(ctx context.Context, id string) (*ExportStatusResponse, error) {
	job, err := s.jobsRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}

	resp := &ExportStatusResponse{ExportJob: *job}
	if job.Status == models.ExportStatusDone && job.FilePath != nil {
		token, expires, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
		}
		resp.DownloadToken = token
		resp.TokenExpires = &expires
	}
	return resp, nil
}

// Download validates the signed token and opens the referenced file.
// The caller is responsible for closing the returned handle.
func (s *ExportService) Download(token string) (*os.File, *models.ExportFormat, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		s.logger.Warn("export file missing", zap.String("job_id", jobID), zap.String("path", relPath))
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}

	format := formatFromPath(relPath)
	return file, &format, nil
}

// Process is the queue handler. It renders the roster and records the
// outcome; errors are returned so the queue can retry.
func (s *ExportService) Process(ctx context.Context, job jobs.Job) error {
	jobID, _ := job.Payload.(string)
	if jobID == "" {
		jobID = job.ID
	}

	record, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", jobID, err)
	}

	processing := models.ExportStatusProcessing
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark export job processing: %w", err)
	}

	data, err := s.buildDataset(ctx, record)
	if err != nil {
		s.failJob(ctx, jobID, err.Error())
		return err
	}

	var rendered []byte
	switch record.Format {
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(data, fmt.Sprintf("Roster %s", record.From.Format("2006-01-02")))
	default:
		rendered, err = s.csv.Render(data)
	}
	if err != nil {
		s.failJob(ctx, jobID, err.Error())
		return err
	}

	filename := fmt.Sprintf("%s/%s.%s", record.From.Format("2006-01"), record.ID, record.Format)
	relPath, err := s.store.Save(filename, rendered)
	if err != nil {
		s.failJob(ctx, jobID, err.Error())
		return err
	}

	done := models.ExportStatusDone
	now := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &done, FilePath: &relPath, FinishedAt: &now}); err != nil {
		return fmt.Errorf("mark export job done: %w", err)
	}

	s.logger.Info("export rendered",
		zap.String("job_id", jobID),
		zap.String("path", relPath),
		zap.Int("rows", len(data.Rows)),
	)
	return nil
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, error) {
	station, err := s.stations.FindByID(ctx, job.StationID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load station %s: %w", job.StationID, err)
	}

	appointments, err := s.roster.ListWindow(ctx, job.StationID, job.From, job.To)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load roster: %w", err)
	}

	headers := []string{"Start", "End", "Station", "Proficiency", "Status", "Assignee"}
	rows := make([]map[string]string, 0, len(appointments))
	for i := range appointments {
		appt := &appointments[i]
		row := map[string]string{
			"Start":       appt.StartTime.Format(time.RFC3339),
			"End":         appt.EndTime.Format(time.RFC3339),
			"Station":     station.Name,
			"Proficiency": string(appt.Proficiency),
			"Status":      "open",
			"Assignee":    "",
		}
		if appt.ProfileID != nil {
			row["Status"] = "filled"
			if profile, err := s.profiles.FindByID(ctx, *appt.ProfileID); err == nil {
				row["Assignee"] = fmt.Sprintf("%s %s", profile.FirstName, profile.LastName)
			}
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) failJob(ctx context.Context, jobID, message string) {
	failed := models.ExportStatusFailed
	now := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &failed, ErrorMessage: &message, FinishedAt: &now}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func formatFromPath(path string) models.ExportFormat {
	if len(path) > 4 && path[len(path)-4:] == ".pdf" {
		return models.ExportFormatPDF
	}
	return models.ExportFormatCSV
}
