package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/pkg/config"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

type appointmentRepository interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, appointment *models.Appointment) error
	Update(ctx context.Context, appointment *models.Appointment) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, appointmentID string, profile *models.Profile, rejectDoubleBooking bool) (*models.Appointment, error)
	Unassign(ctx context.Context, appointmentID string, verifyProfileID *string) (*models.Appointment, error)
	ListByProfile(ctx context.Context, profileID string) ([]models.Appointment, error)
}

type stationFinder interface {
	FindByID(ctx context.Context, id string) (*models.Station, error)
}

type profileFinder interface {
	FindByID(ctx context.Context, id string) (*models.ProfileDetail, error)
}

// CreateAppointmentRequest represents payload for creating appointments.
// Pointers distinguish absent timestamps from zero values so each
// missing field can be reported individually.
type CreateAppointmentRequest struct {
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	StationID   string     `json:"station_id"`
	Proficiency string     `json:"proficiency"`
}

// UpdateAppointmentRequest represents payload for editing the time
// window, station, or required proficiency of an appointment.
type UpdateAppointmentRequest struct {
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	StationID   string     `json:"station_id"`
	Proficiency string     `json:"proficiency"`
}

// AssignRequest binds a profile to an appointment.
type AssignRequest struct {
	ProfileID string `json:"profile_id"`
}

// UnassignRequest releases an appointment. The profile is required by
// the interface; whether it must match the current assignee is a
// configuration choice.
type UnassignRequest struct {
	ProfileID string `json:"profile_id"`
}

// AppointmentService orchestrates the scheduling operations.
type AppointmentService struct {
	repo     appointmentRepository
	stations stationFinder
	profiles profileFinder
	logger   *zap.Logger
	cfg      config.SchedulingConfig
}

// NewAppointmentService constructs an AppointmentService.
func NewAppointmentService(repo appointmentRepository, stations stationFinder, profiles profileFinder, logger *zap.Logger, cfg config.SchedulingConfig) *AppointmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{repo: repo, stations: stations, profiles: profiles, logger: logger, cfg: cfg}
}

// List returns appointments plus pagination data.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, *models.Pagination, error) {
	appointments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return appointments, pagination, nil
}

// Get returns an appointment by id.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appointment, nil
}

// Create validates inputs in a fixed order, then persists a new
// appointment in the unfilled state. It does not scan for overlaps
// against existing appointments: conflict detection is a separate,
// composable pass so creation stays cheap.
func (s *AppointmentService) Create(ctx context.Context, req CreateAppointmentRequest) (*models.Appointment, error) {
	if req.StartTime == nil {
		return nil, appErrors.MissingField("start_time")
	}
	if req.EndTime == nil {
		return nil, appErrors.MissingField("end_time")
	}
	if req.StationID == "" {
		return nil, appErrors.MissingField("station")
	}
	if req.Proficiency == "" {
		return nil, appErrors.MissingField("proficiency")
	}

	proficiency := models.ProficiencyLevel(req.Proficiency)
	if !proficiency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown proficiency level")
	}
	if !req.StartTime.Before(*req.EndTime) {
		return nil, appErrors.ErrInvalidTimeRange
	}

	if _, err := s.stations.FindByID(ctx, req.StationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}

	appointment := &models.Appointment{
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Proficiency: proficiency,
		StationID:   req.StationID,
	}
	if err := s.repo.Create(ctx, appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.logger.Info("appointment created",
		zap.String("appointment_id", appointment.ID),
		zap.String("station_id", appointment.StationID),
		zap.Time("start_time", appointment.StartTime),
		zap.Time("end_time", appointment.EndTime),
	)
	return appointment, nil
}

// Update edits appointment fields other than the fill state.
func (s *AppointmentService) Update(ctx context.Context, id string, req UpdateAppointmentRequest) (*models.Appointment, error) {
	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.StartTime != nil {
		appointment.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		appointment.EndTime = req.EndTime.UTC()
	}
	if req.StationID != "" {
		if _, err := s.stations.FindByID(ctx, req.StationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
		}
		appointment.StationID = req.StationID
	}
	if req.Proficiency != "" {
		proficiency := models.ProficiencyLevel(req.Proficiency)
		if !proficiency.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown proficiency level")
		}
		appointment.Proficiency = proficiency
	}

	if !appointment.StartTime.Before(appointment.EndTime) {
		return nil, appErrors.ErrInvalidTimeRange
	}

	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}
	return appointment, nil
}

// Delete removes an appointment.
func (s *AppointmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete appointment")
	}
	return nil
}

// Assign binds a profile to an unfilled appointment. Preconditions
// run in a fixed order: fill state first, proficiency second. The
// repository executes the check-then-set under a row lock.
func (s *AppointmentService) Assign(ctx context.Context, appointmentID string, req AssignRequest) (*models.Appointment, error) {
	if req.ProfileID == "" {
		return nil, appErrors.MissingField("profile")
	}

	profile, err := s.profiles.FindByID(ctx, req.ProfileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	appointment, err := s.repo.Assign(ctx, appointmentID, &profile.Profile, s.cfg.RejectDoubleBooking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign appointment")
	}

	s.logger.Info("appointment assigned",
		zap.String("appointment_id", appointmentID),
		zap.String("profile_id", req.ProfileID),
	)
	return appointment, nil
}

// Unassign releases a filled appointment. The profile argument is
// accepted for interface compatibility; it is only checked against
// the current assignee when VerifyAssignee is configured.
func (s *AppointmentService) Unassign(ctx context.Context, appointmentID string, req UnassignRequest) (*models.Appointment, error) {
	if req.ProfileID == "" {
		return nil, appErrors.MissingField("profile")
	}

	var verify *string
	if s.cfg.VerifyAssignee {
		verify = &req.ProfileID
	}

	appointment, err := s.repo.Unassign(ctx, appointmentID, verify)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign appointment")
	}

	s.logger.Info("appointment unassigned", zap.String("appointment_id", appointmentID))
	return appointment, nil
}

// ListByProfile returns every appointment the profile currently holds.
func (s *AppointmentService) ListByProfile(ctx context.Context, profileID string) ([]models.Appointment, error) {
	if _, err := s.profiles.FindByID(ctx, profileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	appointments, err := s.repo.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profile appointments")
	}
	return appointments, nil
}
