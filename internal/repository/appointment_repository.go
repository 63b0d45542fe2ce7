package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reuseworks/volsched-api/internal/models"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

// AppointmentRepository provides persistence for appointments. The
// fill-state transitions run inside row-locking transactions so a
// check-then-set can never race another assign against the same slot.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = "id, start_time, end_time, proficiency, station_id, profile_id, created_at, updated_at"

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error) {
	base := "FROM appointments a JOIN stations s ON s.id = a.station_id JOIN locations l ON l.id = s.location_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StationID != "" {
		conditions = append(conditions, fmt.Sprintf("a.station_id = $%d", len(args)+1))
		args = append(args, filter.StationID)
	}
	if filter.ProfileID != "" {
		conditions = append(conditions, fmt.Sprintf("a.profile_id = $%d", len(args)+1))
		args = append(args, filter.ProfileID)
	}
	if filter.Proficiency != nil {
		conditions = append(conditions, fmt.Sprintf("a.proficiency = $%d", len(args)+1))
		args = append(args, *filter.Proficiency)
	}
	if filter.Filled != nil {
		if *filter.Filled {
			conditions = append(conditions, "a.profile_id IS NOT NULL")
		} else {
			conditions = append(conditions, "a.profile_id IS NULL")
		}
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	column := sortColumn(filter.SortBy, map[string]string{
		"start_time": "a.start_time",
		"end_time":   "a.end_time",
		"created_at": "a.created_at",
	}, "a.start_time")
	order := sortOrder(filter.SortOrder)
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT a.id, a.start_time, a.end_time, a.proficiency, a.station_id, a.profile_id, a.created_at, a.updated_at,
		s.name AS station_name, l.name AS location_name %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)
	var appointments []models.AppointmentDetail
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// FindByID fetches an appointment by ID.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1", appointmentColumns)
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, err
	}
	return &appointment, nil
}

// Create inserts a new appointment record in the unfilled state.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now
	appointment.ProfileID = nil

	const query = `INSERT INTO appointments (id, start_time, end_time, proficiency, station_id, profile_id, created_at, updated_at)
		VALUES (:id, :start_time, :end_time, :proficiency, :station_id, :profile_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// Update modifies the time window, proficiency, or station of an
// existing appointment. The fill state moves only through Assign and
// Unassign.
func (r *AppointmentRepository) Update(ctx context.Context, appointment *models.Appointment) error {
	appointment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE appointments SET start_time = :start_time, end_time = :end_time, proficiency = :proficiency,
		station_id = :station_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// Delete removes an appointment.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

// Assign binds the profile to the appointment. The filled check, the
// proficiency check, and the write happen under a row lock so two
// concurrent assigns cannot both pass the precondition.
func (r *AppointmentRepository) Assign(ctx context.Context, appointmentID string, profile *models.Profile, rejectDoubleBooking bool) (*models.Appointment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	appointment, err := lockAppointment(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appointment.Filled() {
		return nil, appErrors.ErrAlreadyFilled
	}
	if appointment.Proficiency != profile.Proficiency {
		return nil, appErrors.ErrProficiencyMismatch
	}

	if rejectDoubleBooking {
		const overlapQuery = `SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE profile_id = $1 AND id <> $2 AND start_time < $3 AND end_time > $4
		)`
		var booked bool
		if err := tx.GetContext(ctx, &booked, overlapQuery, profile.ID, appointmentID, appointment.EndTime, appointment.StartTime); err != nil {
			return nil, fmt.Errorf("check double booking: %w", err)
		}
		if booked {
			return nil, appErrors.ErrProfileDoubleBooked
		}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE appointments SET profile_id = $2, updated_at = $3 WHERE id = $1`, appointmentID, profile.ID, now); err != nil {
		return nil, fmt.Errorf("assign appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assign: %w", err)
	}

	appointment.ProfileID = &profile.ID
	appointment.UpdatedAt = now
	return appointment, nil
}

// Unassign releases a filled appointment under the same row lock.
// When verifyProfileID is set, the release is refused unless that
// profile is the current assignee.
func (r *AppointmentRepository) Unassign(ctx context.Context, appointmentID string, verifyProfileID *string) (*models.Appointment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unassign: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	appointment, err := lockAppointment(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}

	if !appointment.Filled() {
		return nil, appErrors.ErrNotFilled
	}
	if verifyProfileID != nil && *appointment.ProfileID != *verifyProfileID {
		return nil, appErrors.ErrWrongProfile
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE appointments SET profile_id = NULL, updated_at = $2 WHERE id = $1`, appointmentID, now); err != nil {
		return nil, fmt.Errorf("unassign appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unassign: %w", err)
	}

	appointment.ProfileID = nil
	appointment.UpdatedAt = now
	return appointment, nil
}

// ListWindow returns every appointment at the station that intersects
// the half-open window, ordered by start time. Used by the read-only
// conflict scan; takes no locks.
func (r *AppointmentRepository) ListWindow(ctx context.Context, stationID string, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments
		WHERE station_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC, id ASC`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, stationID, from, to); err != nil {
		return nil, fmt.Errorf("list appointment window: %w", err)
	}
	return appointments, nil
}

// ListRange returns every appointment intersecting the half-open
// window across all stations, ordered by station so callers can walk
// stations as contiguous runs.
func (r *AppointmentRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments
		WHERE start_time < $2 AND end_time > $1
		ORDER BY station_id ASC, start_time ASC, id ASC`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, from, to); err != nil {
		return nil, fmt.Errorf("list appointment range: %w", err)
	}
	return appointments, nil
}

// ListByProfile returns every appointment currently held by the
// profile, ordered by start time.
func (r *AppointmentRepository) ListByProfile(ctx context.Context, profileID string) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE profile_id = $1 ORDER BY start_time ASC", appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, profileID); err != nil {
		return nil, fmt.Errorf("list profile appointments: %w", err)
	}
	return appointments, nil
}

func lockAppointment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1 FOR UPDATE", appointmentColumns)
	var appointment models.Appointment
	if err := tx.GetContext(ctx, &appointment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock appointment: %w", err)
	}
	return &appointment, nil
}
