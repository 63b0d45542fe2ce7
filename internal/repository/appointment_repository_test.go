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

	"github.com/reuseworks/volsched-api/internal/models"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func appointmentRows(profileID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "start_time", "end_time", "proficiency", "station_id", "profile_id", "created_at", "updated_at"}).
		AddRow("a1", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), "L1", "st-1", profileID, time.Now(), time.Now())
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "L2", "st-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	appointment := &models.Appointment{
		StartTime:   time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Proficiency: models.ProficiencyLevel2,
		StationID:   "st-1",
	}
	require.NoError(t, repo.Create(context.Background(), appointment))
	assert.NotEmpty(t, appointment.ID)
	assert.Nil(t, appointment.ProfileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryAssign(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, start_time, end_time, proficiency, station_id, profile_id, created_at, updated_at FROM appointments WHERE id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(appointmentRows(nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET profile_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("a1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	profile := &models.Profile{ID: "p1", Proficiency: models.ProficiencyLevel1}
	appointment, err := repo.Assign(context.Background(), "a1", profile, false)
	require.NoError(t, err)
	require.NotNil(t, appointment.ProfileID)
	assert.Equal(t, "p1", *appointment.ProfileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryAssignAlreadyFilled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows("other"))
	mock.ExpectRollback()

	profile := &models.Profile{ID: "p1", Proficiency: models.ProficiencyLevel1}
	_, err := repo.Assign(context.Background(), "a1", profile, false)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyFilled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryAssignProficiencyMismatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows(nil))
	mock.ExpectRollback()

	profile := &models.Profile{ID: "p1", Proficiency: models.ProficiencyLevel2}
	_, err := repo.Assign(context.Background(), "a1", profile, false)
	assert.ErrorIs(t, err, appErrors.ErrProficiencyMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryAssignDoubleBooked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows(nil))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("p1", "a1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	profile := &models.Profile{ID: "p1", Proficiency: models.ProficiencyLevel1}
	_, err := repo.Assign(context.Background(), "a1", profile, true)
	assert.ErrorIs(t, err, appErrors.ErrProfileDoubleBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUnassign(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows("p1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET profile_id = NULL, updated_at = $2 WHERE id = $1")).
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	appointment, err := repo.Unassign(context.Background(), "a1", nil)
	require.NoError(t, err)
	assert.Nil(t, appointment.ProfileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUnassignNotFilled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows(nil))
	mock.ExpectRollback()

	_, err := repo.Unassign(context.Background(), "a1", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFilled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUnassignWrongProfile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE id = .+ FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(appointmentRows("p1"))
	mock.ExpectRollback()

	other := "p2"
	_, err := repo.Unassign(context.Background(), "a1", &other)
	assert.ErrorIs(t, err, appErrors.ErrWrongProfile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM appointments\\s+WHERE station_id = .+ AND start_time < .+ AND end_time > .+").
		WithArgs("st-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(appointmentRows(nil))

	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	appointments, err := repo.ListWindow(context.Background(), "st-1", from, to)
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
