package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/pkg/config"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

type mockAppointmentRepo struct {
	items      map[string]*models.Appointment
	listResult []models.AppointmentDetail
	listTotal  int
	listErr    error
	created    []string
	deleted    []string
}

func (m *mockAppointmentRepo) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listResult, m.listTotal, nil
}

func (m *mockAppointmentRepo) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	if appt, ok := m.items[id]; ok {
		cp := *appt
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAppointmentRepo) Create(ctx context.Context, appointment *models.Appointment) error {
	if m.items == nil {
		m.items = make(map[string]*models.Appointment)
	}
	if appointment.ID == "" {
		appointment.ID = "generated"
	}
	appointment.ProfileID = nil
	now := time.Now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	cp := *appointment
	m.items[appointment.ID] = &cp
	m.created = append(m.created, appointment.ID)
	return nil
}

func (m *mockAppointmentRepo) Update(ctx context.Context, appointment *models.Appointment) error {
	cp := *appointment
	m.items[appointment.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAppointmentRepo) Assign(ctx context.Context, appointmentID string, profile *models.Profile, rejectDoubleBooking bool) (*models.Appointment, error) {
	appt, ok := m.items[appointmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if appt.Filled() {
		return nil, appErrors.ErrAlreadyFilled
	}
	if appt.Proficiency != profile.Proficiency {
		return nil, appErrors.ErrProficiencyMismatch
	}
	if rejectDoubleBooking {
		for _, other := range m.items {
			if other.ProfileID != nil && *other.ProfileID == profile.ID && other.Overlaps(appt) {
				return nil, appErrors.ErrProfileDoubleBooked
			}
		}
	}
	id := profile.ID
	appt.ProfileID = &id
	cp := *appt
	return &cp, nil
}

func (m *mockAppointmentRepo) Unassign(ctx context.Context, appointmentID string, verifyProfileID *string) (*models.Appointment, error) {
	appt, ok := m.items[appointmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !appt.Filled() {
		return nil, appErrors.ErrNotFilled
	}
	if verifyProfileID != nil && *appt.ProfileID != *verifyProfileID {
		return nil, appErrors.ErrWrongProfile
	}
	appt.ProfileID = nil
	cp := *appt
	return &cp, nil
}

func (m *mockAppointmentRepo) ListByProfile(ctx context.Context, profileID string) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, appt := range m.items {
		if appt.ProfileID != nil && *appt.ProfileID == profileID {
			out = append(out, *appt)
		}
	}
	return out, nil
}

type mockStationFinder struct {
	stations map[string]*models.Station
}

func (m *mockStationFinder) FindByID(ctx context.Context, id string) (*models.Station, error) {
	if station, ok := m.stations[id]; ok {
		cp := *station
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockProfileFinder struct {
	profiles map[string]*models.ProfileDetail
}

func (m *mockProfileFinder) FindByID(ctx context.Context, id string) (*models.ProfileDetail, error) {
	if profile, ok := m.profiles[id]; ok {
		cp := *profile
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func schedulingFixture(cfg config.SchedulingConfig) (*AppointmentService, *mockAppointmentRepo, *mockProfileFinder) {
	repo := &mockAppointmentRepo{items: map[string]*models.Appointment{}}
	stations := &mockStationFinder{stations: map[string]*models.Station{
		"st1": {ID: "st1", Name: "Build Bench 1", LocationID: "loc1"},
	}}
	profiles := &mockProfileFinder{profiles: map[string]*models.ProfileDetail{
		"p1": {Profile: models.Profile{ID: "p1", Proficiency: models.ProficiencyLevel2}, FirstName: "Ana", LastName: "Ng"},
		"p2": {Profile: models.Profile{ID: "p2", Proficiency: models.ProficiencyLevel1}, FirstName: "Bo", LastName: "Ek"},
	}}
	svc := NewAppointmentService(repo, stations, profiles, zap.NewNop(), cfg)
	return svc, repo, profiles
}

func ts(hour int) *time.Time {
	t := time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	return &t
}

func TestAppointmentServiceCreate(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})

	appt, err := svc.Create(context.Background(), CreateAppointmentRequest{
		StartTime:   ts(9),
		EndTime:     ts(12),
		StationID:   "st1",
		Proficiency: "L2",
	})
	require.NoError(t, err)
	assert.False(t, appt.Filled())
	assert.Nil(t, appt.ProfileID)
	assert.Len(t, repo.created, 1)
}

func TestAppointmentServiceCreateValidationOrder(t *testing.T) {
	svc, _, _ := schedulingFixture(config.SchedulingConfig{})
	ctx := context.Background()

	cases := []struct {
		name    string
		req     CreateAppointmentRequest
		code    string
		message string
	}{
		{
			name:    "missing start reported first",
			req:     CreateAppointmentRequest{},
			code:    "MISSING_FIELD",
			message: "missing required field: start_time",
		},
		{
			name:    "missing end reported before station",
			req:     CreateAppointmentRequest{StartTime: ts(9)},
			code:    "MISSING_FIELD",
			message: "missing required field: end_time",
		},
		{
			name:    "missing station reported before proficiency",
			req:     CreateAppointmentRequest{StartTime: ts(9), EndTime: ts(12)},
			code:    "MISSING_FIELD",
			message: "missing required field: station",
		},
		{
			name:    "missing proficiency reported before range check",
			req:     CreateAppointmentRequest{StartTime: ts(12), EndTime: ts(9), StationID: "st1"},
			code:    "MISSING_FIELD",
			message: "missing required field: proficiency",
		},
		{
			name: "inverted range",
			req:  CreateAppointmentRequest{StartTime: ts(12), EndTime: ts(9), StationID: "st1", Proficiency: "L2"},
			code: "INVALID_TIME_RANGE",
		},
		{
			name: "zero length range",
			req:  CreateAppointmentRequest{StartTime: ts(9), EndTime: ts(9), StationID: "st1", Proficiency: "L2"},
			code: "INVALID_TIME_RANGE",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.code, appErr.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, appErr.Message)
			}
		})
	}
}

func TestAppointmentServiceCreateUnknownStation(t *testing.T) {
	svc, _, _ := schedulingFixture(config.SchedulingConfig{})

	_, err := svc.Create(context.Background(), CreateAppointmentRequest{
		StartTime:   ts(9),
		EndTime:     ts(12),
		StationID:   "missing",
		Proficiency: "L2",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestAppointmentServiceAssign(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	appt, err := svc.Assign(context.Background(), "a1", AssignRequest{ProfileID: "p1"})
	require.NoError(t, err)
	assert.True(t, appt.Filled())
	require.NotNil(t, appt.ProfileID)
	assert.Equal(t, "p1", *appt.ProfileID)
}

func TestAppointmentServiceAssignAlreadyFilled(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	_, err := svc.Assign(context.Background(), "a1", AssignRequest{ProfileID: "p1"})
	require.ErrorIs(t, err, appErrors.ErrAlreadyFilled)
}

func TestAppointmentServiceAssignProficiencyMismatch(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	// p2 is L1; an exact level match is required.
	_, err := svc.Assign(context.Background(), "a1", AssignRequest{ProfileID: "p2"})
	require.ErrorIs(t, err, appErrors.ErrProficiencyMismatch)
}

func TestAppointmentServiceAssignFilledWinsOverMismatch(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	// p2 would also mismatch on proficiency; the fill check comes first.
	_, err := svc.Assign(context.Background(), "a1", AssignRequest{ProfileID: "p2"})
	require.ErrorIs(t, err, appErrors.ErrAlreadyFilled)
}

func TestAppointmentServiceAssignDoubleBookingRejected(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{RejectDoubleBooking: true})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}
	repo.items["a2"] = &models.Appointment{ID: "a2", StartTime: *ts(11), EndTime: *ts(14), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	_, err := svc.Assign(context.Background(), "a2", AssignRequest{ProfileID: "p1"})
	require.ErrorIs(t, err, appErrors.ErrProfileDoubleBooked)
}

func TestAppointmentServiceAssignTouchingIntervalsAllowed(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{RejectDoubleBooking: true})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}
	repo.items["a2"] = &models.Appointment{ID: "a2", StartTime: *ts(12), EndTime: *ts(14), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	appt, err := svc.Assign(context.Background(), "a2", AssignRequest{ProfileID: "p1"})
	require.NoError(t, err)
	assert.True(t, appt.Filled())
}

func TestAppointmentServiceUnassign(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	appt, err := svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p1"})
	require.NoError(t, err)
	assert.False(t, appt.Filled())
	assert.Nil(t, appt.ProfileID)

	// A second release must fail now that the slot is open again.
	_, err = svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p1"})
	require.ErrorIs(t, err, appErrors.ErrNotFilled)
}

func TestAppointmentServiceUnassignNotFilled(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	_, err := svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p1"})
	require.ErrorIs(t, err, appErrors.ErrNotFilled)
}

func TestAppointmentServiceUnassignIgnoresCallerByDefault(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	appt, err := svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p2"})
	require.NoError(t, err)
	assert.False(t, appt.Filled())
}

func TestAppointmentServiceUnassignVerifiesAssigneeWhenConfigured(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{VerifyAssignee: true})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	_, err := svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p2"})
	require.ErrorIs(t, err, appErrors.ErrWrongProfile)

	appt, err := svc.Unassign(context.Background(), "a1", UnassignRequest{ProfileID: "p1"})
	require.NoError(t, err)
	assert.False(t, appt.Filled())
}

func TestAppointmentServiceAssignUnknownProfile(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	_, err := svc.Assign(context.Background(), "a1", AssignRequest{ProfileID: "ghost"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestAppointmentServiceUpdateKeepsFillState(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	holder := "p1"
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1", ProfileID: &holder}

	appt, err := svc.Update(context.Background(), "a1", UpdateAppointmentRequest{EndTime: ts(13)})
	require.NoError(t, err)
	assert.Equal(t, *ts(13), appt.EndTime)
	require.NotNil(t, appt.ProfileID)
	assert.Equal(t, "p1", *appt.ProfileID)
}

func TestAppointmentServiceUpdateRejectsInvertedRange(t *testing.T) {
	svc, repo, _ := schedulingFixture(config.SchedulingConfig{})
	repo.items["a1"] = &models.Appointment{ID: "a1", StartTime: *ts(9), EndTime: *ts(12), Proficiency: models.ProficiencyLevel2, StationID: "st1"}

	_, err := svc.Update(context.Background(), "a1", UpdateAppointmentRequest{EndTime: ts(8)})
	require.ErrorIs(t, err, appErrors.ErrInvalidTimeRange)
}
