package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reuseworks/volsched-api/internal/middleware"
	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/internal/service"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
	"github.com/reuseworks/volsched-api/pkg/response"
)

type appointmentServiceMock struct {
	createResp   *models.Appointment
	createErr    error
	assignResp   *models.Appointment
	assignErr    error
	unassignResp *models.Appointment
	unassignErr  error
	lastCreate   service.CreateAppointmentRequest
	lastAssign   service.AssignRequest
	lastFilter   models.AppointmentFilter
	listCalled   bool
}

func (m *appointmentServiceMock) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, *models.Pagination, error) {
	m.listCalled = true
	m.lastFilter = filter
	return []models.AppointmentDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *appointmentServiceMock) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return nil, appErrors.ErrNotFound
}

func (m *appointmentServiceMock) Create(ctx context.Context, req service.CreateAppointmentRequest) (*models.Appointment, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *appointmentServiceMock) Update(ctx context.Context, id string, req service.UpdateAppointmentRequest) (*models.Appointment, error) {
	return nil, appErrors.ErrNotFound
}

func (m *appointmentServiceMock) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *appointmentServiceMock) Assign(ctx context.Context, appointmentID string, req service.AssignRequest) (*models.Appointment, error) {
	m.lastAssign = req
	return m.assignResp, m.assignErr
}

func (m *appointmentServiceMock) Unassign(ctx context.Context, appointmentID string, req service.UnassignRequest) (*models.Appointment, error) {
	return m.unassignResp, m.unassignErr
}

type conflictScannerMock struct {
	pairs       []models.ConflictPair
	scanErr     error
	stationID   string
	invalidated int
}

func (m *conflictScannerMock) Scan(ctx context.Context, from, to time.Time) ([]models.ConflictPair, error) {
	return m.pairs, m.scanErr
}

func (m *conflictScannerMock) ScanStation(ctx context.Context, stationID string, from, to time.Time) ([]models.ConflictPair, error) {
	m.stationID = stationID
	return m.pairs, m.scanErr
}

func (m *conflictScannerMock) Invalidate(ctx context.Context) {
	m.invalidated++
}

func newAppointmentTestHandler(svc *appointmentServiceMock, scanner *conflictScannerMock) *AppointmentHandler {
	return NewAppointmentHandler(svc, scanner, nil)
}

func TestAppointmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mockSvc := &appointmentServiceMock{
		createResp: &models.Appointment{ID: "a1", StartTime: start, StationID: "st1", Proficiency: models.ProficiencyLevel2},
	}
	scanner := &conflictScannerMock{}
	handler := newAppointmentTestHandler(mockSvc, scanner)

	payload := `{"start_time":"2026-03-10T09:00:00Z","end_time":"2026-03-10T12:00:00Z","station_id":"st1","proficiency":"L2"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mockSvc.lastCreate.StartTime)
	assert.Equal(t, "st1", mockSvc.lastCreate.StationID)
	assert.Equal(t, 1, scanner.invalidated)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, false, data["filled"])
}

func TestAppointmentHandlerCreateMissingField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{createErr: appErrors.MissingField("start_time")}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "MISSING_FIELD", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "start_time")
}

func TestAppointmentHandlerAssignConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{assignErr: appErrors.ErrAlreadyFilled}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/assign", bytes.NewBufferString(`{"profile_id":"p1"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Assign(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ALREADY_FILLED", envelope.Error.Code)
}

func TestAppointmentHandlerAssign(t *testing.T) {
	gin.SetMode(gin.TestMode)
	holder := "p1"
	mockSvc := &appointmentServiceMock{
		assignResp: &models.Appointment{ID: "a1", ProfileID: &holder},
	}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/assign", bytes.NewBufferString(`{"profile_id":"p1"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Assign(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", mockSvc.lastAssign.ProfileID)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, true, data["filled"])
	assert.Equal(t, "p1", data["profile_id"])
}

func TestAppointmentHandlerAssignVolunteerOtherProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/assign", bytes.NewBufferString(`{"profile_id":"p2"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Role: models.RoleVolunteer, ProfileID: "p1"})

	handler.Assign(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, mockSvc.lastAssign.ProfileID)
}

func TestAppointmentHandlerAssignVolunteerSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	holder := "p1"
	mockSvc := &appointmentServiceMock{
		assignResp: &models.Appointment{ID: "a1", ProfileID: &holder},
	}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/assign", bytes.NewBufferString(`{"profile_id":"p1"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Role: models.RoleVolunteer, ProfileID: "p1"})

	handler.Assign(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", mockSvc.lastAssign.ProfileID)
}

func TestAppointmentHandlerAssignCoordinatorAnyProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	holder := "p2"
	mockSvc := &appointmentServiceMock{
		assignResp: &models.Appointment{ID: "a1", ProfileID: &holder},
	}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/assign", bytes.NewBufferString(`{"profile_id":"p2"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Role: models.RoleCoordinator, ProfileID: "p1"})

	handler.Assign(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAppointmentHandlerUnassignVolunteerOtherProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/unassign", bytes.NewBufferString(`{"profile_id":"p2"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Role: models.RoleVolunteer, ProfileID: "p1"})

	handler.Unassign(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAppointmentHandlerUnassignNotFilled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{unassignErr: appErrors.ErrNotFilled}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/a1/unassign", bytes.NewBufferString(`{"profile_id":"p1"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Unassign(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAppointmentHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &appointmentServiceMock{}
	handler := newAppointmentTestHandler(mockSvc, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments?station_id=st1&filled=false&proficiency=L2&page=2&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, "st1", mockSvc.lastFilter.StationID)
	require.NotNil(t, mockSvc.lastFilter.Filled)
	assert.False(t, *mockSvc.lastFilter.Filled)
	require.NotNil(t, mockSvc.lastFilter.Proficiency)
	assert.Equal(t, models.ProficiencyLevel2, *mockSvc.lastFilter.Proficiency)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
}

func TestAppointmentHandlerConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scanner := &conflictScannerMock{pairs: []models.ConflictPair{{StationID: "st1"}}}
	handler := newAppointmentTestHandler(&appointmentServiceMock{}, scanner)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments/conflicts?station_id=st1&from=2026-03-10T08:00:00Z&to=2026-03-10T18:00:00Z", nil)
	c.Request = req

	handler.Conflicts(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "st1", scanner.stationID)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.EqualValues(t, 1, envelope.Meta["count"])
}

func TestAppointmentHandlerConflictsMissingWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAppointmentTestHandler(&appointmentServiceMock{}, &conflictScannerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments/conflicts", nil)
	c.Request = req

	handler.Conflicts(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
