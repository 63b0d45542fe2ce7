package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reuseworks/volsched-api/internal/middleware"
	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/internal/service"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
	"github.com/reuseworks/volsched-api/pkg/response"
)

// AppointmentOperations is the scheduling surface the handler needs.
type AppointmentOperations interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, req service.CreateAppointmentRequest) (*models.Appointment, error)
	Update(ctx context.Context, id string, req service.UpdateAppointmentRequest) (*models.Appointment, error)
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, appointmentID string, req service.AssignRequest) (*models.Appointment, error)
	Unassign(ctx context.Context, appointmentID string, req service.UnassignRequest) (*models.Appointment, error)
}

// ConflictScanner is the overlap-scan surface the handler needs.
type ConflictScanner interface {
	Scan(ctx context.Context, from, to time.Time) ([]models.ConflictPair, error)
	ScanStation(ctx context.Context, stationID string, from, to time.Time) ([]models.ConflictPair, error)
	Invalidate(ctx context.Context)
}

// AppointmentHandler wires scheduling services to HTTP routes.
type AppointmentHandler struct {
	appointments AppointmentOperations
	conflicts    ConflictScanner
	metrics      *service.MetricsService
}

// NewAppointmentHandler constructs a new AppointmentHandler.
func NewAppointmentHandler(appointments AppointmentOperations, conflicts ConflictScanner, metrics *service.MetricsService) *AppointmentHandler {
	return &AppointmentHandler{
		appointments: appointments,
		conflicts:    conflicts,
		metrics:      metrics,
	}
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param station_id query string false "Filter by station"
// @Param profile_id query string false "Filter by assignee"
// @Param filled query bool false "Filter by fill state"
// @Param proficiency query string false "Filter by required level (L1,L2,L3)"
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (start_time,end_time,created_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	filter := models.AppointmentFilter{
		StationID: c.Query("station_id"),
		ProfileID: c.Query("profile_id"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if filled := c.Query("filled"); filled != "" {
		switch strings.ToLower(filled) {
		case "true":
			val := true
			filter.Filled = &val
		case "false":
			val := false
			filter.Filled = &val
		}
	}
	if level := c.Query("proficiency"); level != "" {
		proficiency := models.ProficiencyLevel(level)
		filter.Proficiency = &proficiency
	}
	if from, ok := parseTimeQuery(c, "from"); ok {
		filter.From = from
	}
	if to, ok := parseTimeQuery(c, "to"); ok {
		filter.To = to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	appointments, pagination, err := h.appointments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, pagination)
}

// Get godoc
// @Summary Get appointment detail
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, err := h.appointments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Create godoc
// @Summary Create appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req service.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appointment payload"))
		return
	}
	appointment, err := h.appointments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.conflicts.Invalidate(c.Request.Context())
	response.Created(c, appointment)
}

// Update godoc
// @Summary Update appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UpdateAppointmentRequest true "Appointment payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [put]
func (h *AppointmentHandler) Update(c *gin.Context) {
	var req service.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appointment payload"))
		return
	}
	appointment, err := h.appointments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.conflicts.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Delete godoc
// @Summary Delete appointment
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Delete(c *gin.Context) {
	if err := h.appointments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.conflicts.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// Assign godoc
// @Summary Assign a profile to an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.AssignRequest true "Assign payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/assign [post]
func (h *AppointmentHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assign payload"))
		return
	}
	if !selfServeAllowed(c, req.ProfileID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	appointment, err := h.appointments.Assign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.metrics.ObserveAssignment(assignmentOutcome(err))
		response.Error(c, err)
		return
	}
	h.metrics.ObserveAssignment("assigned")
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Unassign godoc
// @Summary Release a filled appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UnassignRequest true "Unassign payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/unassign [post]
func (h *AppointmentHandler) Unassign(c *gin.Context) {
	var req service.UnassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unassign payload"))
		return
	}
	if !selfServeAllowed(c, req.ProfileID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	appointment, err := h.appointments.Unassign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.metrics.ObserveAssignment(assignmentOutcome(err))
		response.Error(c, err)
		return
	}
	h.metrics.ObserveAssignment("unassigned")
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Conflicts godoc
// @Summary Scan for overlapping appointments
// @Tags Appointments
// @Produce json
// @Param station_id query string false "Restrict to one station"
// @Param from query string true "Window start (RFC3339)"
// @Param to query string true "Window end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /appointments/conflicts [get]
func (h *AppointmentHandler) Conflicts(c *gin.Context) {
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	if from == nil {
		response.Error(c, appErrors.MissingField("from"))
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}
	if to == nil {
		response.Error(c, appErrors.MissingField("to"))
		return
	}

	var (
		pairs []models.ConflictPair
		err   error
	)
	if stationID := c.Query("station_id"); stationID != "" {
		pairs, err = h.conflicts.ScanStation(c.Request.Context(), stationID, *from, *to)
	} else {
		pairs, err = h.conflicts.Scan(c.Request.Context(), *from, *to)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pairs, nil, map[string]interface{}{"count": len(pairs)})
}

// selfServeAllowed restricts volunteers to acting on their own
// profile. Staff roles may assign or release any profile.
func selfServeAllowed(c *gin.Context, profileID string) bool {
	claimsValue, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return true
	}
	claims := claimsValue.(*models.JWTClaims)
	if claims.Role != models.RoleVolunteer {
		return true
	}
	return profileID != "" && profileID == claims.ProfileID
}

func assignmentOutcome(err error) string {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return "error"
	}
	switch appErr.Code {
	case appErrors.ErrAlreadyFilled.Code:
		return "already_filled"
	case appErrors.ErrProficiencyMismatch.Code:
		return "proficiency_mismatch"
	case appErrors.ErrProfileDoubleBooked.Code:
		return "double_booked"
	case appErrors.ErrNotFilled.Code:
		return "not_filled"
	case appErrors.ErrWrongProfile.Code:
		return "wrong_profile"
	}
	return "error"
}

// parseTimeQuery reads an RFC3339 query parameter. The bool is false
// only when the value is present but malformed; in that case a 400 has
// already been written.
func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be RFC3339"))
		return nil, false
	}
	return &ts, true
}
