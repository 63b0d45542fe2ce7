package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/internal/service"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
	"github.com/reuseworks/volsched-api/pkg/response"
)

// StationHandler wires station services to HTTP routes.
type StationHandler struct {
	stations *service.StationService
}

// NewStationHandler constructs a new StationHandler.
func NewStationHandler(stations *service.StationService) *StationHandler {
	return &StationHandler{stations: stations}
}

// List godoc
// @Summary List stations
// @Tags Stations
// @Produce json
// @Param location_id query string false "Filter by location"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (name,created_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /stations [get]
func (h *StationHandler) List(c *gin.Context) {
	filter := models.StationFilter{
		LocationID: c.Query("location_id"),
		Search:     strings.TrimSpace(c.Query("search")),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	stations, pagination, err := h.stations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stations, pagination)
}

// Get godoc
// @Summary Get station detail
// @Tags Stations
// @Produce json
// @Param id path string true "Station ID"
// @Success 200 {object} response.Envelope
// @Router /stations/{id} [get]
func (h *StationHandler) Get(c *gin.Context) {
	station, err := h.stations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, station, nil)
}

// Create godoc
// @Summary Create station
// @Tags Stations
// @Accept json
// @Produce json
// @Param payload body service.StationRequest true "Station payload"
// @Success 201 {object} response.Envelope
// @Router /stations [post]
func (h *StationHandler) Create(c *gin.Context) {
	var req service.StationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid station payload"))
		return
	}
	station, err := h.stations.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, station)
}

// Update godoc
// @Summary Update station
// @Tags Stations
// @Accept json
// @Produce json
// @Param id path string true "Station ID"
// @Param payload body service.StationRequest true "Station payload"
// @Success 200 {object} response.Envelope
// @Router /stations/{id} [put]
func (h *StationHandler) Update(c *gin.Context) {
	var req service.StationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid station payload"))
		return
	}
	station, err := h.stations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, station, nil)
}

// Delete godoc
// @Summary Delete station and its appointments
// @Tags Stations
// @Param id path string true "Station ID"
// @Success 204
// @Router /stations/{id} [delete]
func (h *StationHandler) Delete(c *gin.Context) {
	if err := h.stations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
