package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

type stationRepository interface {
	List(ctx context.Context, filter models.StationFilter) ([]models.StationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Station, error)
	Create(ctx context.Context, station *models.Station) error
	Update(ctx context.Context, station *models.Station) error
	Delete(ctx context.Context, id string) error
}

type locationFinder interface {
	FindByID(ctx context.Context, id string) (*models.Location, error)
}

// StationRequest carries the writable station fields.
type StationRequest struct {
	Name       string `json:"name" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
}

// StationService manages work stations and their location ownership.
type StationService struct {
	repo      stationRepository
	locations locationFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStationService constructs a StationService.
func NewStationService(repo stationRepository, locations locationFinder, logger *zap.Logger) *StationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StationService{repo: repo, locations: locations, validator: validator.New(), logger: logger}
}

// List returns stations with their location names plus pagination data.
func (s *StationService) List(ctx context.Context, filter models.StationFilter) ([]models.StationDetail, *models.Pagination, error) {
	stations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return stations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a station by id.
func (s *StationService) Get(ctx context.Context, id string) (*models.Station, error) {
	station, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}
	return station, nil
}

// Create persists a new station under an existing location.
func (s *StationService) Create(ctx context.Context, req StationRequest) (*models.Station, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "station name and location are required")
	}

	if _, err := s.locations.FindByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}

	station := &models.Station{Name: req.Name, LocationID: req.LocationID}
	if err := s.repo.Create(ctx, station); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create station")
	}

	s.logger.Info("station created",
		zap.String("station_id", station.ID),
		zap.String("location_id", station.LocationID),
	)
	return station, nil
}

// Update edits a station's name or moves it to another location.
func (s *StationService) Update(ctx context.Context, id string, req StationRequest) (*models.Station, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "station name and location are required")
	}

	station, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.LocationID != station.LocationID {
		if _, err := s.locations.FindByID(ctx, req.LocationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
		}
	}

	station.Name = req.Name
	station.LocationID = req.LocationID
	if err := s.repo.Update(ctx, station); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update station")
	}
	return station, nil
}

// Delete removes a station and its appointments.
func (s *StationService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete station")
	}
	s.logger.Info("station deleted", zap.String("station_id", id))
	return nil
}
