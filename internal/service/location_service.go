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

type locationRepository interface {
	List(ctx context.Context, filter models.LocationFilter) ([]models.Location, int, error)
	FindByID(ctx context.Context, id string) (*models.Location, error)
	Create(ctx context.Context, location *models.Location) error
	Update(ctx context.Context, location *models.Location) error
	Delete(ctx context.Context, id string) error
}

// LocationRequest carries the writable location fields.
type LocationRequest struct {
	Name string `json:"name" validate:"required"`
}

// LocationService manages the sites that host stations.
type LocationService struct {
	repo      locationRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLocationService constructs a LocationService.
func NewLocationService(repo locationRepository, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{repo: repo, validator: validator.New(), logger: logger}
}

// List returns locations plus pagination data.
func (s *LocationService) List(ctx context.Context, filter models.LocationFilter) ([]models.Location, *models.Pagination, error) {
	locations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return locations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a location by id.
func (s *LocationService) Get(ctx context.Context, id string) (*models.Location, error) {
	location, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}
	return location, nil
}

// Create persists a new location. Names must be non-empty.
func (s *LocationService) Create(ctx context.Context, req LocationRequest) (*models.Location, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location name is required")
	}

	location := &models.Location{Name: req.Name}
	if err := s.repo.Create(ctx, location); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create location")
	}

	s.logger.Info("location created", zap.String("location_id", location.ID), zap.String("name", location.Name))
	return location, nil
}

// Update renames a location.
func (s *LocationService) Update(ctx context.Context, id string, req LocationRequest) (*models.Location, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location name is required")
	}

	location, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	location.Name = req.Name
	if err := s.repo.Update(ctx, location); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update location")
	}
	return location, nil
}

// Delete removes a location together with its stations and their
// appointments.
func (s *LocationService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete location")
	}
	s.logger.Info("location deleted", zap.String("location_id", id))
	return nil
}
