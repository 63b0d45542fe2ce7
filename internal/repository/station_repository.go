package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reuseworks/volsched-api/internal/models"
)

// StationRepository manages persistence for stations.
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository constructs a StationRepository.
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = "s.id, s.name, s.location_id, s.created_at, s.updated_at, l.name AS location_name"

// List returns stations joined with their location name.
func (r *StationRepository) List(ctx context.Context, filter models.StationFilter) ([]models.StationDetail, int, error) {
	base := "FROM stations s JOIN locations l ON l.id = s.location_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LocationID != "" {
		conditions = append(conditions, fmt.Sprintf("s.location_id = $%d", len(args)+1))
		args = append(args, filter.LocationID)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(l.name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	column := sortColumn(filter.SortBy, map[string]string{
		"name":       "s.name",
		"location":   "l.name",
		"created_at": "s.created_at",
	}, "s.created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", stationColumns, base, column, order, size, offset)
	var stations []models.StationDetail
	if err := r.db.SelectContext(ctx, &stations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list stations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count stations: %w", err)
	}

	return stations, total, nil
}

// FindByID fetches a station by ID.
func (r *StationRepository) FindByID(ctx context.Context, id string) (*models.Station, error) {
	const query = `SELECT id, name, location_id, created_at, updated_at FROM stations WHERE id = $1`
	var station models.Station
	if err := r.db.GetContext(ctx, &station, query, id); err != nil {
		return nil, err
	}
	return &station, nil
}

// Create inserts a new station record.
func (r *StationRepository) Create(ctx context.Context, station *models.Station) error {
	if station.ID == "" {
		station.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	station.UpdatedAt = now

	const query = `INSERT INTO stations (id, name, location_id, created_at, updated_at)
		VALUES (:id, :name, :location_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, station); err != nil {
		return fmt.Errorf("create station: %w", err)
	}
	return nil
}

// Update modifies an existing station record.
func (r *StationRepository) Update(ctx context.Context, station *models.Station) error {
	station.UpdatedAt = time.Now().UTC()
	const query = `UPDATE stations SET name = :name, location_id = :location_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, station); err != nil {
		return fmt.Errorf("update station: %w", err)
	}
	return nil
}

// Delete removes a station and cascades to its appointments inside
// one transaction.
func (r *StationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete station: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE station_id = $1`, id); err != nil {
		return fmt.Errorf("delete station appointments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete station: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete station: %w", err)
	}
	return nil
}
