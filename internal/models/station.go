package models

import "time"

// Station is a work resource owned by exactly one location. Deleting
// a location cascades to its stations, and from there to their
// appointments.
type Station struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	LocationID string    `db:"location_id" json:"location_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StationDetail joins the owning location name for display surfaces.
type StationDetail struct {
	Station
	LocationName string `db:"location_name" json:"location_name"`
}

// StationFilter captures filtering options for listing stations.
type StationFilter struct {
	LocationID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
