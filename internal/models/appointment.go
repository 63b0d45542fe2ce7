package models

import (
	"encoding/json"
	"time"
)

// Appointment is a scheduled time interval at a station requiring a
// proficiency level. The fill state is carried entirely by the
// nullable ProfileID: a set profile means filled, an unset one means
// open. Collapsing the pair into one field makes the
// filled-without-profile state unrepresentable.
type Appointment struct {
	ID          string           `db:"id" json:"id"`
	StartTime   time.Time        `db:"start_time" json:"start_time"`
	EndTime     time.Time        `db:"end_time" json:"end_time"`
	Proficiency ProficiencyLevel `db:"proficiency" json:"proficiency"`
	StationID   string           `db:"station_id" json:"station_id"`
	ProfileID   *string          `db:"profile_id" json:"profile_id,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Filled reports whether a profile currently holds the appointment.
func (a *Appointment) Filled() bool {
	return a.ProfileID != nil
}

// Overlaps reports whether the two appointments' time intervals
// conflict. Intervals are half-open [start, end): touching endpoints
// do not conflict. The comparison is symmetric and ignores stations;
// callers filtering by station do so before invoking it.
func (a *Appointment) Overlaps(other *Appointment) bool {
	if !a.EndTime.After(other.StartTime) {
		return false
	}
	if !other.EndTime.After(a.StartTime) {
		return false
	}
	return true
}

// MarshalJSON exposes the derived filled flag alongside the stored
// fields so API consumers keep the familiar shape.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Filled bool `json:"filled"`
	}{alias(a), a.ProfileID != nil})
}

// AppointmentDetail joins station and location names for display.
type AppointmentDetail struct {
	Appointment
	StationName  string `db:"station_name" json:"station_name"`
	LocationName string `db:"location_name" json:"location_name"`
}

// MarshalJSON carries the joined names alongside the appointment
// fields. The promoted Appointment encoder would otherwise drop them.
func (d AppointmentDetail) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Filled       bool   `json:"filled"`
		StationName  string `json:"station_name"`
		LocationName string `json:"location_name"`
	}{alias(d.Appointment), d.ProfileID != nil, d.StationName, d.LocationName})
}

// AppointmentFilter describes query params for listing appointments.
type AppointmentFilter struct {
	StationID   string
	ProfileID   string
	Proficiency *ProficiencyLevel
	Filled      *bool
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// ConflictPair records two appointments at the same station whose
// intervals intersect, as reported by the read-only conflict scan.
type ConflictPair struct {
	StationID string      `json:"station_id"`
	First     Appointment `json:"first"`
	Second    Appointment `json:"second"`
}
