package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2024, time.March, 4, hour, min, 0, 0, time.UTC)
}

func interval(startHour, startMin, endHour, endMin int) *Appointment {
	return &Appointment{StartTime: at(startHour, startMin), EndTime: at(endHour, endMin)}
}

func TestAppointmentOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a    *Appointment
		b    *Appointment
		want bool
	}{
		{"disjoint before", interval(9, 0, 10, 0), interval(11, 0, 12, 0), false},
		{"disjoint after", interval(11, 0, 12, 0), interval(9, 0, 10, 0), false},
		{"touching endpoints", interval(9, 0, 10, 0), interval(10, 0, 11, 0), false},
		{"one minute overlap", interval(9, 0, 10, 0), interval(9, 59, 10, 30), true},
		{"contained", interval(9, 0, 12, 0), interval(10, 0, 11, 0), true},
		{"identical", interval(9, 0, 10, 0), interval(9, 0, 10, 0), true},
		{"same start", interval(9, 0, 10, 0), interval(9, 0, 11, 0), true},
		{"same end", interval(8, 0, 10, 0), interval(9, 0, 10, 0), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			// symmetry
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestAppointmentOverlapsIgnoresStation(t *testing.T) {
	a := interval(9, 0, 10, 0)
	a.StationID = "st-1"
	b := interval(9, 30, 10, 30)
	b.StationID = "st-2"

	assert.True(t, a.Overlaps(b))
}

func TestAppointmentFilled(t *testing.T) {
	appt := interval(9, 0, 10, 0)
	assert.False(t, appt.Filled())

	profileID := "p1"
	appt.ProfileID = &profileID
	assert.True(t, appt.Filled())
}

func TestAppointmentMarshalJSONFilledFlag(t *testing.T) {
	appt := interval(9, 0, 10, 0)
	appt.ID = "a1"

	raw, err := json.Marshal(appt)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["filled"])

	profileID := "p1"
	appt.ProfileID = &profileID
	raw, err = json.Marshal(appt)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["filled"])
	assert.Equal(t, "p1", decoded["profile_id"])
}

func TestAppointmentDetailMarshalJSONKeepsJoinedNames(t *testing.T) {
	detail := AppointmentDetail{
		Appointment:  *interval(9, 0, 10, 0),
		StationName:  "Build Bench 1",
		LocationName: "Main Site",
	}
	detail.ID = "a1"

	raw, err := json.Marshal(detail)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Build Bench 1", decoded["station_name"])
	assert.Equal(t, "Main Site", decoded["location_name"])
	assert.Equal(t, false, decoded["filled"])
	assert.Equal(t, "a1", decoded["id"])
}
