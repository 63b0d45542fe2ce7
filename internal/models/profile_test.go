package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileAgeNearestYear(t *testing.T) {
	dob := time.Date(1990, time.December, 31, 0, 0, 0, 0, time.UTC)
	profile := &Profile{DateOfBirth: &dob}

	// Year difference only: the December birthday has not happened yet
	// by January, but the approximation still reports the full
	// difference.
	now := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	age := profile.Age(now)
	require.NotNil(t, age)
	assert.Equal(t, 34, *age)
}

func TestProfileAgeUnknown(t *testing.T) {
	profile := &Profile{}
	assert.Nil(t, profile.Age(time.Now()))
}

func TestProficiencyLevelRankOrdering(t *testing.T) {
	assert.Less(t, ProficiencyLevel1.Rank(), ProficiencyLevel2.Rank())
	assert.Less(t, ProficiencyLevel2.Rank(), ProficiencyLevel3.Rank())
	assert.Equal(t, 0, ProficiencyLevel("L9").Rank())
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, ProficiencyLevel2.Valid())
	assert.False(t, ProficiencyLevel("").Valid())
	assert.True(t, TitleNone.Valid())
	assert.False(t, Title("SIR").Valid())
	assert.True(t, GenderOther.Valid())
	assert.False(t, Gender("X").Valid())
}
