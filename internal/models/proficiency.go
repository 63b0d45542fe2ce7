package models

// ProficiencyLevel is the skill tier shared by profiles and
// appointments. A single type serves both sides so the two choice
// lists cannot drift apart.
type ProficiencyLevel string

const (
	ProficiencyLevel1 ProficiencyLevel = "L1"
	ProficiencyLevel2 ProficiencyLevel = "L2"
	ProficiencyLevel3 ProficiencyLevel = "L3"
)

// ProficiencyLevels lists all levels in declaration order, lowest
// skill first.
var ProficiencyLevels = []ProficiencyLevel{
	ProficiencyLevel1,
	ProficiencyLevel2,
	ProficiencyLevel3,
}

// Valid reports whether the value is one of the enumerated levels.
func (p ProficiencyLevel) Valid() bool {
	switch p {
	case ProficiencyLevel1, ProficiencyLevel2, ProficiencyLevel3:
		return true
	}
	return false
}

// Rank returns the level's position in the declared ordering, starting
// at 1. Unknown values rank 0. The ordering is not exploited by any
// scheduling operation today; assignment requires exact equality.
func (p ProficiencyLevel) Rank() int {
	for i, level := range ProficiencyLevels {
		if level == p {
			return i + 1
		}
	}
	return 0
}

// Label returns the human-readable name for the level.
func (p ProficiencyLevel) Label() string {
	switch p {
	case ProficiencyLevel1:
		return "Level 1"
	case ProficiencyLevel2:
		return "Level 2"
	case ProficiencyLevel3:
		return "Level 3"
	}
	return string(p)
}
