package models

import "time"

// Title is the honorific enumeration, including an explicit "no
// title" sentinel that display layers must render as empty.
type Title string

const (
	TitleMr   Title = "MR"
	TitleMrs  Title = "MRS"
	TitleMiss Title = "MISS"
	TitleMs   Title = "MS"
	TitleDr   Title = "DR"
	TitleProf Title = "PROF"
	TitleRev  Title = "REV"
	TitleNone Title = "NONE"
)

// Valid reports whether the title is one of the enumerated options.
func (t Title) Valid() bool {
	switch t {
	case TitleMr, TitleMrs, TitleMiss, TitleMs, TitleDr, TitleProf, TitleRev, TitleNone:
		return true
	}
	return false
}

// Gender enumeration.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

// Valid reports whether the gender is one of the enumerated options.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Profile is a person who can be booked onto appointments. It holds
// the scheduling-specific attributes and references its identity
// record by user ID rather than extending it.
type Profile struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Title       Title            `db:"title" json:"title"`
	Phone       *string          `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time       `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      Gender           `db:"gender" json:"gender"`
	Proficiency ProficiencyLevel `db:"proficiency" json:"proficiency"`
	Notes       string           `db:"notes" json:"notes"`
	IsVolunteer bool             `db:"is_volunteer" json:"is_volunteer"`
	IsIntern    bool             `db:"is_intern" json:"is_intern"`
	IsTeacher   bool             `db:"is_teacher" json:"is_teacher"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// ProfileDetail joins identity fields for display surfaces.
type ProfileDetail struct {
	Profile
	Username  string `db:"username" json:"username"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

// Age returns the profile's age to the nearest calendar year: the
// difference of year numbers, ignoring whether the birthday has
// occurred yet this year. That approximation is intentional and
// matches the behaviour callers already rely on. Nil when the date of
// birth is unknown.
func (p *Profile) Age(now time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	age := now.Year() - p.DateOfBirth.Year()
	return &age
}

// ProfileFilter captures filtering options for listing profiles.
type ProfileFilter struct {
	Proficiency *ProficiencyLevel
	Volunteer   *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
