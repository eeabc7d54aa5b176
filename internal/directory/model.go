package directory

import (
	"time"

	"github.com/google/uuid"
)

// Shelter is a site where activities take place.
type Shelter struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Student is a sponsored child.
type Student struct {
	ID        string    `json:"id"`
	ShelterID *string   `json:"shelter_id,omitempty"`
	FullName  string    `json:"full_name"`
	Nickname  string    `json:"nickname"`
	BirthDate *Date     `json:"birth_date,omitempty"`
	PhotoURL  string    `json:"photo_url"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tutor runs activities at a shelter.
type Tutor struct {
	ID        string    `json:"id"`
	ShelterID *string   `json:"shelter_id,omitempty"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	PhotoURL  string    `json:"photo_url"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Activity is a scheduled session. Start/end times are optional; without a
// start time no lateness is evaluated.
type Activity struct {
	ID                   string     `json:"id"`
	ShelterID            *string    `json:"shelter_id,omitempty"`
	TutorID              *string    `json:"tutor_id,omitempty"`
	Title                string     `json:"title"`
	Date                 Date       `json:"date"`
	StartTime            *TimeOfDay `json:"start_time,omitempty"`
	EndTime              *TimeOfDay `json:"end_time,omitempty"`
	LateToleranceMinutes int        `json:"late_tolerance_minutes"`
	AbsentCutoff         *TimeOfDay `json:"absent_cutoff,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HasStartTime reports whether timing rules apply.
func (a Activity) HasStartTime() bool {
	return a.StartTime != nil
}

// LateAfter is the last on-time instant: start plus tolerance.
func (a Activity) LateAfter() (TimeOfDay, bool) {
	if a.StartTime == nil {
		return TimeOfDay{}, false
	}
	return a.StartTime.Add(time.Duration(a.LateToleranceMinutes) * time.Minute), true
}

// AbsentFrom is the first instant counted as absent: the explicit cutoff,
// else the end time.
func (a Activity) AbsentFrom() (TimeOfDay, bool) {
	if a.AbsentCutoff != nil {
		return *a.AbsentCutoff, true
	}
	if a.EndTime != nil {
		return *a.EndTime, true
	}
	return TimeOfDay{}, false
}

// IsLate reports whether arrival, read in loc, is after the start plus tolerance.
func (a Activity) IsLate(arrival time.Time, loc *time.Location) bool {
	limit, ok := a.LateAfter()
	if !ok {
		return false
	}
	return ClockOf(arrival.In(loc)).After(limit)
}

// IsAbsent reports whether arrival, read in loc, is at or after the absent cutoff.
func (a Activity) IsAbsent(arrival time.Time, loc *time.Location) bool {
	cutoff, ok := a.AbsentFrom()
	if !ok {
		return false
	}
	return !ClockOf(arrival.In(loc)).Before(cutoff)
}

// AssignedTo reports whether tutorID is the activity's tutor.
func (a Activity) AssignedTo(tutorID string) bool {
	if a.TutorID == nil {
		return false
	}
	assigned, err := uuid.Parse(*a.TutorID)
	if err != nil {
		return *a.TutorID == tutorID
	}
	id, err := uuid.Parse(tutorID)
	return err == nil && id == assigned
}

// ListParams filters directory listings.
type ListParams struct {
	Search    string
	ShelterID string
	Limit     int
	Offset    int
}

// ActivityListParams filters activity listings.
type ActivityListParams struct {
	ListParams
	TutorID string
	From    *Date
	To      *Date
}
