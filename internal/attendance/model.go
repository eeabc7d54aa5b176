package attendance

import (
	"time"

	"backoffice/internal/attendee"
	"backoffice/internal/directory"
	"backoffice/internal/verification"
)

// Status is the attendance bucket of a record.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is a known bucket.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// Attended reports whether s counts towards the attendance rate.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// VerificationStatus tracks how far a record got through verification.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationManual   VerificationStatus = "manual"
)

// Valid reports whether v is a known verification status.
func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationVerified, VerificationManual:
		return true
	}
	return false
}

// Subject is the per-attendee handle that records hang off.
type Subject struct {
	ID        string       `json:"id"`
	Attendee  attendee.Ref `json:"attendee"`
	CreatedAt time.Time    `json:"created_at"`
}

// Record is one attendee's attendance at one activity.
type Record struct {
	ID                 string             `json:"id"`
	SubjectID          string             `json:"subject_id"`
	ActivityID         string             `json:"activity_id"`
	Attendee           attendee.Ref       `json:"attendee"`
	Status             Status             `json:"status"`
	ArrivedAt          time.Time          `json:"arrived_at"`
	Verified           bool               `json:"verified"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	IsRead             bool               `json:"is_read"`
	ActivityTitle      string             `json:"activity_title,omitempty"`
	ActivityDate       *directory.Date    `json:"activity_date,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Result is the outcome of a recording attempt. Duplicate is an outcome, not
// an error: Existing carries the record already on file.
type Result struct {
	Success      bool                 `json:"success"`
	Duplicate    bool                 `json:"duplicate,omitempty"`
	Message      string               `json:"message,omitempty"`
	Record       *Record              `json:"record,omitempty"`
	Existing     *Record              `json:"existing_record,omitempty"`
	Verification *verification.Result `json:"verification,omitempty"`
}

// QRInput records attendance proven by a scanned QR token.
type QRInput struct {
	Attendee     attendee.Ref
	ActivityID   string
	ManualStatus *Status
	Token        string
	Note         string
	ArrivalTime  *time.Time
}

// ManualInput records attendance entered by an admin.
type ManualInput struct {
	Attendee    attendee.Ref
	ActivityID  string
	Status      *Status
	ArrivalTime *time.Time
	// Actor is the admin doing the entry; empty falls back to the system actor.
	Actor string
	Notes string
}

// Filter narrows record listings.
type Filter struct {
	Verified           *bool
	VerificationStatus VerificationStatus
	Status             Status
	From               *directory.Date
	To                 *directory.Date
	Limit              int
	Offset             int
}

// RecordQuery is a Filter scoped to an activity or an attendee.
type RecordQuery struct {
	Filter
	ActivityID string
	Attendee   *attendee.Ref
}

// StatsQuery scopes statistics to a date range and optionally a shelter.
type StatsQuery struct {
	Start     directory.Date
	End       directory.Date
	ShelterID string
}

// StatsCounts are the raw aggregates statistics are computed from.
type StatsCounts struct {
	Activities int
	ByStatus   map[Status]int
	Verified   int
	ByMethod   map[string]int
}

// Stats summarizes attendance over a period.
type Stats struct {
	Start               directory.Date `json:"start"`
	End                 directory.Date `json:"end"`
	ShelterID           string         `json:"shelter_id,omitempty"`
	TotalActivities     int            `json:"total_activities"`
	TotalRecords        int            `json:"total_records"`
	Present             int            `json:"present"`
	Late                int            `json:"late"`
	Absent              int            `json:"absent"`
	PresentRate         float64        `json:"present_rate"`
	LateRate            float64        `json:"late_rate"`
	AbsentRate          float64        `json:"absent_rate"`
	AttendanceRate      float64        `json:"attendance_rate"`
	Verified            int            `json:"verified"`
	Unverified          int            `json:"unverified"`
	VerificationRate    float64        `json:"verification_rate"`
	VerificationMethods map[string]int `json:"verification_methods"`
}

// TutorStats compares a tutor's scheduled activities with attended ones.
type TutorStats struct {
	TutorID             string         `json:"tutor_id"`
	Start               directory.Date `json:"start"`
	End                 directory.Date `json:"end"`
	ScheduledActivities int            `json:"scheduled_activities"`
	Attended            int            `json:"attended"`
	AttendanceRate      float64        `json:"attendance_rate"`
}
