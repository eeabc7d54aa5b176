package queue

import "context"

// TypeAttendanceRecorded is published after an attendance record commits.
const TypeAttendanceRecorded = "attendance.recorded"

// AttendanceRecorded describes a committed attendance record.
type AttendanceRecorded struct {
	RecordID     string `json:"record_id"`
	ActivityID   string `json:"activity_id"`
	AttendeeKind string `json:"attendee_kind"`
	AttendeeID   string `json:"attendee_id"`
	Status       string `json:"status"`
	Method       string `json:"method"`
}

// PublishRecorded publishes evt on p.
func PublishRecorded(ctx context.Context, p Publisher, evt AttendanceRecorded) error {
	msg, err := NewMessage(TypeAttendanceRecorded, evt)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}
