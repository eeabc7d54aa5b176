package attendance

import (
	"context"
	"errors"

	"backoffice/internal/attendee"
	"backoffice/internal/directory"
	"backoffice/internal/verification"
)

// ErrDuplicateRecord is returned by InsertRecord when the (subject, activity)
// pair already has a record.
var ErrDuplicateRecord = errors.New("attendance record already exists")

// Store is the attendance persistence used by Service.
type Store interface {
	// WithTx runs fn in one transaction, committing only when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// FindExisting looks up the record for an attendee and activity outside any
	// transaction. It returns nil when none exists.
	FindExisting(ctx context.Context, ref attendee.Ref, activityID string) (*Record, error)
	ListRecords(ctx context.Context, q RecordQuery) ([]Record, error)
	StatsCounts(ctx context.Context, q StatsQuery) (StatsCounts, error)
	TutorCounts(ctx context.Context, tutorID string, start, end directory.Date) (scheduled, attended int, err error)
}

// Tx is the transactional part of Store.
type Tx interface {
	verification.EntryWriter

	// FindSubject returns nil when the attendee has no subject yet.
	FindSubject(ctx context.Context, ref attendee.Ref) (*Subject, error)
	EnsureSubject(ctx context.Context, ref attendee.Ref) (Subject, error)
	// FindRecord returns nil when no record exists for the pair.
	FindRecord(ctx context.Context, subjectID, activityID string) (*Record, error)
	AttendeeExists(ctx context.Context, ref attendee.Ref) (bool, error)
	// GetActivity returns nil when the activity does not exist.
	GetActivity(ctx context.Context, id string) (*directory.Activity, error)
	InsertRecord(ctx context.Context, r Record) (Record, error)
	MarkVerified(ctx context.Context, recordID string) (Record, error)
}

// StatsCache stores computed statistics by key. Generation changes whenever
// cached statistics are invalidated.
type StatsCache interface {
	Generation(ctx context.Context) (int64, error)
	GetStats(ctx context.Context, key string, dst any) (bool, error)
	SetStats(ctx context.Context, key string, v any) error
}
