package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"backoffice/internal/attendee"
	"backoffice/internal/directory"
	"backoffice/internal/store"
	"backoffice/internal/verification"
)

const (
	recordsUniqueConstraint  = "attendance_records_subject_activity_key"
	subjectsUniqueConstraint = "attendance_subjects_kind_attendee_key"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn inside a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&txRepo{q: tx})
	})
}

// txRepo runs queries on an open transaction.
type txRepo struct {
	q store.Querier
}

const recordColumns = `r.id, r.subject_id, r.activity_id, s.kind, s.attendee_id, r.status, r.arrived_at,
	r.verified, r.verification_status, r.is_read, a.title, a.activity_date, r.created_at, r.updated_at`

const recordJoins = ` FROM attendance_records r
	JOIN attendance_subjects s ON s.id = r.subject_id
	JOIN activities a ON a.id = r.activity_id`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		rec  Record
		date directory.Date
	)
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.ActivityID, &rec.Attendee.Kind, &rec.Attendee.ID, &rec.Status,
		&rec.ArrivedAt, &rec.Verified, &rec.VerificationStatus, &rec.IsRead, &rec.ActivityTitle, &date,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.ActivityDate = &date
	return rec, nil
}

func getRecord(ctx context.Context, q store.Querier, where string, args ...any) (*Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+recordJoins+` WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindExisting implements Store.
func (r *Repository) FindExisting(ctx context.Context, ref attendee.Ref, activityID string) (*Record, error) {
	return getRecord(ctx, r.db, `s.kind = $1 AND s.attendee_id = $2 AND r.activity_id = $3`,
		ref.Kind, ref.ID, activityID)
}

func (t *txRepo) FindSubject(ctx context.Context, ref attendee.Ref) (*Subject, error) {
	var s Subject
	err := t.q.QueryRowContext(ctx, `
		SELECT id, kind, attendee_id, created_at
		FROM attendance_subjects
		WHERE kind = $1 AND attendee_id = $2
	`, ref.Kind, ref.ID).Scan(&s.ID, &s.Attendee.Kind, &s.Attendee.ID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *txRepo) EnsureSubject(ctx context.Context, ref attendee.Ref) (Subject, error) {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO attendance_subjects (id, kind, attendee_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT `+subjectsUniqueConstraint+` DO NOTHING
	`, uuid.NewString(), ref.Kind, ref.ID)
	if err != nil {
		return Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	s, err := t.FindSubject(ctx, ref)
	if err != nil {
		return Subject{}, err
	}
	if s == nil {
		return Subject{}, fmt.Errorf("subject for %s missing after insert", ref)
	}
	return *s, nil
}

func (t *txRepo) FindRecord(ctx context.Context, subjectID, activityID string) (*Record, error) {
	return getRecord(ctx, t.q, `r.subject_id = $1 AND r.activity_id = $2`, subjectID, activityID)
}

func (t *txRepo) AttendeeExists(ctx context.Context, ref attendee.Ref) (bool, error) {
	var table string
	switch ref.Kind {
	case attendee.KindStudent:
		table = "students"
	case attendee.KindTutor:
		table = "tutors"
	default:
		return false, fmt.Errorf("unknown attendee kind %q", ref.Kind)
	}
	var exists bool
	err := t.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, ref.ID).Scan(&exists)
	return exists, err
}

func (t *txRepo) GetActivity(ctx context.Context, id string) (*directory.Activity, error) {
	a, err := directory.ScanActivity(t.q.QueryRowContext(ctx,
		`SELECT `+directory.ActivityColumns()+` FROM activities WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *txRepo) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.VerificationStatus == "" {
		rec.VerificationStatus = VerificationPending
	}
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, subject_id, activity_id, status, arrived_at, verified, verification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, rec.ID, rec.SubjectID, rec.ActivityID, rec.Status, rec.ArrivedAt, rec.Verified, rec.VerificationStatus,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if store.IsUniqueViolation(err, recordsUniqueConstraint) {
		return Record{}, ErrDuplicateRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

func (t *txRepo) MarkVerified(ctx context.Context, recordID string) (Record, error) {
	rec, err := getRecord(ctx, t.q, `r.id = $1`, recordID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, fmt.Errorf("record %s: %w", recordID, sql.ErrNoRows)
	}
	err = t.q.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET verified = TRUE, verification_status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, recordID, VerificationVerified).Scan(&rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("mark verified: %w", err)
	}
	rec.Verified = true
	rec.VerificationStatus = VerificationVerified
	return *rec, nil
}

func (t *txRepo) InsertEntry(ctx context.Context, e verification.Entry) (verification.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return verification.Entry{}, err
		}
		meta = b
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO attendance_verifications (id, record_id, method, verified_by, verified_at, notes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.RecordID, e.Method, e.VerifiedBy, e.VerifiedAt, e.Notes, string(meta))
	if err != nil {
		return verification.Entry{}, err
	}
	return e, nil
}

// ListRecords implements Store.
func (r *Repository) ListRecords(ctx context.Context, q RecordQuery) ([]Record, error) {
	var w store.Where
	if q.ActivityID != "" {
		w.Add("r.activity_id = ?", q.ActivityID)
	}
	if q.Attendee != nil {
		w.Add("s.kind = ? AND s.attendee_id = ?", q.Attendee.Kind, q.Attendee.ID)
	}
	if q.Verified != nil {
		w.Add("r.verified = ?", *q.Verified)
	}
	if q.VerificationStatus != "" {
		w.Add("r.verification_status = ?", q.VerificationStatus)
	}
	if q.Status != "" {
		w.Add("r.status = ?", q.Status)
	}
	if q.From != nil {
		w.Add("a.activity_date >= ?", *q.From)
	}
	if q.To != nil {
		w.Add("a.activity_date <= ?", *q.To)
	}
	limit, offset := store.Page(q.Limit, q.Offset)
	query := `SELECT ` + recordColumns + recordJoins + w.SQL() +
		` ORDER BY a.activity_date DESC, r.arrived_at DESC LIMIT ` + w.Arg(limit) + ` OFFSET ` + w.Arg(offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func activityScope(q StatsQuery) *store.Where {
	w := &store.Where{}
	w.Add("a.activity_date >= ?", q.Start)
	w.Add("a.activity_date <= ?", q.End)
	if q.ShelterID != "" {
		w.Add("a.shelter_id = ?", q.ShelterID)
	}
	return w
}

// StatsCounts implements Store.
func (r *Repository) StatsCounts(ctx context.Context, q StatsQuery) (StatsCounts, error) {
	counts := StatsCounts{ByStatus: map[Status]int{}, ByMethod: map[string]int{}}

	w := activityScope(q)
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities a`+w.SQL(), w.Args()...).Scan(&counts.Activities); err != nil {
		return StatsCounts{}, fmt.Errorf("count activities: %w", err)
	}

	w = activityScope(q)
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.status, r.verified, COUNT(*)
		FROM attendance_records r
		JOIN activities a ON a.id = r.activity_id`+w.SQL()+`
		GROUP BY r.status, r.verified`, w.Args()...)
	if err != nil {
		return StatsCounts{}, fmt.Errorf("count records: %w", err)
	}
	for rows.Next() {
		var (
			status   Status
			verified bool
			n        int
		)
		if err := rows.Scan(&status, &verified, &n); err != nil {
			rows.Close()
			return StatsCounts{}, err
		}
		counts.ByStatus[status] += n
		if verified {
			counts.Verified += n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return StatsCounts{}, err
	}

	w = activityScope(q)
	rows, err = r.db.QueryContext(ctx, `
		SELECT v.method, COUNT(*)
		FROM attendance_verifications v
		JOIN attendance_records r ON r.id = v.record_id
		JOIN activities a ON a.id = r.activity_id`+w.SQL()+`
		GROUP BY v.method`, w.Args()...)
	if err != nil {
		return StatsCounts{}, fmt.Errorf("count verifications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			method string
			n      int
		)
		if err := rows.Scan(&method, &n); err != nil {
			return StatsCounts{}, err
		}
		counts.ByMethod[method] = n
	}
	return counts, rows.Err()
}

// TutorCounts implements Store.
func (r *Repository) TutorCounts(ctx context.Context, tutorID string, start, end directory.Date) (int, int, error) {
	var scheduled, attended int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities
		WHERE tutor_id = $1 AND activity_date >= $2 AND activity_date <= $3
	`, tutorID, start, end).Scan(&scheduled)
	if err != nil {
		return 0, 0, fmt.Errorf("count scheduled: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM attendance_records r
		JOIN attendance_subjects s ON s.id = r.subject_id
		JOIN activities a ON a.id = r.activity_id
		WHERE s.kind = $1 AND s.attendee_id = $2 AND a.tutor_id = $2
			AND a.activity_date >= $3 AND a.activity_date <= $4
			AND r.status IN ($5, $6)
	`, attendee.KindTutor, tutorID, start, end, StatusPresent, StatusLate).Scan(&attended)
	if err != nil {
		return 0, 0, fmt.Errorf("count attended: %w", err)
	}
	return scheduled, attended, nil
}
