package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"backoffice/internal/attendee"
	"backoffice/internal/directory"
	"backoffice/internal/verification"
)

type memState struct {
	subjects   map[attendee.Ref]Subject
	records    map[string]Record
	entries    []verification.Entry
	attendees  map[attendee.Ref]bool
	activities map[string]directory.Activity
}

func (s memState) clone() memState {
	c := memState{
		subjects:   make(map[attendee.Ref]Subject, len(s.subjects)),
		records:    make(map[string]Record, len(s.records)),
		entries:    append([]verification.Entry(nil), s.entries...),
		attendees:  s.attendees,
		activities: s.activities,
	}
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

// memStore is an in-memory Store whose transactions roll back on error.
type memStore struct {
	mu    sync.Mutex
	state memState
	seq   int

	// hideRecords makes FindRecord miss, as if another transaction had not
	// committed yet when the duplicate check ran.
	hideRecords  bool
	// dropExisting makes FindExisting miss, as if the winning transaction
	// had rolled back.
	dropExisting bool
	failInsert   error
	failEntry    error
	counts       StatsCounts
	onStats      func()
	scheduled    int
	attended     int
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		subjects:   map[attendee.Ref]Subject{},
		records:    map[string]Record{},
		attendees:  map[attendee.Ref]bool{},
		activities: map[string]directory.Activity{},
	}}
}

func (m *memStore) addAttendee(ref attendee.Ref) {
	m.state.attendees[ref] = true
}

func (m *memStore) addActivity(a directory.Activity) {
	m.state.activities[a.ID] = a
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.records)
}

func (m *memStore) entries() []verification.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]verification.Entry(nil), m.state.entries...)
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{m: m, s: &work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) FindExisting(_ context.Context, ref attendee.Ref, activityID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropExisting {
		return nil, nil
	}
	for _, r := range m.state.records {
		if r.Attendee == ref && r.ActivityID == activityID {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRecords(_ context.Context, q RecordQuery) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.state.records {
		if q.ActivityID != "" && r.ActivityID != q.ActivityID {
			continue
		}
		if q.Attendee != nil && r.Attendee != *q.Attendee {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.Verified != nil && r.Verified != *q.Verified {
			continue
		}
		if q.VerificationStatus != "" && r.VerificationStatus != q.VerificationStatus {
			continue
		}
		if q.From != nil && (r.ActivityDate == nil || r.ActivityDate.Compare(*q.From) < 0) {
			continue
		}
		if q.To != nil && (r.ActivityDate == nil || r.ActivityDate.Compare(*q.To) > 0) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ActivityDate.Compare(*out[j].ActivityDate); c != 0 {
			return c > 0
		}
		return out[i].ArrivedAt.After(out[j].ArrivedAt)
	})
	if q.Offset >= len(out) {
		return []Record{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) StatsCounts(context.Context, StatsQuery) (StatsCounts, error) {
	counts := m.counts
	if m.onStats != nil {
		m.onStats()
	}
	return counts, nil
}

func (m *memStore) TutorCounts(context.Context, string, directory.Date, directory.Date) (int, int, error) {
	return m.scheduled, m.attended, nil
}

type memTx struct {
	m *memStore
	s *memState
}

func (t *memTx) FindSubject(_ context.Context, ref attendee.Ref) (*Subject, error) {
	s, ok := t.s.subjects[ref]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *memTx) EnsureSubject(ctx context.Context, ref attendee.Ref) (Subject, error) {
	if s, ok := t.s.subjects[ref]; ok {
		return s, nil
	}
	s := Subject{ID: t.m.nextID("subject"), Attendee: ref}
	t.s.subjects[ref] = s
	return s, nil
}

func (t *memTx) FindRecord(_ context.Context, subjectID, activityID string) (*Record, error) {
	if t.m.hideRecords {
		return nil, nil
	}
	for _, r := range t.s.records {
		if r.SubjectID == subjectID && r.ActivityID == activityID {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (t *memTx) AttendeeExists(_ context.Context, ref attendee.Ref) (bool, error) {
	return t.s.attendees[ref], nil
}

func (t *memTx) GetActivity(_ context.Context, id string) (*directory.Activity, error) {
	a, ok := t.s.activities[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memTx) InsertRecord(_ context.Context, r Record) (Record, error) {
	if t.m.failInsert != nil {
		return Record{}, t.m.failInsert
	}
	for _, existing := range t.s.records {
		if existing.SubjectID == r.SubjectID && existing.ActivityID == r.ActivityID {
			return Record{}, ErrDuplicateRecord
		}
	}
	r.ID = t.m.nextID("record")
	t.s.records[r.ID] = r
	return r, nil
}

func (t *memTx) MarkVerified(_ context.Context, recordID string) (Record, error) {
	r, ok := t.s.records[recordID]
	if !ok {
		return Record{}, fmt.Errorf("record %s not found", recordID)
	}
	r.Verified = true
	r.VerificationStatus = VerificationVerified
	t.s.records[recordID] = r
	return r, nil
}

func (t *memTx) InsertEntry(_ context.Context, e verification.Entry) (verification.Entry, error) {
	if t.m.failEntry != nil {
		return verification.Entry{}, t.m.failEntry
	}
	e.ID = t.m.nextID("entry")
	t.s.entries = append(t.s.entries, e)
	return e, nil
}
