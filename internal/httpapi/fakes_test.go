package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/attendance"
	"backoffice/internal/attendee"
	"backoffice/internal/cloudinary"
	"backoffice/internal/directory"
	"backoffice/internal/queue"
)

type fakeAttendance struct {
	result *attendance.Result
	err    error

	qr     attendance.QRInput
	manual attendance.ManualInput
	tutor  bool
	filter attendance.Filter
	listed string
	ref    attendee.Ref
	stats  attendance.StatsQuery
}

func (f *fakeAttendance) RecordByQR(_ context.Context, in attendance.QRInput) (*attendance.Result, error) {
	f.qr = in
	return f.result, f.err
}

func (f *fakeAttendance) RecordManual(_ context.Context, in attendance.ManualInput) (*attendance.Result, error) {
	f.manual = in
	return f.result, f.err
}

func (f *fakeAttendance) RecordTutorManual(_ context.Context, in attendance.ManualInput) (*attendance.Result, error) {
	f.manual = in
	f.tutor = true
	return f.result, f.err
}

func (f *fakeAttendance) ListByActivity(_ context.Context, id string, flt attendance.Filter) ([]attendance.Record, error) {
	f.listed, f.filter = id, flt
	return []attendance.Record{}, f.err
}

func (f *fakeAttendance) ListByAttendee(_ context.Context, ref attendee.Ref, flt attendance.Filter) ([]attendance.Record, error) {
	f.ref, f.filter = ref, flt
	return []attendance.Record{}, f.err
}

func (f *fakeAttendance) GenerateStats(_ context.Context, q attendance.StatsQuery) (attendance.Stats, error) {
	f.stats = q
	return attendance.Stats{Start: q.Start, End: q.End, TotalActivities: 2, AttendanceRate: 50}, f.err
}

func (f *fakeAttendance) TutorStats(_ context.Context, tutorID string, start, end directory.Date) (attendance.TutorStats, error) {
	return attendance.TutorStats{TutorID: tutorID, Start: start, End: end, ScheduledActivities: 4, Attended: 3, AttendanceRate: 75}, f.err
}

// fakeDirectory implements the handful of directory calls the tests reach;
// anything else panics through the nil embedded interface.
type fakeDirectory struct {
	DirectoryService

	students map[string]directory.Student
	tutors   map[string]directory.Tutor
	photos   map[string]string
	deleted  []string
	created  directory.ShelterInput
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		students: map[string]directory.Student{},
		tutors:   map[string]directory.Tutor{},
		photos:   map[string]string{},
	}
}

func (f *fakeDirectory) GetStudent(_ context.Context, id string) (directory.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return directory.Student{}, apperr.NotFound.WithMessage("student not found")
	}
	return s, nil
}

func (f *fakeDirectory) GetTutor(_ context.Context, id string) (directory.Tutor, error) {
	t, ok := f.tutors[id]
	if !ok {
		return directory.Tutor{}, apperr.NotFound.WithMessage("tutor not found")
	}
	return t, nil
}

func (f *fakeDirectory) SetStudentPhoto(_ context.Context, id, url string) error {
	f.photos[id] = url
	return nil
}

func (f *fakeDirectory) SetTutorPhoto(_ context.Context, id, url string) error {
	f.photos[id] = url
	return nil
}

func (f *fakeDirectory) CreateShelter(_ context.Context, in directory.ShelterInput) (directory.Shelter, error) {
	f.created = in
	return directory.Shelter{ID: "shelter-1", Name: in.Name, Address: in.Address}, nil
}

func (f *fakeDirectory) DeleteShelter(_ context.Context, id string) error {
	if id == "busy" {
		return apperr.Conflict
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeTokens struct {
	exp time.Time
}

func (f fakeTokens) Issue(ref attendee.Ref) (string, time.Time, error) {
	return "qr-" + ref.String(), f.exp, nil
}

type fakeUploader struct {
	fail     bool
	publicID string
	filename string
}

func (f *fakeUploader) UploadBase64(_ context.Context, _ string, publicID string) (*cloudinary.UploadResult, error) {
	return f.upload(publicID)
}

func (f *fakeUploader) UploadBytes(_ context.Context, _ []byte, filename, publicID string) (*cloudinary.UploadResult, error) {
	f.filename = filename
	return f.upload(publicID)
}

func (f *fakeUploader) upload(publicID string) (*cloudinary.UploadResult, error) {
	f.publicID = publicID
	if f.fail {
		return nil, errors.New("cloudinary: upload failed (500)")
	}
	return &cloudinary.UploadResult{PublicID: "shelter/" + publicID, SecureURL: "https://cdn.example/" + publicID + ".jpg"}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}
