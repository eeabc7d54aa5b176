// Package httpapi exposes attendance and directory operations over HTTP.
package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/attendance"
	"backoffice/internal/attendee"
	"backoffice/internal/cloudinary"
	"backoffice/internal/directory"
	"backoffice/internal/metrics"
	"backoffice/internal/queue"
)

// AttendanceService is the subset of attendance.Service used by the handlers.
type AttendanceService interface {
	RecordByQR(ctx context.Context, in attendance.QRInput) (*attendance.Result, error)
	RecordManual(ctx context.Context, in attendance.ManualInput) (*attendance.Result, error)
	RecordTutorManual(ctx context.Context, in attendance.ManualInput) (*attendance.Result, error)
	ListByActivity(ctx context.Context, activityID string, f attendance.Filter) ([]attendance.Record, error)
	ListByAttendee(ctx context.Context, ref attendee.Ref, f attendance.Filter) ([]attendance.Record, error)
	GenerateStats(ctx context.Context, q attendance.StatsQuery) (attendance.Stats, error)
	TutorStats(ctx context.Context, tutorID string, start, end directory.Date) (attendance.TutorStats, error)
}

// DirectoryService is the subset of directory.Service used by the handlers.
type DirectoryService interface {
	CreateShelter(ctx context.Context, in directory.ShelterInput) (directory.Shelter, error)
	GetShelter(ctx context.Context, id string) (directory.Shelter, error)
	UpdateShelter(ctx context.Context, id string, in directory.ShelterInput) (directory.Shelter, error)
	ListShelters(ctx context.Context, p directory.ListParams) ([]directory.Shelter, error)
	DeleteShelter(ctx context.Context, id string) error

	CreateStudent(ctx context.Context, in directory.StudentInput) (directory.Student, error)
	GetStudent(ctx context.Context, id string) (directory.Student, error)
	UpdateStudent(ctx context.Context, id string, in directory.StudentInput) (directory.Student, error)
	ListStudents(ctx context.Context, p directory.ListParams) ([]directory.Student, error)
	DeleteStudent(ctx context.Context, id string) error
	SetStudentPhoto(ctx context.Context, id, url string) error

	CreateTutor(ctx context.Context, in directory.TutorInput) (directory.Tutor, error)
	GetTutor(ctx context.Context, id string) (directory.Tutor, error)
	UpdateTutor(ctx context.Context, id string, in directory.TutorInput) (directory.Tutor, error)
	ListTutors(ctx context.Context, p directory.ListParams) ([]directory.Tutor, error)
	DeleteTutor(ctx context.Context, id string) error
	SetTutorPhoto(ctx context.Context, id, url string) error

	CreateActivity(ctx context.Context, in directory.ActivityInput) (directory.Activity, error)
	GetActivity(ctx context.Context, id string) (directory.Activity, error)
	UpdateActivity(ctx context.Context, id string, in directory.ActivityInput) (directory.Activity, error)
	ListActivities(ctx context.Context, p directory.ActivityListParams) ([]directory.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
}

// TokenIssuer signs QR tokens for attendees.
type TokenIssuer interface {
	Issue(ref attendee.Ref) (string, time.Time, error)
}

// PhotoUploader stores attendee photos; *cloudinary.Client implements it.
type PhotoUploader interface {
	UploadBase64(ctx context.Context, data, publicID string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename, publicID string) (*cloudinary.UploadResult, error)
}

// Handler serves the /v1 API.
type Handler struct {
	attendance AttendanceService
	directory  DirectoryService
	tokens     TokenIssuer
	photos     PhotoUploader
	events     queue.Publisher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithPhotos enables photo uploads.
func WithPhotos(p PhotoUploader) Option { return func(h *Handler) { h.photos = p } }

// WithEvents publishes attendance.recorded after each committed record.
func WithEvents(p queue.Publisher) Option { return func(h *Handler) { h.events = p } }

// WithMetrics counts recording outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

// NewHandler creates a handler over the given services.
func NewHandler(att AttendanceService, dir DirectoryService, tokens TokenIssuer, log *zap.Logger, opts ...Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{attendance: att, directory: dir, tokens: tokens, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
