package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backoffice/internal/apperr"
	"backoffice/internal/store"
)

// Store is the persistence the directory service needs.
type Store interface {
	InsertShelter(ctx context.Context, s Shelter) (Shelter, error)
	GetShelter(ctx context.Context, id string) (Shelter, error)
	UpdateShelter(ctx context.Context, s Shelter) (Shelter, error)
	ListShelters(ctx context.Context, p ListParams) ([]Shelter, error)
	DeleteShelter(ctx context.Context, id string) error

	InsertStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	ListStudents(ctx context.Context, p ListParams) ([]Student, error)
	DeleteStudent(ctx context.Context, id string) error
	SetStudentPhoto(ctx context.Context, id, url string) error

	InsertTutor(ctx context.Context, t Tutor) (Tutor, error)
	GetTutor(ctx context.Context, id string) (Tutor, error)
	UpdateTutor(ctx context.Context, t Tutor) (Tutor, error)
	ListTutors(ctx context.Context, p ListParams) ([]Tutor, error)
	DeleteTutor(ctx context.Context, id string) error
	SetTutorPhoto(ctx context.Context, id, url string) error

	InsertActivity(ctx context.Context, a Activity) (Activity, error)
	GetActivity(ctx context.Context, id string) (Activity, error)
	UpdateActivity(ctx context.Context, a Activity) (Activity, error)
	ListActivities(ctx context.Context, p ActivityListParams) ([]Activity, error)
	DeleteActivity(ctx context.Context, id string) error
}

// StatsInvalidator drops cached statistics. Activity changes move records in
// and out of date and shelter ranges, so they invalidate every cached result.
type StatsInvalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// Service validates directory input and maps storage errors to business errors.
type Service struct {
	store Store
	stats StatsInvalidator
	log   *zap.Logger
}

// NewService creates a service backed by a store.
func NewService(s Store) *Service {
	return &Service{store: s, log: zap.NewNop()}
}

// WithStatsInvalidator drops cached statistics after every activity change.
func (s *Service) WithStatsInvalidator(inv StatsInvalidator, log *zap.Logger) *Service {
	s.stats = inv
	if log != nil {
		s.log = log
	}
	return s
}

// activitiesChanged runs after a committed activity change; a failure only
// leaves statistics stale until the cache TTL.
func (s *Service) activitiesChanged(ctx context.Context, op string) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.InvalidateAll(ctx); err != nil {
		s.log.Warn("stats cache invalidation failed", zap.String("op", op), zap.Error(err))
	}
}

// ShelterInput is the writable part of a shelter.
type ShelterInput struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// StudentInput is the writable part of a student.
type StudentInput struct {
	ShelterID *string `json:"shelter_id"`
	FullName  string  `json:"full_name" binding:"required"`
	Nickname  string  `json:"nickname"`
	BirthDate *Date   `json:"birth_date"`
	Active    *bool   `json:"active"`
}

// TutorInput is the writable part of a tutor.
type TutorInput struct {
	ShelterID *string `json:"shelter_id"`
	FullName  string  `json:"full_name" binding:"required"`
	Phone     string  `json:"phone"`
	Active    *bool   `json:"active"`
}

// ActivityInput is the writable part of an activity.
type ActivityInput struct {
	ShelterID            *string    `json:"shelter_id"`
	TutorID              *string    `json:"tutor_id"`
	Title                string     `json:"title" binding:"required"`
	Date                 Date       `json:"date" binding:"required"`
	StartTime            *TimeOfDay `json:"start_time"`
	EndTime              *TimeOfDay `json:"end_time"`
	LateToleranceMinutes int        `json:"late_tolerance_minutes"`
	AbsentCutoff         *TimeOfDay `json:"absent_cutoff"`
}

func (in ShelterInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.InvalidRequest.WithMessage("name is required")
	}
	return nil
}

func (in StudentInput) validate() error {
	if strings.TrimSpace(in.FullName) == "" {
		return apperr.InvalidRequest.WithMessage("full_name is required")
	}
	return validOptionalID("shelter_id", in.ShelterID)
}

func (in TutorInput) validate() error {
	if strings.TrimSpace(in.FullName) == "" {
		return apperr.InvalidRequest.WithMessage("full_name is required")
	}
	return validOptionalID("shelter_id", in.ShelterID)
}

func (in ActivityInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.InvalidRequest.WithMessage("title is required")
	}
	if in.Date.IsZero() {
		return apperr.InvalidRequest.WithMessage("date is required")
	}
	if in.LateToleranceMinutes < 0 {
		return apperr.InvalidRequest.WithMessage("late_tolerance_minutes must not be negative")
	}
	if in.StartTime != nil && in.EndTime != nil && !in.EndTime.After(*in.StartTime) {
		return apperr.InvalidRequest.WithMessage("end_time must be after start_time")
	}
	if in.StartTime != nil && in.AbsentCutoff != nil && in.AbsentCutoff.Before(*in.StartTime) {
		return apperr.InvalidRequest.WithMessage("absent_cutoff must not be before start_time")
	}
	if err := validOptionalID("shelter_id", in.ShelterID); err != nil {
		return err
	}
	return validOptionalID("tutor_id", in.TutorID)
}

func validOptionalID(field string, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := uuid.Parse(*id); err != nil {
		return apperr.InvalidRequest.WithMessage(field + " must be a uuid")
	}
	return nil
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound
	}
	return nil
}

// mapErr turns storage errors into business errors; op names the operation.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return apperr.NotFound
	case store.IsUnavailable(err):
		return apperr.StorageUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
	case store.IsForeignKeyViolation(err):
		if strings.HasPrefix(op, "delete") {
			return apperr.Conflict
		}
		return apperr.InvalidRequest.WithMessage("referenced shelter or tutor does not exist")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func activeOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// ---------- shelters ----------

func (s *Service) CreateShelter(ctx context.Context, in ShelterInput) (Shelter, error) {
	if err := in.validate(); err != nil {
		return Shelter{}, err
	}
	out, err := s.store.InsertShelter(ctx, Shelter{Name: strings.TrimSpace(in.Name), Address: in.Address})
	return out, mapErr("insert shelter", err)
}

func (s *Service) GetShelter(ctx context.Context, id string) (Shelter, error) {
	if err := validID(id); err != nil {
		return Shelter{}, err
	}
	out, err := s.store.GetShelter(ctx, id)
	return out, mapErr("get shelter", err)
}

func (s *Service) UpdateShelter(ctx context.Context, id string, in ShelterInput) (Shelter, error) {
	if err := validID(id); err != nil {
		return Shelter{}, err
	}
	if err := in.validate(); err != nil {
		return Shelter{}, err
	}
	out, err := s.store.UpdateShelter(ctx, Shelter{ID: id, Name: strings.TrimSpace(in.Name), Address: in.Address})
	return out, mapErr("update shelter", err)
}

func (s *Service) ListShelters(ctx context.Context, p ListParams) ([]Shelter, error) {
	out, err := s.store.ListShelters(ctx, p)
	return out, mapErr("list shelters", err)
}

func (s *Service) DeleteShelter(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	return mapErr("delete shelter", s.store.DeleteShelter(ctx, id))
}

// ---------- students ----------

func (s *Service) CreateStudent(ctx context.Context, in StudentInput) (Student, error) {
	if err := in.validate(); err != nil {
		return Student{}, err
	}
	out, err := s.store.InsertStudent(ctx, Student{
		ShelterID: in.ShelterID,
		FullName:  strings.TrimSpace(in.FullName),
		Nickname:  in.Nickname,
		BirthDate: in.BirthDate,
		Active:    activeOr(in.Active, true),
	})
	return out, mapErr("insert student", err)
}

func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	if err := validID(id); err != nil {
		return Student{}, err
	}
	out, err := s.store.GetStudent(ctx, id)
	return out, mapErr("get student", err)
}

func (s *Service) UpdateStudent(ctx context.Context, id string, in StudentInput) (Student, error) {
	if err := validID(id); err != nil {
		return Student{}, err
	}
	if err := in.validate(); err != nil {
		return Student{}, err
	}
	out, err := s.store.UpdateStudent(ctx, Student{
		ID:        id,
		ShelterID: in.ShelterID,
		FullName:  strings.TrimSpace(in.FullName),
		Nickname:  in.Nickname,
		BirthDate: in.BirthDate,
		Active:    activeOr(in.Active, true),
	})
	return out, mapErr("update student", err)
}

func (s *Service) ListStudents(ctx context.Context, p ListParams) ([]Student, error) {
	out, err := s.store.ListStudents(ctx, p)
	return out, mapErr("list students", err)
}

func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	return mapErr("delete student", s.store.DeleteStudent(ctx, id))
}

func (s *Service) SetStudentPhoto(ctx context.Context, id, url string) error {
	if err := validID(id); err != nil {
		return err
	}
	return mapErr("set student photo", s.store.SetStudentPhoto(ctx, id, url))
}

// ---------- tutors ----------

func (s *Service) CreateTutor(ctx context.Context, in TutorInput) (Tutor, error) {
	if err := in.validate(); err != nil {
		return Tutor{}, err
	}
	out, err := s.store.InsertTutor(ctx, Tutor{
		ShelterID: in.ShelterID,
		FullName:  strings.TrimSpace(in.FullName),
		Phone:     in.Phone,
		Active:    activeOr(in.Active, true),
	})
	return out, mapErr("insert tutor", err)
}

func (s *Service) GetTutor(ctx context.Context, id string) (Tutor, error) {
	if err := validID(id); err != nil {
		return Tutor{}, err
	}
	out, err := s.store.GetTutor(ctx, id)
	return out, mapErr("get tutor", err)
}

func (s *Service) UpdateTutor(ctx context.Context, id string, in TutorInput) (Tutor, error) {
	if err := validID(id); err != nil {
		return Tutor{}, err
	}
	if err := in.validate(); err != nil {
		return Tutor{}, err
	}
	out, err := s.store.UpdateTutor(ctx, Tutor{
		ID:        id,
		ShelterID: in.ShelterID,
		FullName:  strings.TrimSpace(in.FullName),
		Phone:     in.Phone,
		Active:    activeOr(in.Active, true),
	})
	return out, mapErr("update tutor", err)
}

func (s *Service) ListTutors(ctx context.Context, p ListParams) ([]Tutor, error) {
	out, err := s.store.ListTutors(ctx, p)
	return out, mapErr("list tutors", err)
}

func (s *Service) DeleteTutor(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	return mapErr("delete tutor", s.store.DeleteTutor(ctx, id))
}

func (s *Service) SetTutorPhoto(ctx context.Context, id, url string) error {
	if err := validID(id); err != nil {
		return err
	}
	return mapErr("set tutor photo", s.store.SetTutorPhoto(ctx, id, url))
}

// ---------- activities ----------

func (in ActivityInput) toActivity(id string) Activity {
	return Activity{
		ID:                   id,
		ShelterID:            in.ShelterID,
		TutorID:              in.TutorID,
		Title:                strings.TrimSpace(in.Title),
		Date:                 in.Date,
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		LateToleranceMinutes: in.LateToleranceMinutes,
		AbsentCutoff:         in.AbsentCutoff,
	}
}

func (s *Service) CreateActivity(ctx context.Context, in ActivityInput) (Activity, error) {
	if err := in.validate(); err != nil {
		return Activity{}, err
	}
	out, err := s.store.InsertActivity(ctx, in.toActivity(""))
	if err != nil {
		return Activity{}, mapErr("insert activity", err)
	}
	s.activitiesChanged(ctx, "insert activity")
	return out, nil
}

func (s *Service) GetActivity(ctx context.Context, id string) (Activity, error) {
	if err := validID(id); err != nil {
		return Activity{}, err
	}
	out, err := s.store.GetActivity(ctx, id)
	return out, mapErr("get activity", err)
}

func (s *Service) UpdateActivity(ctx context.Context, id string, in ActivityInput) (Activity, error) {
	if err := validID(id); err != nil {
		return Activity{}, err
	}
	if err := in.validate(); err != nil {
		return Activity{}, err
	}
	out, err := s.store.UpdateActivity(ctx, in.toActivity(id))
	if err != nil {
		return Activity{}, mapErr("update activity", err)
	}
	s.activitiesChanged(ctx, "update activity")
	return out, nil
}

func (s *Service) ListActivities(ctx context.Context, p ActivityListParams) ([]Activity, error) {
	if p.From != nil && p.To != nil && p.From.Compare(*p.To) > 0 {
		return nil, apperr.InvalidRequest.WithMessage("from must not be after to")
	}
	out, err := s.store.ListActivities(ctx, p)
	return out, mapErr("list activities", err)
}

func (s *Service) DeleteActivity(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := s.store.DeleteActivity(ctx, id); err != nil {
		return mapErr("delete activity", err)
	}
	s.activitiesChanged(ctx, "delete activity")
	return nil
}
