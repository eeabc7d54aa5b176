package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/store"
)

// Repository persists directory data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ---------- shelters ----------

const shelterColumns = `id, name, address, created_at, updated_at`

func scanShelter(row interface{ Scan(...any) error }) (Shelter, error) {
	var s Shelter
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) InsertShelter(ctx context.Context, s Shelter) (Shelter, error) {
	s.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO shelters (id, name, address)
		VALUES ($1, $2, $3)
		RETURNING `+shelterColumns, s.ID, s.Name, s.Address)
	return scanShelter(row)
}

func (r *Repository) GetShelter(ctx context.Context, id string) (Shelter, error) {
	return scanShelter(r.db.QueryRowContext(ctx, `SELECT `+shelterColumns+` FROM shelters WHERE id = $1`, id))
}

func (r *Repository) UpdateShelter(ctx context.Context, s Shelter) (Shelter, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE shelters SET name = $2, address = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+shelterColumns, s.ID, s.Name, s.Address)
	return scanShelter(row)
}

func (r *Repository) ListShelters(ctx context.Context, p ListParams) ([]Shelter, error) {
	var w store.Where
	if p.Search != "" {
		w.Add("name ILIKE ?", "%"+p.Search+"%")
	}
	limit, offset := store.Page(p.Limit, p.Offset)
	query := `SELECT ` + shelterColumns + ` FROM shelters` + w.SQL() +
		` ORDER BY name LIMIT ` + w.Arg(limit) + ` OFFSET ` + w.Arg(offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Shelter{}
	for rows.Next() {
		s, err := scanShelter(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) DeleteShelter(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "shelters", id)
}

// ---------- students ----------

const studentColumns = `id, shelter_id, full_name, nickname, birth_date, photo_url, active, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.ShelterID, &s.FullName, &s.Nickname, &s.BirthDate, &s.PhotoURL, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	s.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, shelter_id, full_name, nickname, birth_date, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+studentColumns, s.ID, s.ShelterID, s.FullName, s.Nickname, s.BirthDate, s.Active)
	return scanStudent(row)
}

func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

func (r *Repository) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET shelter_id = $2, full_name = $3, nickname = $4, birth_date = $5, active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+studentColumns, s.ID, s.ShelterID, s.FullName, s.Nickname, s.BirthDate, s.Active)
	return scanStudent(row)
}

func (r *Repository) ListStudents(ctx context.Context, p ListParams) ([]Student, error) {
	var w store.Where
	if p.Search != "" {
		w.Add("(full_name ILIKE ? OR nickname ILIKE ?)", "%"+p.Search+"%", "%"+p.Search+"%")
	}
	if p.ShelterID != "" {
		w.Add("shelter_id = ?", p.ShelterID)
	}
	limit, offset := store.Page(p.Limit, p.Offset)
	query := `SELECT ` + studentColumns + ` FROM students` + w.SQL() +
		` ORDER BY full_name LIMIT ` + w.Arg(limit) + ` OFFSET ` + w.Arg(offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "students", id)
}

func (r *Repository) SetStudentPhoto(ctx context.Context, id, url string) error {
	return r.setPhoto(ctx, "students", id, url)
}

// ---------- tutors ----------

const tutorColumns = `id, shelter_id, full_name, phone, photo_url, active, created_at, updated_at`

func scanTutor(row interface{ Scan(...any) error }) (Tutor, error) {
	var t Tutor
	err := row.Scan(&t.ID, &t.ShelterID, &t.FullName, &t.Phone, &t.PhotoURL, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *Repository) InsertTutor(ctx context.Context, t Tutor) (Tutor, error) {
	t.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tutors (id, shelter_id, full_name, phone, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tutorColumns, t.ID, t.ShelterID, t.FullName, t.Phone, t.Active)
	return scanTutor(row)
}

func (r *Repository) GetTutor(ctx context.Context, id string) (Tutor, error) {
	return scanTutor(r.db.QueryRowContext(ctx, `SELECT `+tutorColumns+` FROM tutors WHERE id = $1`, id))
}

func (r *Repository) UpdateTutor(ctx context.Context, t Tutor) (Tutor, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tutors
		SET shelter_id = $2, full_name = $3, phone = $4, active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+tutorColumns, t.ID, t.ShelterID, t.FullName, t.Phone, t.Active)
	return scanTutor(row)
}

func (r *Repository) ListTutors(ctx context.Context, p ListParams) ([]Tutor, error) {
	var w store.Where
	if p.Search != "" {
		w.Add("full_name ILIKE ?", "%"+p.Search+"%")
	}
	if p.ShelterID != "" {
		w.Add("shelter_id = ?", p.ShelterID)
	}
	limit, offset := store.Page(p.Limit, p.Offset)
	query := `SELECT ` + tutorColumns + ` FROM tutors` + w.SQL() +
		` ORDER BY full_name LIMIT ` + w.Arg(limit) + ` OFFSET ` + w.Arg(offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Tutor{}
	for rows.Next() {
		t, err := scanTutor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *Repository) DeleteTutor(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "tutors", id)
}

func (r *Repository) SetTutorPhoto(ctx context.Context, id, url string) error {
	return r.setPhoto(ctx, "tutors", id, url)
}

// ---------- activities ----------

const activityColumns = `id, shelter_id, tutor_id, title, activity_date, start_time, end_time,
	late_tolerance_minutes, absent_cutoff, created_at, updated_at`

// ScanActivity reads a row selected with ActivityColumns.
func ScanActivity(row interface{ Scan(...any) error }) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.ShelterID, &a.TutorID, &a.Title, &a.Date, &a.StartTime, &a.EndTime,
		&a.LateToleranceMinutes, &a.AbsentCutoff, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// ActivityColumns is the column list ScanActivity expects.
func ActivityColumns() string { return activityColumns }

func (r *Repository) InsertActivity(ctx context.Context, a Activity) (Activity, error) {
	a.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO activities (id, shelter_id, tutor_id, title, activity_date, start_time, end_time,
			late_tolerance_minutes, absent_cutoff)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+activityColumns,
		a.ID, a.ShelterID, a.TutorID, a.Title, a.Date, a.StartTime, a.EndTime, a.LateToleranceMinutes, a.AbsentCutoff)
	return ScanActivity(row)
}

func (r *Repository) GetActivity(ctx context.Context, id string) (Activity, error) {
	return ScanActivity(r.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
}

func (r *Repository) UpdateActivity(ctx context.Context, a Activity) (Activity, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE activities
		SET shelter_id = $2, tutor_id = $3, title = $4, activity_date = $5, start_time = $6, end_time = $7,
			late_tolerance_minutes = $8, absent_cutoff = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+activityColumns,
		a.ID, a.ShelterID, a.TutorID, a.Title, a.Date, a.StartTime, a.EndTime, a.LateToleranceMinutes, a.AbsentCutoff)
	return ScanActivity(row)
}

func (r *Repository) ListActivities(ctx context.Context, p ActivityListParams) ([]Activity, error) {
	var w store.Where
	if p.Search != "" {
		w.Add("title ILIKE ?", "%"+p.Search+"%")
	}
	if p.ShelterID != "" {
		w.Add("shelter_id = ?", p.ShelterID)
	}
	if p.TutorID != "" {
		w.Add("tutor_id = ?", p.TutorID)
	}
	if p.From != nil {
		w.Add("activity_date >= ?", *p.From)
	}
	if p.To != nil {
		w.Add("activity_date <= ?", *p.To)
	}
	limit, offset := store.Page(p.Limit, p.Offset)
	query := `SELECT ` + activityColumns + ` FROM activities` + w.SQL() +
		` ORDER BY activity_date DESC, start_time NULLS LAST LIMIT ` + w.Arg(limit) + ` OFFSET ` + w.Arg(offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Activity{}
	for rows.Next() {
		a, err := ScanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r *Repository) DeleteActivity(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "activities", id)
}

// ---------- helpers ----------

// table is always one of the package constants above.
func (r *Repository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *Repository) setPhoto(ctx context.Context, table, id, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET photo_url = $2, updated_at = $3 WHERE id = $1`, id, url, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
