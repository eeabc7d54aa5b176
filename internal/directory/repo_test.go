package directory

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/store"
	"backoffice/internal/store/storetest"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	os.Exit(storetest.Run(m, &testDB))
}

// newTestShelter creates a shelter and removes it, with everything hanging off
// it, when the test ends.
func newTestShelter(t *testing.T, repo *Repository) Shelter {
	t.Helper()
	s, err := repo.InsertShelter(context.Background(), Shelter{Name: "Rumah Singgah " + t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() {
		storetest.Exec(t, testDB, `DELETE FROM activities WHERE shelter_id = $1`, s.ID)
		storetest.Exec(t, testDB, `DELETE FROM students WHERE shelter_id = $1`, s.ID)
		storetest.Exec(t, testDB, `DELETE FROM tutors WHERE shelter_id = $1`, s.ID)
		storetest.Exec(t, testDB, `DELETE FROM shelters WHERE id = $1`, s.ID)
	})
	return s
}

func TestRepositoryActivityTimes(t *testing.T) {
	storetest.Require(t, testDB)
	repo := NewRepository(testDB)
	ctx := context.Background()
	shelter := newTestShelter(t, repo)

	tutor, err := repo.InsertTutor(ctx, Tutor{ShelterID: &shelter.ID, FullName: "Pak Budi", Active: true})
	require.NoError(t, err)

	day := Date{Year: 2031, Month: time.July, Day: 14}
	in := Activity{
		ShelterID:            &shelter.ID,
		TutorID:              &tutor.ID,
		Title:                "Mengaji",
		Date:                 day,
		StartTime:            tod(9, 0),
		EndTime:              tod(11, 30),
		LateToleranceMinutes: 10,
		AbsentCutoff:         &TimeOfDay{Hour: 9, Minute: 45, Second: 30},
	}
	created, err := repo.InsertActivity(ctx, in)
	require.NoError(t, err)

	got, err := repo.GetActivity(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, day, got.Date)
	require.NotNil(t, got.StartTime)
	assert.Equal(t, TimeOfDay{Hour: 9}, *got.StartTime)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, TimeOfDay{Hour: 11, Minute: 30}, *got.EndTime)
	require.NotNil(t, got.AbsentCutoff)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 45, Second: 30}, *got.AbsentCutoff)
	assert.Equal(t, 10, got.LateToleranceMinutes)
	assert.True(t, got.AssignedTo(tutor.ID))

	bare, err := repo.InsertActivity(ctx, Activity{ShelterID: &shelter.ID, Title: "Bermain", Date: day})
	require.NoError(t, err)
	got, err = repo.GetActivity(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StartTime)
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.AbsentCutoff)
	assert.Nil(t, got.TutorID)
}

func TestRepositoryListActivities(t *testing.T) {
	storetest.Require(t, testDB)
	repo := NewRepository(testDB)
	ctx := context.Background()
	shelter := newTestShelter(t, repo)

	tutor, err := repo.InsertTutor(ctx, Tutor{ShelterID: &shelter.ID, FullName: "Bu Rina", Active: true})
	require.NoError(t, err)

	for _, d := range []int{3, 10, 17} {
		_, err := repo.InsertActivity(ctx, Activity{
			ShelterID: &shelter.ID,
			TutorID:   &tutor.ID,
			Title:     "Matematika",
			Date:      Date{Year: 2031, Month: time.August, Day: d},
			StartTime: tod(8, 0),
		})
		require.NoError(t, err)
	}
	_, err = repo.InsertActivity(ctx, Activity{ShelterID: &shelter.ID, Title: "Olahraga", Date: Date{Year: 2031, Month: time.August, Day: 10}})
	require.NoError(t, err)

	from := Date{Year: 2031, Month: time.August, Day: 4}
	to := Date{Year: 2031, Month: time.August, Day: 17}
	list, err := repo.ListActivities(ctx, ActivityListParams{
		ListParams: ListParams{ShelterID: shelter.ID},
		TutorID:    tutor.ID,
		From:       &from,
		To:         &to,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 17, list[0].Date.Day)
	assert.Equal(t, 10, list[1].Date.Day)

	all, err := repo.ListActivities(ctx, ActivityListParams{ListParams: ListParams{ShelterID: shelter.ID, Search: "olah"}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Olahraga", all[0].Title)

	paged, err := repo.ListActivities(ctx, ActivityListParams{ListParams: ListParams{ShelterID: shelter.ID, Limit: 2, Offset: 2}})
	require.NoError(t, err)
	assert.Len(t, paged, 2)
}

func TestRepositoryUpdateAndDeleteActivity(t *testing.T) {
	storetest.Require(t, testDB)
	repo := NewRepository(testDB)
	ctx := context.Background()
	shelter := newTestShelter(t, repo)

	a, err := repo.InsertActivity(ctx, Activity{ShelterID: &shelter.ID, Title: "Menggambar", Date: Date{Year: 2031, Month: time.May, Day: 1}})
	require.NoError(t, err)

	a.Date = Date{Year: 2031, Month: time.May, Day: 2}
	a.StartTime = tod(13, 15)
	updated, err := repo.UpdateActivity(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Date.Day)
	require.NotNil(t, updated.StartTime)
	assert.Equal(t, TimeOfDay{Hour: 13, Minute: 15}, *updated.StartTime)

	require.NoError(t, repo.DeleteActivity(ctx, a.ID))
	_, err = repo.GetActivity(ctx, a.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(repo.DeleteActivity(ctx, a.ID)))
}

func TestRepositoryReferencedShelter(t *testing.T) {
	storetest.Require(t, testDB)
	repo := NewRepository(testDB)
	ctx := context.Background()
	shelter := newTestShelter(t, repo)

	student, err := repo.InsertStudent(ctx, Student{ShelterID: &shelter.ID, FullName: "Dewi", Active: true})
	require.NoError(t, err)

	err = repo.DeleteShelter(ctx, shelter.ID)
	assert.True(t, store.IsForeignKeyViolation(err))

	missing := "00000000-0000-4000-8000-000000000000"
	_, err = repo.InsertStudent(ctx, Student{ShelterID: &missing, FullName: "Tono", Active: true})
	assert.True(t, store.IsForeignKeyViolation(err))

	require.NoError(t, repo.SetStudentPhoto(ctx, student.ID, "https://cdn.example/dewi.jpg"))
	got, err := repo.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/dewi.jpg", got.PhotoURL)
	assert.True(t, IsNotFound(repo.SetStudentPhoto(ctx, missing, "x")))
}
