package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/apperr"
	"backoffice/internal/directory"
)

var march = StatsQuery{
	Start: directory.Date{Year: 2024, Month: time.March, Day: 1},
	End:   directory.Date{Year: 2024, Month: time.March, Day: 31},
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := computeStats(march, StatsCounts{})

	assert.Zero(t, stats.TotalRecords)
	assert.Zero(t, stats.PresentRate)
	assert.Zero(t, stats.LateRate)
	assert.Zero(t, stats.AbsentRate)
	assert.Zero(t, stats.AttendanceRate)
	assert.Zero(t, stats.VerificationRate)
	assert.NotNil(t, stats.VerificationMethods)
}

func TestComputeStatsRates(t *testing.T) {
	stats := computeStats(march, StatsCounts{
		Activities: 4,
		ByStatus:   map[Status]int{StatusPresent: 1, StatusLate: 1, StatusAbsent: 1},
		Verified:   2,
		ByMethod:   map[string]int{"qr_code": 1, "manual": 1},
	})

	assert.Equal(t, 4, stats.TotalActivities)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 33.33, stats.PresentRate)
	assert.Equal(t, 33.33, stats.LateRate)
	assert.Equal(t, 33.33, stats.AbsentRate)
	assert.Equal(t, 66.67, stats.AttendanceRate)
	assert.Equal(t, 2, stats.Verified)
	assert.Equal(t, 1, stats.Unverified)
	assert.Equal(t, 66.67, stats.VerificationRate)
	assert.Equal(t, map[string]int{"qr_code": 1, "manual": 1}, stats.VerificationMethods)
}

func TestGenerateStatsZeroActivities(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActivities)
	assert.Zero(t, stats.AttendanceRate)
	assert.Zero(t, stats.VerificationRate)
}

func TestGenerateStatsValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		q    StatsQuery
	}{
		{name: "missing dates", q: StatsQuery{}},
		{name: "inverted range", q: StatsQuery{Start: march.End, End: march.Start}},
		{name: "bad shelter", q: StatsQuery{Start: march.Start, End: march.End, ShelterID: "s-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GenerateStats(context.Background(), tt.q)
			assert.ErrorIs(t, err, apperr.InvalidRequest)
		})
	}
}

type mapCache struct {
	data    map[string][]byte
	gen     int64
	genErr  error
	readErr error
	sets    int
}

func (c *mapCache) Generation(context.Context) (int64, error) {
	return c.gen, c.genErr
}

func (c *mapCache) invalidate() {
	c.gen++
	c.data = map[string][]byte{}
}

func (c *mapCache) GetStats(_ context.Context, key string, dst any) (bool, error) {
	if c.readErr != nil {
		return false, c.readErr
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetStats(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	c.sets++
	return nil
}

func TestGenerateStatsUsesCache(t *testing.T) {
	f := newFixture(t)
	cache := &mapCache{data: map[string][]byte{}}
	f.svc.WithStatsCache(cache)
	f.store.counts = StatsCounts{ByStatus: map[Status]int{StatusPresent: 3, StatusLate: 1}, Verified: 4}

	first, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.AttendanceRate)
	assert.Equal(t, 1, cache.sets)
	assert.Contains(t, cache.data, "stats:g0:2024-03-01:2024-03-31:all")

	// Underlying counts change; the cached value is served.
	f.store.counts = StatsCounts{}
	second, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, first.AttendanceRate, second.AttendanceRate)
	assert.Equal(t, 1, cache.sets)
}

func TestGenerateStatsInvalidationDuringFill(t *testing.T) {
	f := newFixture(t)
	cache := &mapCache{data: map[string][]byte{}}
	f.svc.WithStatsCache(cache)
	f.store.counts = StatsCounts{ByStatus: map[Status]int{StatusPresent: 1}}

	// A record commits and the cache is invalidated while the counts are read.
	f.store.onStats = func() {
		f.store.counts = StatsCounts{ByStatus: map[Status]int{StatusPresent: 1, StatusAbsent: 1}}
		cache.invalidate()
	}
	first, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalRecords)

	f.store.onStats = nil
	second, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TotalRecords)
	assert.Contains(t, cache.data, "stats:g1:2024-03-01:2024-03-31:all")
}

func TestGenerateStatsGenerationFailureSkipsCache(t *testing.T) {
	f := newFixture(t)
	cache := &mapCache{data: map[string][]byte{}, genErr: errors.New("redis down")}
	f.svc.WithStatsCache(cache)
	f.store.counts = StatsCounts{ByStatus: map[Status]int{StatusLate: 1}}

	stats, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.LateRate)
	assert.Zero(t, cache.sets)
}

func TestGenerateStatsCacheFailureFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.svc.WithStatsCache(&mapCache{data: map[string][]byte{}, readErr: errors.New("redis down")})
	f.store.counts = StatsCounts{ByStatus: map[Status]int{StatusAbsent: 2}}

	stats, err := f.svc.GenerateStats(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.AbsentRate)
}

func TestTutorStats(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.TutorStats(context.Background(), tutorID, march.Start, march.End)
	require.NoError(t, err)
	assert.Zero(t, stats.AttendanceRate)

	f.store.scheduled, f.store.attended = 3, 2
	stats, err = f.svc.TutorStats(context.Background(), tutorID, march.Start, march.End)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ScheduledActivities)
	assert.Equal(t, 2, stats.Attended)
	assert.Equal(t, 66.67, stats.AttendanceRate)

	_, err = f.svc.TutorStats(context.Background(), "t-1", march.Start, march.End)
	assert.ErrorIs(t, err, apperr.AttendeeNotFound)
	_, err = f.svc.TutorStats(context.Background(), tutorID, march.End, march.Start)
	assert.ErrorIs(t, err, apperr.InvalidRequest)
}

func TestStatsKey(t *testing.T) {
	q := march
	q.ShelterID = "6c1f0a4e-8f0b-4f3e-9a2d-1b2c3d4e5f60"
	assert.Equal(t, "stats:g3:2024-03-01:2024-03-31:6c1f0a4e-8f0b-4f3e-9a2d-1b2c3d4e5f60", StatsKey(q, 3))
	assert.NotEqual(t, StatsKey(q, 3), StatsKey(q, 4))
}
