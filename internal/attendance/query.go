package attendance

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"backoffice/internal/apperr"
	"backoffice/internal/attendee"
	"backoffice/internal/directory"
)

func (f Filter) validate() error {
	if f.VerificationStatus != "" && !f.VerificationStatus.Valid() {
		return apperr.InvalidRequest.WithMessage("unknown verification_status")
	}
	if f.Status != "" && !f.Status.Valid() {
		return apperr.InvalidRequest.WithMessage("unknown status")
	}
	if f.From != nil && f.To != nil && f.From.Compare(*f.To) > 0 {
		return apperr.InvalidRequest.WithMessage("from must not be after to")
	}
	return nil
}

// ListByActivity returns the records of one activity.
func (s *Service) ListByActivity(ctx context.Context, activityID string, f Filter) ([]Record, error) {
	activityID, err := attendee.CanonicalID(activityID)
	if err != nil {
		return nil, apperr.ActivityNotFound
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, RecordQuery{Filter: f, ActivityID: activityID})
	return records, storageErr(err)
}

// ListByAttendee returns the records of one student or tutor.
func (s *Service) ListByAttendee(ctx context.Context, ref attendee.Ref, f Filter) ([]Record, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return nil, apperr.AttendeeNotFound
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, RecordQuery{Filter: f, Attendee: &ref})
	return records, storageErr(err)
}

// GenerateStats aggregates records of activities dated within [start, end],
// optionally limited to a shelter.
func (s *Service) GenerateStats(ctx context.Context, q StatsQuery) (Stats, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return Stats{}, apperr.InvalidRequest.WithMessage("start and end are required")
	}
	if q.Start.Compare(q.End) > 0 {
		return Stats{}, apperr.InvalidRequest.WithMessage("start must not be after end")
	}
	if q.ShelterID != "" {
		shelterID, err := attendee.CanonicalID(q.ShelterID)
		if err != nil {
			return Stats{}, apperr.InvalidRequest.WithMessage("shelter_id must be a uuid")
		}
		q.ShelterID = shelterID
	}

	cache := s.cache
	var key string
	if cache != nil {
		// Read the generation before the counts: an invalidation that lands
		// while they are computed retires this key.
		gen, err := cache.Generation(ctx)
		if err != nil {
			s.log.Warn("stats cache generation read failed", zap.Error(err))
			cache = nil
		}
		key = StatsKey(q, gen)
	}
	if cache != nil {
		var cached Stats
		hit, err := cache.GetStats(ctx, key, &cached)
		if err != nil {
			s.log.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	counts, err := s.store.StatsCounts(ctx, q)
	if err != nil {
		return Stats{}, storageErr(err)
	}
	stats := computeStats(q, counts)

	if cache != nil {
		if err := cache.SetStats(ctx, key, stats); err != nil {
			s.log.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return stats, nil
}

// TutorStats compares a tutor's scheduled activities in [start, end] with the
// ones the tutor attended (present or late).
func (s *Service) TutorStats(ctx context.Context, tutorID string, start, end directory.Date) (TutorStats, error) {
	tutorID, err := attendee.CanonicalID(tutorID)
	if err != nil {
		return TutorStats{}, apperr.AttendeeNotFound
	}
	if start.IsZero() || end.IsZero() {
		return TutorStats{}, apperr.InvalidRequest.WithMessage("start and end are required")
	}
	if start.Compare(end) > 0 {
		return TutorStats{}, apperr.InvalidRequest.WithMessage("start must not be after end")
	}
	scheduled, attended, err := s.store.TutorCounts(ctx, tutorID, start, end)
	if err != nil {
		return TutorStats{}, storageErr(err)
	}
	return TutorStats{
		TutorID:             tutorID,
		Start:               start,
		End:                 end,
		ScheduledActivities: scheduled,
		Attended:            attended,
		AttendanceRate:      rate(attended, scheduled),
	}, nil
}

// StatsKey identifies a stats query in the cache generation gen.
func StatsKey(q StatsQuery, gen int64) string {
	shelter := q.ShelterID
	if shelter == "" {
		shelter = "all"
	}
	return strings.Join([]string{"stats", "g" + strconv.FormatInt(gen, 10), q.Start.String(), q.End.String(), shelter}, ":")
}

func computeStats(q StatsQuery, c StatsCounts) Stats {
	present := c.ByStatus[StatusPresent]
	late := c.ByStatus[StatusLate]
	absent := c.ByStatus[StatusAbsent]
	total := present + late + absent

	methods := make(map[string]int, len(c.ByMethod))
	for m, n := range c.ByMethod {
		methods[m] = n
	}

	return Stats{
		Start:               q.Start,
		End:                 q.End,
		ShelterID:           q.ShelterID,
		TotalActivities:     c.Activities,
		TotalRecords:        total,
		Present:             present,
		Late:                late,
		Absent:              absent,
		PresentRate:         rate(present, total),
		LateRate:            rate(late, total),
		AbsentRate:          rate(absent, total),
		AttendanceRate:      rate(present+late, total),
		Verified:            c.Verified,
		Unverified:          total - c.Verified,
		VerificationRate:    rate(c.Verified, total),
		VerificationMethods: methods,
	}
}

// rate is part/total as a percentage rounded to 2 decimals; 0 when total is 0.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
