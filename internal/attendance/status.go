package attendance

import (
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/directory"
)

// DetermineStatus maps an arrival at an activity to a status. A manual status
// wins outright, including for activities that have not happened yet. Without
// one, days are compared in loc: future activities are rejected, past ones
// are absent, and same-day arrivals are judged by the activity's own cutoffs.
func DetermineStatus(a directory.Activity, arrival time.Time, manual *Status, now time.Time, loc *time.Location) (Status, error) {
	if manual != nil {
		return *manual, nil
	}

	today := directory.DateOf(now.In(loc))
	switch c := a.Date.Compare(today); {
	case c > 0:
		return "", apperr.ActivityNotStarted
	case c < 0:
		return StatusAbsent, nil
	}

	if !a.HasStartTime() {
		return StatusPresent, nil
	}
	if a.IsAbsent(arrival, loc) {
		return StatusAbsent, nil
	}
	if a.IsLate(arrival, loc) {
		return StatusLate, nil
	}
	return StatusPresent, nil
}
