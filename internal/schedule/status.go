package schedule

import (
	"time"

	"nightsched/internal/interval"
	"nightsched/internal/model"
)

// IsOpen reports whether any valid period contains now.
func IsOpen(now time.Time, periods []model.OperatingPeriod) bool {
	valid, _ := ValidPeriods(periods)
	for _, p := range valid {
		if _, ok := interval.ActiveWindow(p, now); ok {
			return true
		}
	}
	return false
}

// NextOpening returns the earliest period start strictly after now. It
// reports false when the venue has no valid periods.
func NextOpening(now time.Time, periods []model.OperatingPeriod) (time.Time, bool) {
	valid, _ := ValidPeriods(periods)
	var next time.Time
	found := false
	for _, p := range valid {
		w := interval.NextWindow(p, now)
		if !found || w.Start.Before(next) {
			next = w.Start
			found = true
		}
	}
	return next, found
}
