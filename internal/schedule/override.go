package schedule

import (
	"nightsched/internal/interval"
	"nightsched/internal/model"
)

// IsOverride reports whether ev deviates from the regular programming of the
// weekday it starts on. Events without genres never override; any genre
// event on an unprogrammed weekday does.
func IsOverride(ev model.ScheduledEvent, music []model.WeeklyMusicAssignment) bool {
	if !ev.HasGenres() {
		return false
	}
	a := assignmentFor(interval.Weekday(ev.Start), music)
	if a == nil {
		return true
	}
	return !model.SameGenres(ev.Genres, a.Genres)
}

// Overrides keeps the events IsOverride flags, preserving order.
func Overrides(events []model.ScheduledEvent, music []model.WeeklyMusicAssignment) []model.ScheduledEvent {
	out := make([]model.ScheduledEvent, 0)
	for _, ev := range events {
		if IsOverride(ev, music) {
			out = append(out, ev)
		}
	}
	return out
}
