// Package schedule answers "what is this venue doing right now": open or
// closed, and whether a special event or the regular weekly programming is
// in effect.
package schedule

import (
	"time"

	"nightsched/internal/interval"
	appLog "nightsched/internal/log"
	"nightsched/internal/model"
)

// Resolve determines the venue state at now.
//
// Precedence inside the operating period containing now:
//
//  1. an event with genres lying entirely inside the period window
//     (earliest start wins, then lowest ID)
//  2. the regular assignment for the weekday the period opened on
//  3. closed with the period attached (open but unprogrammed)
//
// Outside every period the result is closed. Malformed periods are skipped
// and returned in Diagnostics.
func Resolve(now time.Time, periods []model.OperatingPeriod, music []model.WeeklyMusicAssignment, events []model.ScheduledEvent) model.Resolution {
	valid, diags := ValidPeriods(periods)

	for i := range valid {
		p := valid[i]
		w, ok := interval.ActiveWindow(p, now)
		if !ok {
			continue
		}

		if ev := overridingEvent(w, events); ev != nil {
			return model.Resolution{
				Kind:        model.ResolutionEvent,
				Event:       ev,
				Period:      &p,
				Window:      &w,
				Diagnostics: diags,
			}
		}

		if a := assignmentFor(p.Open.Weekday, music); a != nil {
			return model.Resolution{
				Kind:        model.ResolutionRegular,
				Assignment:  a,
				Period:      &p,
				Window:      &w,
				Diagnostics: diags,
			}
		}

		appLog.Debug("schedule: open period has no regular music", "weekday", p.Open.Weekday, "period", p.String())
		return model.Resolution{
			Kind:        model.ResolutionClosed,
			Period:      &p,
			Window:      &w,
			Diagnostics: diags,
		}
	}

	return model.Resolution{Kind: model.ResolutionClosed, Diagnostics: diags}
}

// ValidPeriods splits periods into valid ones and validation errors. Each
// rejected period is logged.
func ValidPeriods(periods []model.OperatingPeriod) ([]model.OperatingPeriod, []error) {
	valid := make([]model.OperatingPeriod, 0, len(periods))
	var diags []error
	for _, p := range periods {
		if err := interval.Validate(p); err != nil {
			appLog.Error("schedule: skipping malformed operating period", err)
			diags = append(diags, err)
			continue
		}
		valid = append(valid, p)
	}
	return valid, diags
}

// overridingEvent picks the event that takes over window w, or nil.
func overridingEvent(w model.Window, events []model.ScheduledEvent) *model.ScheduledEvent {
	var best *model.ScheduledEvent
	for i := range events {
		ev := &events[i]
		if !ev.HasGenres() || !interval.Encloses(w, ev.Start, ev.End) {
			continue
		}
		if best == nil || ev.Start.Before(best.Start) || (ev.Start.Equal(best.Start) && ev.ID < best.ID) {
			best = ev
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func assignmentFor(weekday int, music []model.WeeklyMusicAssignment) *model.WeeklyMusicAssignment {
	for i := range music {
		if music[i].Weekday == weekday {
			a := music[i]
			return &a
		}
	}
	return nil
}
