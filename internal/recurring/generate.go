// Package recurring materializes concrete event instances from recurring
// templates over a bounded horizon.
package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "nightsched/internal/log"
	"nightsched/internal/model"
)

const (
	// DefaultWeeksAhead is the horizon used when the caller passes <= 0.
	DefaultWeeksAhead = 4

	// DuplicateTolerance is how far apart two start times may be and still
	// name the same instance. Re-runs reconstruct timestamps, so exact
	// equality is too strict.
	DuplicateTolerance = time.Minute

	week = 7 * 24 * time.Hour
)

// ExistsFunc reports whether an instance of the venue's event with this title
// already starts within DuplicateTolerance of start.
type ExistsFunc func(ctx context.Context, venueID, title string, start time.Time) (bool, error)

// Result is the outcome of one Generate call. Nothing has been persisted.
type Result struct {
	Instances []model.ScheduledEvent
	// Duplicates counts series points skipped because they already exist.
	Duplicates int
	// Truncated is set when the series continued past MaxOccurrences
	// inside the horizon.
	Truncated bool
	// Last is the latest point counted toward MaxOccurrences, zero if none.
	Last time.Time
	// Diagnostics holds the ValidationError of a rejected template.
	Diagnostics []error
}

// newID assigns IDs to generated instances.
var newID = uuid.NewString

// Generate walks the template's recurrence from its start up to
// now + weeksAhead weeks (or EndDate, if earlier) and returns the instances
// that do not exist yet.
//
//   - the occurrence at the template's own start is the template itself and
//     is neither returned nor counted
//   - every later point inside the horizon counts toward MaxOccurrences,
//     existing or not, so re-running never extends the series
//   - exists is called once per counted point, in order; a nil exists
//     treats every point as new
//
// Calling Generate on an event without a recurrence config returns a
// *PreconditionError. A bad config yields no instances and a diagnostic.
func Generate(ctx context.Context, tmpl model.ScheduledEvent, now time.Time, weeksAhead int, exists ExistsFunc) (Result, error) {
	var res Result

	if !tmpl.IsTemplate() {
		return res, &PreconditionError{EventID: tmpl.ID, Reason: "event has no recurring config"}
	}
	cfg := *tmpl.Recurring

	opt, err := RuleOption(tmpl)
	if err != nil {
		appLog.Error("recurring: template rejected", err, "template_id", tmpl.ID, "venue_id", tmpl.VenueID)
		res.Diagnostics = append(res.Diagnostics, err)
		return res, nil
	}

	if !cfg.Active {
		appLog.Debug("recurring: template inactive", "template_id", tmpl.ID)
		return res, nil
	}
	if cfg.Frequency == model.FrequencyWeekly && len(cfg.DaysOfWeek) == 0 {
		appLog.Debug("recurring: weekly template has no days; never recurs", "template_id", tmpl.ID)
		return res, nil
	}

	if weeksAhead <= 0 {
		weeksAhead = DefaultWeeksAhead
	}
	limit := now.Add(time.Duration(weeksAhead) * week)
	if cfg.EndDate != nil && cfg.EndDate.Before(limit) {
		limit = *cfg.EndDate
	}
	if limit.Before(opt.Dtstart) {
		return res, nil
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		verr := &ValidationError{TemplateID: tmpl.ID, Reason: err.Error()}
		appLog.Error("recurring: building rule failed", verr, "template_id", tmpl.ID)
		res.Diagnostics = append(res.Diagnostics, verr)
		return res, nil
	}

	duration := tmpl.End.Sub(tmpl.Start)
	maxOcc := cfg.EffectiveMaxOccurrences()
	counted := 0

	for _, start := range rule.Between(opt.Dtstart, limit, true) {
		if start.Equal(opt.Dtstart) {
			continue
		}
		if counted == maxOcc {
			res.Truncated = true
			break
		}
		counted++
		res.Last = start

		if exists != nil {
			found, err := exists(ctx, tmpl.VenueID, tmpl.Title, start)
			if err != nil {
				return res, fmt.Errorf("recurring: duplicate check for %q at %s: %w", tmpl.Title, start.Format(time.RFC3339), err)
			}
			if found {
				res.Duplicates++
				continue
			}
		}

		res.Instances = append(res.Instances, instanceOf(tmpl, start, duration))
	}

	appLog.Debug("recurring: generated",
		"template_id", tmpl.ID,
		"frequency", string(cfg.Frequency),
		"limit", limit.Format(time.RFC3339),
		"new", len(res.Instances),
		"duplicates", res.Duplicates,
		"truncated", res.Truncated,
	)
	return res, nil
}

// InZone anchors the template's recurrence in loc unless its config already
// names a timezone. Stored and imported start times are often UTC, and
// weekdays and month days must be the venue's.
func InZone(tmpl model.ScheduledEvent, loc *time.Location) model.ScheduledEvent {
	if !tmpl.IsTemplate() || tmpl.Recurring.Timezone != "" || loc == nil {
		return tmpl
	}
	cfg := *tmpl.Recurring
	cfg.Timezone = loc.String()
	tmpl.Recurring = &cfg
	return tmpl
}

// RuleOption validates the template's config and translates it into an
// RFC 5545 rule anchored at the template start in the configured timezone,
// or the start's own location when none is configured (see InZone).
// Weekly maps days of week to BYDAY; monthly pins BYMONTHDAY to the start
// day, so months without that day are skipped.
func RuleOption(tmpl model.ScheduledEvent) (rrule.ROption, error) {
	if !tmpl.IsTemplate() {
		return rrule.ROption{}, &PreconditionError{EventID: tmpl.ID, Reason: "event has no recurring config"}
	}
	cfg := *tmpl.Recurring

	if !tmpl.End.After(tmpl.Start) {
		return rrule.ROption{}, &ValidationError{TemplateID: tmpl.ID, Reason: "end is not after start"}
	}
	if cfg.MaxOccurrences < 0 {
		return rrule.ROption{}, &ValidationError{TemplateID: tmpl.ID, Reason: fmt.Sprintf("max occurrences %d is negative", cfg.MaxOccurrences)}
	}

	loc := tmpl.Start.Location()
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return rrule.ROption{}, &ValidationError{TemplateID: tmpl.ID, Reason: fmt.Sprintf("unknown timezone %q", cfg.Timezone)}
		}
		loc = l
	}
	dtstart := tmpl.Start.In(loc).Truncate(time.Second)

	opt := rrule.ROption{Dtstart: dtstart}
	switch cfg.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		days, err := byWeekday(tmpl.ID, cfg.DaysOfWeek)
		if err != nil {
			return rrule.ROption{}, err
		}
		opt.Byweekday = days
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{dtstart.Day()}
	default:
		return rrule.ROption{}, &ValidationError{TemplateID: tmpl.ID, Reason: fmt.Sprintf("unknown frequency %q", cfg.Frequency)}
	}
	return opt, nil
}

// rruleDays is indexed by 0 = Sunday.
var rruleDays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func byWeekday(templateID string, days []int) ([]rrule.Weekday, error) {
	out := make([]rrule.Weekday, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d >= model.DaysPerWeek {
			return nil, &ValidationError{TemplateID: templateID, Reason: fmt.Sprintf("day of week %d out of range", d)}
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, rruleDays[d])
	}
	return out, nil
}

func instanceOf(tmpl model.ScheduledEvent, start time.Time, duration time.Duration) model.ScheduledEvent {
	inst := tmpl
	inst.ID = newID()
	inst.Start = start
	inst.End = start.Add(duration)
	inst.Genres = append([]string(nil), tmpl.Genres...)
	inst.ExternalUID = ""
	inst.Recurring = nil
	return inst
}
