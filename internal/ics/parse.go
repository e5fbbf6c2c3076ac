package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "nightsched/internal/log"
	"nightsched/internal/model"
)

// ParseResult is what a feed yields for one venue. Skipped holds one error
// per VEVENT that could not be turned into an event.
type ParseResult struct {
	Events  []model.ScheduledEvent
	Skipped []error
}

// Parse turns a promoter feed into scheduled events for src.VenueID.
//
//   - SUMMARY, DESCRIPTION and URL become title, caption and ticket link
//   - CATEGORIES are mapped onto the canonical genre vocabulary
//   - an RRULE makes the event a recurring template
//   - floating times are read in src.Location
//
// All-day entries and RECURRENCE-ID overrides are skipped: venues publish
// nights, and instances are materialized by the generator instead.
func Parse(src Source, body []byte) (ParseResult, error) {
	var res ParseResult
	if len(body) == 0 {
		return res, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "feed", src.ID, "url", redactURL(src.URL))
		return res, err
	}

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "feed", src.ID, "reason", perr.Error())
			res.Skipped = append(res.Skipped, perr)
			continue
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("ics parse completed", "feed", src.ID, "venue_id", src.VenueID,
		"event_count", len(res.Events), "skipped", len(res.Skipped))
	return res, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (model.ScheduledEvent, error) {
	var out model.ScheduledEvent

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return out, errors.New("missing UID")
	}
	if ve.GetProperty("RECURRENCE-ID") != nil {
		return out, fmt.Errorf("%s: recurrence override", uid)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("%s: missing DTSTART", uid)
	}
	if isDateOnly(dtStart) {
		return out, fmt.Errorf("%s: all-day event", uid)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", uid, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, fmt.Errorf("%s: DTEND: %w", uid, err)
	}
	loc := src.location()
	if isFloating(dtStart) {
		start = inLocation(start, loc)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && isFloating(dtEnd) {
			end = inLocation(end, loc)
		}
	}
	if !end.After(start) {
		return out, fmt.Errorf("%s: end %s is not after start %s", uid, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	out = model.ScheduledEvent{
		ID:          eventID(src.VenueID, uid),
		VenueID:     src.VenueID,
		Title:       strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary)),
		Caption:     propValue(ve, ical.ComponentPropertyDescription),
		TicketLink:  propValue(ve, ical.ComponentPropertyUrl),
		Start:       start,
		End:         end,
		Genres:      genresOf(ve),
		CreatedBy:   "ics:" + src.ID,
		ExternalUID: uid,
	}
	if out.Title == "" {
		return out, fmt.Errorf("%s: missing SUMMARY", uid)
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		// UTC and floating starts recur on the feed's local weekdays.
		anchor := start.Location()
		tzid := tzidOf(dtStart)
		if tzid != "" {
			if l, err := time.LoadLocation(tzid); err == nil {
				anchor = l
			}
		} else if src.Timezone != "" {
			anchor = loc
		}
		written, err := time.Parse(floatingLayout, strings.TrimSuffix(dtStart.Value, "Z"))
		if err != nil {
			return out, fmt.Errorf("%s: DTSTART: %w", uid, err)
		}
		cfg, err := recurringFromRule(raw, written, start.In(anchor))
		if err != nil {
			return out, fmt.Errorf("%s: %w", uid, err)
		}
		if cfg != nil && tzid != "" {
			cfg.Timezone = tzid
		} else if cfg != nil && src.Timezone != "" {
			cfg.Timezone = loc.String()
		}
		out.Recurring = cfg
	}
	return out, nil
}

// recurringFromRule maps the RRULE subset the generator supports. written is
// DTSTART as it appears in the feed, which is what BYDAY and BYMONTHDAY
// refer to; local is the same instant in the zone the series is kept in.
// A COUNT includes the first occurrence, which is the template itself.
func recurringFromRule(raw string, written, local time.Time) (*model.RecurringConfig, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(raw, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("RRULE %q: %w", raw, err)
	}
	if opt.Interval > 1 {
		return nil, fmt.Errorf("RRULE %q: interval %d unsupported", raw, opt.Interval)
	}
	shift := int(local.Weekday()) - int(written.Weekday()) + model.DaysPerWeek

	cfg := &model.RecurringConfig{Active: true}
	switch opt.Freq {
	case rrule.DAILY:
		cfg.Frequency = model.FrequencyDaily
	case rrule.WEEKLY:
		cfg.Frequency = model.FrequencyWeekly
		if len(opt.Byweekday) == 0 {
			cfg.DaysOfWeek = []int{int(local.Weekday())}
		}
		for _, wd := range opt.Byweekday {
			// rrule counts from Monday.
			cfg.DaysOfWeek = append(cfg.DaysOfWeek, (wd.Day()+1+shift)%model.DaysPerWeek)
		}
	case rrule.MONTHLY:
		if len(opt.Byweekday) > 0 {
			return nil, fmt.Errorf("RRULE %q: monthly by weekday unsupported", raw)
		}
		if len(opt.Bymonthday) > 1 || (len(opt.Bymonthday) == 1 && opt.Bymonthday[0] != written.Day()) {
			return nil, fmt.Errorf("RRULE %q: monthly day must match DTSTART", raw)
		}
		cfg.Frequency = model.FrequencyMonthly
	default:
		return nil, fmt.Errorf("RRULE %q: frequency unsupported", raw)
	}

	if opt.Count == 1 {
		return nil, nil
	}
	if opt.Count > 1 {
		cfg.MaxOccurrences = opt.Count - 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		cfg.EndDate = &until
	}
	return cfg, nil
}

// genresOf reads every CATEGORIES line; each may carry a comma list.
func genresOf(ve *ical.VEvent) []string {
	var labels []string
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		labels = append(labels, strings.Split(p.Value, ",")...)
	}
	if len(labels) == 0 {
		return nil
	}
	return model.CanonicalGenres(labels)
}

// eventID is stable per venue and UID, so re-importing a feed updates rows
// instead of adding new ones.
func eventID(venueID, uid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ics:"+venueID+"/"+uid)).String()
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidOf(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

func isFloating(p *ical.IANAProperty) bool {
	return tzidOf(p) == "" && !strings.HasSuffix(p.Value, "Z")
}

// inLocation keeps the wall clock of t and reinterprets it in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
