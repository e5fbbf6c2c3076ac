package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "nightsched/internal/log"
	"nightsched/internal/model"
	"nightsched/internal/recurring"
)

const floatingLayout = "20060102T150405"

// Export renders a venue's events as an iCalendar document. Templates carry
// their recurrence as an RRULE with a floating DTSTART in the venue's wall
// clock, so BYDAY stays on the local weekday. Templates whose config cannot
// be expressed are exported as their first night only.
func Export(venue model.Venue, events []model.ScheduledEvent, now time.Time) string {
	loc := venue.Location()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//nightsched//venue calendar//EN")
	cal.SetXWRCalName(venue.Name)
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		uid := ev.ExternalUID
		if uid == "" {
			uid = ev.ID
		}
		vev := cal.AddEvent(uid)
		vev.SetDtStampTime(now)
		vev.SetSummary(ev.Title)
		if ev.Caption != "" {
			vev.SetDescription(ev.Caption)
		}
		if ev.TicketLink != "" {
			vev.SetURL(ev.TicketLink)
		}
		vev.SetLocation(venue.Name)
		if genres := model.CanonicalGenres(ev.Genres); len(genres) > 0 {
			vev.SetProperty(ical.ComponentPropertyCategories, strings.Join(genres, ","))
		}

		rule, ok := ruleFor(ev, loc)
		if !ok {
			vev.SetStartAt(ev.Start)
			vev.SetEndAt(ev.End)
			continue
		}
		vev.SetProperty(ical.ComponentPropertyDtStart, ev.Start.In(loc).Format(floatingLayout))
		vev.SetProperty(ical.ComponentPropertyDtEnd, ev.End.In(loc).Format(floatingLayout))
		vev.SetProperty(ical.ComponentPropertyRrule, rule)
	}

	return cal.Serialize()
}

// ruleFor renders the template's recurrence. An end date becomes UNTIL,
// otherwise the occurrence cap becomes COUNT (which includes the template).
func ruleFor(ev model.ScheduledEvent, loc *time.Location) (string, bool) {
	if ev.Recurring == nil || !ev.Recurring.Active {
		return "", false
	}
	opt, err := recurring.RuleOption(recurring.InZone(ev, loc))
	if err != nil {
		appLog.Error("ics export: template not expressible", err, "event_id", ev.ID)
		return "", false
	}
	if ev.Recurring.Frequency == model.FrequencyWeekly && len(opt.Byweekday) == 0 {
		return "", false
	}
	if ev.Recurring.EndDate != nil {
		opt.Until = *ev.Recurring.EndDate
	} else {
		opt.Count = ev.Recurring.EffectiveMaxOccurrences() + 1
	}
	return opt.RRuleString(), true
}
