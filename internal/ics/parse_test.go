package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightsched/internal/model"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//promoter//EN
BEGIN:VEVENT
UID:techno-1
DTSTAMP:20240101T000000Z
DTSTART:20240308T220000Z
DTEND:20240309T030000Z
SUMMARY:Techno Night
DESCRIPTION:Warehouse set
URL:https://tickets.example.com/techno
CATEGORIES:Techno,Dubstep
END:VEVENT
BEGIN:VEVENT
UID:fridays
DTSTAMP:20240101T000000Z
DTSTART;TZID=Europe/Berlin:20240301T230000
DTEND;TZID=Europe/Berlin:20240302T040000
SUMMARY:House Fridays
CATEGORIES:House
RRULE:FREQ=WEEKLY;BYDAY=FR;COUNT=5
END:VEVENT
BEGIN:VEVENT
UID:allday
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240310
DTEND;VALUE=DATE:20240311
SUMMARY:Closed for renovation
END:VEVENT
BEGIN:VEVENT
UID:floating
DTSTAMP:20240101T000000Z
DTSTART:20240315T210000
DTEND:20240315T235900
SUMMARY:Jazz Lounge
CATEGORIES:lounge
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	return loc
}

func byUID(events []model.ScheduledEvent) map[string]model.ScheduledEvent {
	out := make(map[string]model.ScheduledEvent, len(events))
	for _, ev := range events {
		out[ev.ExternalUID] = ev
	}
	return out
}

func TestParseFeed(t *testing.T) {
	loc := berlin(t)
	src := Source{ID: "promoter", VenueID: "club-1", Timezone: "Europe/Berlin"}

	res, err := Parse(src, crlf(feed))
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Len(t, res.Skipped, 1)

	events := byUID(res.Events)

	techno := events["techno-1"]
	assert.Equal(t, "club-1", techno.VenueID)
	assert.Equal(t, "Techno Night", techno.Title)
	assert.Equal(t, "Warehouse set", techno.Caption)
	assert.Equal(t, "https://tickets.example.com/techno", techno.TicketLink)
	assert.Equal(t, []string{"EDM"}, techno.Genres)
	assert.True(t, techno.Start.Equal(time.Date(2024, time.March, 8, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, 5*time.Hour, techno.Duration())
	assert.Equal(t, "ics:promoter", techno.CreatedBy)
	assert.Equal(t, eventID("club-1", "techno-1"), techno.ID)
	assert.Nil(t, techno.Recurring)

	fridays := events["fridays"]
	require.NotNil(t, fridays.Recurring)
	assert.Equal(t, model.FrequencyWeekly, fridays.Recurring.Frequency)
	assert.Equal(t, []int{5}, fridays.Recurring.DaysOfWeek)
	assert.Equal(t, 4, fridays.Recurring.MaxOccurrences)
	assert.Equal(t, "Europe/Berlin", fridays.Recurring.Timezone)
	assert.Equal(t, 23, fridays.Start.In(loc).Hour())

	jazz := events["floating"]
	assert.Equal(t, []string{"Jazz"}, jazz.Genres)
	assert.Equal(t, 21, jazz.Start.Hour())
	assert.Equal(t, loc.String(), jazz.Start.Location().String())
}

const utcWeeklyFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//promoter//EN
BEGIN:VEVENT
UID:mondays
DTSTAMP:20240101T000000Z
DTSTART:20240305T030000Z
DTEND:20240305T070000Z
SUMMARY:Monday Bass
RRULE:FREQ=WEEKLY;BYDAY=TU
END:VEVENT
END:VCALENDAR
`

func TestParseUTCRecurrenceTakesFeedZone(t *testing.T) {
	if _, err := time.LoadLocation("America/Toronto"); err != nil {
		t.Skip("tzdata not available")
	}

	res, err := Parse(Source{ID: "promoter", VenueID: "club-1", Timezone: "America/Toronto"}, crlf(utcWeeklyFeed))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.NotNil(t, res.Events[0].Recurring)
	assert.Equal(t, "America/Toronto", res.Events[0].Recurring.Timezone)
	assert.Equal(t, []int{1}, res.Events[0].Recurring.DaysOfWeek)

	res, err = Parse(Source{ID: "promoter", VenueID: "club-1"}, crlf(utcWeeklyFeed))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Empty(t, res.Events[0].Recurring.Timezone)
	assert.Equal(t, []int{2}, res.Events[0].Recurring.DaysOfWeek)
}

func TestParseIDsAreStable(t *testing.T) {
	src := Source{ID: "promoter", VenueID: "club-1"}
	a, err := Parse(src, crlf(feed))
	require.NoError(t, err)
	b, err := Parse(src, crlf(feed))
	require.NoError(t, err)
	assert.Equal(t, byUID(a.Events)["techno-1"].ID, byUID(b.Events)["techno-1"].ID)

	other, err := Parse(Source{ID: "promoter", VenueID: "club-2"}, crlf(feed))
	require.NoError(t, err)
	assert.NotEqual(t, byUID(a.Events)["techno-1"].ID, byUID(other.Events)["techno-1"].ID)
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, err := Parse(Source{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestRecurringFromRule(t *testing.T) {
	friday := time.Date(2024, time.March, 1, 22, 0, 0, 0, time.UTC)

	cfg, err := recurringFromRule("FREQ=WEEKLY", friday, friday)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, cfg.DaysOfWeek)

	cfg, err = recurringFromRule("RRULE:FREQ=WEEKLY;BYDAY=SU,SA", friday, friday)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 6}, cfg.DaysOfWeek)

	// Tuesday 03:00 UTC is Monday night five hours west.
	tuesday := time.Date(2024, time.March, 5, 3, 0, 0, 0, time.UTC)
	cfg, err = recurringFromRule("FREQ=WEEKLY;BYDAY=TU,SA", tuesday, tuesday.In(time.FixedZone("EST", -5*3600)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 5}, cfg.DaysOfWeek)

	cfg, err = recurringFromRule("FREQ=MONTHLY;UNTIL=20240601T000000Z", friday, friday)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyMonthly, cfg.Frequency)
	require.NotNil(t, cfg.EndDate)
	assert.True(t, cfg.EndDate.Equal(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))

	cfg, err = recurringFromRule("FREQ=DAILY;COUNT=1", friday, friday)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	for _, raw := range []string{
		"FREQ=YEARLY",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=FR",
		"FREQ=MONTHLY;BYDAY=1FR",
		"FREQ=MONTHLY;BYMONTHDAY=15",
	} {
		_, err := recurringFromRule(raw, friday, friday)
		assert.Error(t, err, raw)
	}
}
