package model

import (
	"fmt"
	"time"
)

// Weekday numbering used throughout the venue data: 0 = Sunday ... 6 = Saturday.
// It matches time.Weekday, but venue documents carry it as a plain int.
const DaysPerWeek = 7

// TimeOfWeek is a wall-clock position inside the repeating 7-day cycle.
type TimeOfWeek struct {
	Weekday int `json:"day" yaml:"day" db:"day"`
	Hour    int `json:"hour" yaml:"hour" db:"hour"`
	Minute  int `json:"minute" yaml:"minute" db:"minute"`
}

// MinuteOfDay returns Hour*60 + Minute.
func (t TimeOfWeek) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfWeek) String() string {
	return fmt.Sprintf("%s %02d:%02d", weekdayName(t.Weekday), t.Hour, t.Minute)
}

// OperatingPeriod is one contiguous open interval of a venue's week.
// Close falls on the same weekday as Open or on the following one.
type OperatingPeriod struct {
	Open  TimeOfWeek `json:"open" yaml:"open"`
	Close TimeOfWeek `json:"close" yaml:"close"`
}

// SpansNextDay reports whether the period closes on the weekday after it opens.
func (p OperatingPeriod) SpansNextDay() bool {
	return p.Close.Weekday != p.Open.Weekday
}

func (p OperatingPeriod) String() string {
	return p.Open.String() + " - " + p.Close.String()
}

// OperatingHours is the hours document stored on a venue record.
type OperatingHours struct {
	Periods []OperatingPeriod `json:"periods" yaml:"periods"`
	// WeekdayDescriptions are human readable lines ("Friday: 10:00 PM – 2:00 AM").
	// They are informational only and never parsed.
	WeekdayDescriptions []string `json:"weekdayDescriptions,omitempty" yaml:"weekday_descriptions,omitempty"`
}

// WeeklyMusicAssignment is the default programming for one weekday.
type WeeklyMusicAssignment struct {
	VenueID string   `json:"venue_id,omitempty" db:"venue_id"`
	Weekday int      `json:"day_of_week" db:"day_of_week"`
	Genres  []string `json:"genres" db:"-"`
}

// Venue is the subset of a venue record the scheduling code needs.
type Venue struct {
	ID       string         `json:"id" db:"id"`
	Name     string         `json:"name" db:"name"`
	Timezone string         `json:"timezone" db:"timezone"`
	Hours    OperatingHours `json:"hours" db:"-"`
}

// Location resolves the venue timezone, falling back to UTC when it is
// empty or unknown.
func (v Venue) Location() *time.Location {
	if v.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduledEvent is either a one-off event, a recurring template (Recurring
// set) or an instance generated from a template (Recurring always nil).
type ScheduledEvent struct {
	ID         string    `json:"id"`
	VenueID    string    `json:"venue_id"`
	Title      string    `json:"title"`
	Caption    string    `json:"caption,omitempty"`
	PosterURL  string    `json:"poster_url,omitempty"`
	TicketLink string    `json:"ticket_link,omitempty"`
	Start      time.Time `json:"start_date"`
	End        time.Time `json:"end_date"`
	Genres     []string  `json:"music_genres,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`

	// ExternalUID is the iCalendar UID for events imported from a feed.
	ExternalUID string `json:"external_uid,omitempty"`

	Recurring *RecurringConfig `json:"recurring_config,omitempty"`
}

// HasGenres reports whether the event declares at least one genre.
func (e ScheduledEvent) HasGenres() bool {
	for _, g := range e.Genres {
		if g != "" {
			return true
		}
	}
	return false
}

// IsTemplate reports whether the event carries a recurrence definition.
func (e ScheduledEvent) IsTemplate() bool {
	return e.Recurring != nil
}

// Duration is End - Start.
func (e ScheduledEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func weekdayName(d int) string {
	if d < 0 || d >= DaysPerWeek {
		return fmt.Sprintf("day(%d)", d)
	}
	return time.Weekday(d).String()
}
