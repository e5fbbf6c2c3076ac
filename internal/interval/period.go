// Package interval anchors weekly operating periods onto real time.
//
// A period is stored as weekday+wall-clock pairs. Anchoring it to a concrete
// week produces a model.Window whose End lies on the next calendar day for
// overnight periods. The overnight decision is made per period from its own
// weekdays; venues mix same-day and overnight periods freely.
package interval

import (
	"fmt"
	"time"

	"nightsched/internal/model"
)

const minutesPerDay = 24 * 60

// ValidationError reports a malformed operating period.
type ValidationError struct {
	Period model.OperatingPeriod
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("operating period %s: %s", e.Period, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return model.ErrInvalid
}

// Validate checks field ranges, the close-weekday relation and the duration
// (0 < d <= 24h). Invalid periods are reported, never adjusted.
func Validate(p model.OperatingPeriod) error {
	if err := validateTime(p, p.Open, "open"); err != nil {
		return err
	}
	if err := validateTime(p, p.Close, "close"); err != nil {
		return err
	}

	nextDay := (p.Open.Weekday + 1) % model.DaysPerWeek
	if p.Close.Weekday != p.Open.Weekday && p.Close.Weekday != nextDay {
		return &ValidationError{
			Period: p,
			Reason: fmt.Sprintf("close weekday %d is neither %d nor %d", p.Close.Weekday, p.Open.Weekday, nextDay),
		}
	}

	mins := DurationMinutes(p.Open, p.Close, p.SpansNextDay())
	if mins <= 0 {
		return &ValidationError{Period: p, Reason: "close is not after open"}
	}
	if mins > minutesPerDay {
		return &ValidationError{Period: p, Reason: fmt.Sprintf("duration %dm exceeds 24h", mins)}
	}
	return nil
}

func validateTime(p model.OperatingPeriod, t model.TimeOfWeek, which string) error {
	switch {
	case t.Weekday < 0 || t.Weekday >= model.DaysPerWeek:
		return &ValidationError{Period: p, Reason: fmt.Sprintf("%s weekday %d out of range", which, t.Weekday)}
	case t.Hour < 0 || t.Hour > 23:
		return &ValidationError{Period: p, Reason: fmt.Sprintf("%s hour %d out of range", which, t.Hour)}
	case t.Minute < 0 || t.Minute > 59:
		return &ValidationError{Period: p, Reason: fmt.Sprintf("%s minute %d out of range", which, t.Minute)}
	}
	return nil
}

// DurationMinutes is the length of an open->close span in minutes. It is
// negative or zero for a same-day close at or before open.
func DurationMinutes(open, close model.TimeOfWeek, spansNextDay bool) int {
	mins := close.MinuteOfDay() - open.MinuteOfDay()
	if spansNextDay {
		mins += minutesPerDay
	}
	return mins
}

// Weekday returns t's weekday as 0 (Sunday) .. 6 (Saturday).
func Weekday(t time.Time) int {
	return int(t.Weekday())
}

// WeekStart returns local midnight of the Sunday starting the week that
// contains t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-Weekday(t), 0, 0, 0, 0, t.Location())
}

// WindowOn anchors p to the Sunday-started week containing ref. Only the
// opening weekday decides which week that is; the close may land in the
// following week for a Saturday-night period.
func WindowOn(p model.OperatingPeriod, ref time.Time) model.Window {
	return windowFrom(p, WeekStart(ref))
}

func windowFrom(p model.OperatingPeriod, sunday time.Time) model.Window {
	y, m, d := sunday.Date()
	loc := sunday.Location()

	openDay := d + p.Open.Weekday
	start := time.Date(y, m, openDay, p.Open.Hour, p.Open.Minute, 0, 0, loc)

	closeDay := openDay
	if p.SpansNextDay() {
		closeDay++
	}
	end := time.Date(y, m, closeDay, p.Close.Hour, p.Close.Minute, 0, 0, loc)

	return model.Window{Start: start, End: end}
}

// ActiveWindow returns the occurrence of p that contains t, if any. Both the
// week containing t and the previous week are considered, so a period that
// opened on Saturday is still found after midnight on Sunday.
func ActiveWindow(p model.OperatingPeriod, t time.Time) (model.Window, bool) {
	sunday := WeekStart(t)
	for _, anchor := range []time.Time{sunday, sunday.AddDate(0, 0, -7)} {
		w := windowFrom(p, anchor)
		if Contains(w, t) {
			return w, true
		}
	}
	return model.Window{}, false
}

// NextWindow returns the first occurrence of p that starts strictly after t.
func NextWindow(p model.OperatingPeriod, t time.Time) model.Window {
	w := windowFrom(p, WeekStart(t))
	if !w.Start.After(t) {
		w = windowFrom(p, WeekStart(t).AddDate(0, 0, 7))
	}
	return w
}

// Contains reports start <= t <= end.
func Contains(w model.Window, t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Encloses reports whether [start, end] lies entirely inside w.
func Encloses(w model.Window, start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// Length is End - Start.
func Length(w model.Window) time.Duration {
	return w.End.Sub(w.Start)
}
