package model

import "time"

// ResolutionKind tags which variant of Resolution is populated.
type ResolutionKind string

const (
	ResolutionEvent   ResolutionKind = "event"
	ResolutionRegular ResolutionKind = "regular"
	ResolutionClosed  ResolutionKind = "closed"
)

// Window is an operating period anchored to real instants.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolution is the effective state of a venue at an instant. It is computed
// on demand and never stored.
//
//   - event:   Event and Period are set
//   - regular: Assignment and Period are set
//   - closed:  Period is set only when the venue is open but has no regular
//     schedule for the period's opening weekday
type Resolution struct {
	Kind       ResolutionKind
	Event      *ScheduledEvent
	Assignment *WeeklyMusicAssignment
	Period     *OperatingPeriod
	Window     *Window

	// Diagnostics lists input records that were excluded as malformed.
	Diagnostics []error
}

// NoRegularSchedule reports the "open, but nothing programmed" condition.
func (r Resolution) NoRegularSchedule() bool {
	return r.Kind == ResolutionClosed && r.Period != nil
}

// Open reports whether the resolution falls inside an operating period.
func (r Resolution) Open() bool {
	return r.Period != nil
}

// Genres returns the genres in effect, if any.
func (r Resolution) Genres() []string {
	switch r.Kind {
	case ResolutionEvent:
		if r.Event != nil {
			return r.Event.Genres
		}
	case ResolutionRegular:
		if r.Assignment != nil {
			return r.Assignment.Genres
		}
	}
	return nil
}
