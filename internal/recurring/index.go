package recurring

import (
	"context"
	"time"

	"nightsched/internal/model"
)

type indexKey struct {
	venueID string
	title   string
}

// Index is an in-memory duplicate check over known events. It is not safe
// for concurrent use.
type Index struct {
	starts map[indexKey][]time.Time
}

// NewIndex indexes the given events by venue and title.
func NewIndex(events ...model.ScheduledEvent) *Index {
	x := &Index{starts: make(map[indexKey][]time.Time)}
	x.Add(events...)
	return x
}

// Add records more events.
func (x *Index) Add(events ...model.ScheduledEvent) {
	for _, ev := range events {
		k := indexKey{venueID: ev.VenueID, title: ev.Title}
		x.starts[k] = append(x.starts[k], ev.Start)
	}
}

// Exists satisfies ExistsFunc.
func (x *Index) Exists(_ context.Context, venueID, title string, start time.Time) (bool, error) {
	for _, s := range x.starts[indexKey{venueID: venueID, title: title}] {
		if SameInstant(s, start) {
			return true, nil
		}
	}
	return false, nil
}

// SameInstant reports whether a and b are within DuplicateTolerance.
func SameInstant(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= DuplicateTolerance
}

// Chain returns an ExistsFunc that reports true when any check does.
func Chain(checks ...ExistsFunc) ExistsFunc {
	return func(ctx context.Context, venueID, title string, start time.Time) (bool, error) {
		for _, c := range checks {
			if c == nil {
				continue
			}
			found, err := c(ctx, venueID, title, start)
			if err != nil || found {
				return found, err
			}
		}
		return false, nil
	}
}
