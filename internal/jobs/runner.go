// Package jobs runs recurring-instance generation and feed imports, on
// demand and on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nightsched/internal/lock"
	appLog "nightsched/internal/log"
	"nightsched/internal/model"
	"nightsched/internal/recurring"
)

// ErrTemplateNotFound is returned when RunOptions.TemplateID names no template.
var ErrTemplateNotFound = errors.New("recurring template not found")

// EventStore is the persistence the runner needs.
type EventStore interface {
	ListVenues(ctx context.Context) ([]model.Venue, error)
	ListTemplates(ctx context.Context, venueID, templateID string) ([]model.ScheduledEvent, error)
	InstanceExists(ctx context.Context, venueID, title string, start time.Time) (bool, error)
	SaveEvents(ctx context.Context, events []model.ScheduledEvent) error
}

// RunOptions narrows one generation run. Zero values mean all venues, all
// templates and recurring.DefaultWeeksAhead.
type RunOptions struct {
	WeeksAhead int    `json:"weeks_ahead"`
	DryRun     bool   `json:"dry_run"`
	VenueID    string `json:"venue_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

// RunResult reports one generation run.
type RunResult struct {
	Message    string                 `json:"message"`
	Count      int                    `json:"count"`
	Generated  []model.ScheduledEvent `json:"generated_events"`
	Duplicates int                    `json:"duplicates"`
	// Truncated lists templates whose series hit MaxOccurrences.
	Truncated []string `json:"truncated_templates,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

const generateLock = "generate"

// Runner materializes recurring templates into event instances.
type Runner struct {
	store   EventStore
	locker  lock.Locker
	lockTTL time.Duration
	loc     *time.Location
	now     func() time.Time
}

// NewRunner returns a Runner. A nil locker runs without mutual exclusion.
// Templates of venues without a usable timezone recur in loc (UTC if nil).
func NewRunner(store EventStore, locker lock.Locker, lockTTL time.Duration, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{store: store, locker: locker, lockTTL: lockTTL, loc: loc, now: time.Now}
}

// Generate expands every matching template and, unless DryRun, saves the
// new instances in one batch. A per-template config problem becomes a
// warning; store errors abort the run and nothing is saved.
func (r *Runner) Generate(ctx context.Context, opts RunOptions) (RunResult, error) {
	res := RunResult{Generated: []model.ScheduledEvent{}}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, generateLock, r.lockTTL)
		if err != nil {
			return res, fmt.Errorf("generate: %w", err)
		}
		defer release()
	}

	templates, err := r.store.ListTemplates(ctx, opts.VenueID, opts.TemplateID)
	if err != nil {
		return res, fmt.Errorf("generate: list templates: %w", err)
	}
	if opts.TemplateID != "" && len(templates) == 0 {
		return res, ErrTemplateNotFound
	}
	if len(templates) == 0 {
		res.Message = "No recurring events found"
		return res, nil
	}

	zones, err := r.venueZones(ctx)
	if err != nil {
		return res, fmt.Errorf("generate: list venues: %w", err)
	}

	now := r.now()
	// Instances produced earlier in this run are not in the store yet.
	batch := recurring.NewIndex()
	exists := recurring.Chain(r.store.InstanceExists, batch.Exists)

	for _, tmpl := range templates {
		zone, ok := zones[tmpl.VenueID]
		if !ok {
			zone = r.loc
		}
		out, err := recurring.Generate(ctx, recurring.InZone(tmpl, zone), now, opts.WeeksAhead, exists)
		if err != nil {
			return res, fmt.Errorf("generate: template %s: %w", tmpl.ID, err)
		}
		for _, d := range out.Diagnostics {
			res.Warnings = append(res.Warnings, d.Error())
		}
		if out.Truncated {
			res.Truncated = append(res.Truncated, tmpl.ID)
			if out.Last.Before(now) {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"template %s: all %d occurrences are in the past; the series produces no future nights",
					tmpl.ID, tmpl.Recurring.EffectiveMaxOccurrences()))
			}
		}
		res.Duplicates += out.Duplicates
		batch.Add(out.Instances...)
		res.Generated = append(res.Generated, out.Instances...)
	}
	res.Count = len(res.Generated)

	if opts.DryRun {
		res.Message = "Dry run completed"
	} else {
		if err := r.store.SaveEvents(ctx, res.Generated); err != nil {
			return res, fmt.Errorf("generate: save instances: %w", err)
		}
		res.Message = "Recurring events generated successfully"
	}

	appLog.Info("recurring generation finished",
		"templates", len(templates),
		"generated", res.Count,
		"duplicates", res.Duplicates,
		"warnings", len(res.Warnings),
		"dry_run", opts.DryRun,
	)
	return res, nil
}

// venueZones maps venue IDs to their timezone. Venues with an empty or
// unknown zone are left out and fall back to the runner default.
func (r *Runner) venueZones(ctx context.Context) (map[string]*time.Location, error) {
	venues, err := r.store.ListVenues(ctx)
	if err != nil {
		return nil, err
	}
	zones := make(map[string]*time.Location, len(venues))
	for _, v := range venues {
		if v.Timezone == "" {
			continue
		}
		loc, err := time.LoadLocation(v.Timezone)
		if err != nil {
			appLog.Error("generate: venue timezone unknown, using default", err, "venue_id", v.ID, "timezone", v.Timezone)
			continue
		}
		zones[v.ID] = loc
	}
	return zones, nil
}
