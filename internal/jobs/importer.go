package jobs

import (
	"context"
	"errors"
	"fmt"

	"nightsched/internal/ics"
	appLog "nightsched/internal/log"
	"nightsched/internal/model"
)

// FeedFetcher downloads feed bodies; *ics.Fetcher implements it.
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// EventSaver stores imported events.
type EventSaver interface {
	SaveEvents(ctx context.Context, events []model.ScheduledEvent) error
}

// ImportResult counts what one import pass did.
type ImportResult struct {
	Feeds   int `json:"feeds"`
	Failed  int `json:"failed"`
	Events  int `json:"events"`
	Skipped int `json:"skipped"`
}

// Importer pulls the configured promoter feeds into the store.
type Importer struct {
	fetcher FeedFetcher
	store   EventSaver
	sources []ics.Source
}

func NewImporter(fetcher FeedFetcher, store EventSaver, sources []ics.Source) *Importer {
	return &Importer{fetcher: fetcher, store: store, sources: sources}
}

// Import fetches, parses and saves every feed. One broken feed does not
// stop the others; all failures come back joined.
func (im *Importer) Import(ctx context.Context) (ImportResult, error) {
	res := ImportResult{Feeds: len(im.sources)}
	if len(im.sources) == 0 {
		return res, nil
	}

	fetched, errs := im.fetcher.FetchAll(ctx, im.sources)
	res.Failed = len(errs)

	for _, fr := range fetched {
		parsed, err := ics.Parse(fr.Source, fr.Body)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("feed %s: %w", fr.Source.ID, err))
			continue
		}
		if err := im.store.SaveEvents(ctx, parsed.Events); err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("feed %s: save: %w", fr.Source.ID, err))
			continue
		}
		res.Events += len(parsed.Events)
		res.Skipped += len(parsed.Skipped)
	}

	err := errors.Join(errs...)
	if err != nil {
		appLog.Error("feed import finished with errors", err, "feeds", res.Feeds, "failed", res.Failed)
	} else {
		appLog.Info("feed import finished", "feeds", res.Feeds, "events", res.Events, "skipped", res.Skipped)
	}
	return res, err
}
