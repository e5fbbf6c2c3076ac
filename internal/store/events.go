package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appLog "nightsched/internal/log"
	"nightsched/internal/model"
	"nightsched/internal/recurring"
)

const eventColumns = `id, venue_id, title, caption, poster_url, ticket_link,
	start_date, end_date, music_genres, created_by, external_uid, recurring_config`

type eventRow struct {
	ID          string         `db:"id"`
	VenueID     string         `db:"venue_id"`
	Title       string         `db:"title"`
	Caption     string         `db:"caption"`
	PosterURL   string         `db:"poster_url"`
	TicketLink  string         `db:"ticket_link"`
	Start       time.Time      `db:"start_date"`
	End         time.Time      `db:"end_date"`
	Genres      pq.StringArray `db:"music_genres"`
	CreatedBy   string         `db:"created_by"`
	ExternalUID string         `db:"external_uid"`
	Recurring   []byte         `db:"recurring_config"`
}

func (r eventRow) event() (model.ScheduledEvent, error) {
	ev := model.ScheduledEvent{
		ID:          r.ID,
		VenueID:     r.VenueID,
		Title:       r.Title,
		Caption:     r.Caption,
		PosterURL:   r.PosterURL,
		TicketLink:  r.TicketLink,
		Start:       r.Start,
		End:         r.End,
		Genres:      []string(r.Genres),
		CreatedBy:   r.CreatedBy,
		ExternalUID: r.ExternalUID,
	}
	if len(r.Recurring) > 0 {
		var cfg model.RecurringConfig
		if err := json.Unmarshal(r.Recurring, &cfg); err != nil {
			return ev, fmt.Errorf("event %s recurring_config: %w", r.ID, err)
		}
		ev.Recurring = &cfg
	}
	return ev, nil
}

func toEvents(rows []eventRow) ([]model.ScheduledEvent, error) {
	out := make([]model.ScheduledEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetEvent loads one event.
func (s *Store) GetEvent(ctx context.Context, id string) (model.ScheduledEvent, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledEvent{}, ErrNotFound
	}
	if err != nil {
		appLog.Error("GetEvent failed", err, "event_id", id)
		return model.ScheduledEvent{}, err
	}
	return row.event()
}

// EventsBetween returns the venue's events overlapping [from, to], ordered
// by start.
func (s *Store) EventsBetween(ctx context.Context, venueID string, from, to time.Time) ([]model.ScheduledEvent, error) {
	var rows []eventRow
	q := `SELECT ` + eventColumns + `
	  FROM events
	 WHERE venue_id = $1 AND start_date <= $3 AND end_date >= $2
	 ORDER BY start_date, id;`
	if err := s.db.SelectContext(ctx, &rows, q, venueID, from, to); err != nil {
		appLog.Error("EventsBetween failed", err, "venue_id", venueID)
		return nil, err
	}
	return toEvents(rows)
}

// ListTemplates returns events carrying a recurring config. Empty venueID or
// templateID means no filter on that column.
func (s *Store) ListTemplates(ctx context.Context, venueID, templateID string) ([]model.ScheduledEvent, error) {
	var rows []eventRow
	q := `SELECT ` + eventColumns + `
	  FROM events
	 WHERE recurring_config IS NOT NULL
	   AND ($1 = '' OR venue_id = $1)
	   AND ($2 = '' OR id = $2)
	 ORDER BY venue_id, start_date, id;`
	if err := s.db.SelectContext(ctx, &rows, q, venueID, templateID); err != nil {
		appLog.Error("ListTemplates failed", err, "venue_id", venueID, "template_id", templateID)
		return nil, err
	}
	return toEvents(rows)
}

// InstanceExists reports whether the venue has an event with this title
// starting within recurring.DuplicateTolerance of start. It satisfies
// recurring.ExistsFunc.
func (s *Store) InstanceExists(ctx context.Context, venueID, title string, start time.Time) (bool, error) {
	var found bool
	const q = `
	SELECT EXISTS (
	  SELECT 1 FROM events
	   WHERE venue_id = $1 AND title = $2
	     AND start_date BETWEEN $3 AND $4
	);`
	lo := start.Add(-recurring.DuplicateTolerance)
	hi := start.Add(recurring.DuplicateTolerance)
	if err := s.db.GetContext(ctx, &found, q, venueID, title, lo, hi); err != nil {
		appLog.Error("InstanceExists failed", err, "venue_id", venueID, "title", title)
		return false, err
	}
	return found, nil
}

const upsertEvent = `
	INSERT INTO events (id, venue_id, title, caption, poster_url, ticket_link,
	                    start_date, end_date, music_genres, created_by, external_uid, recurring_config)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
	ON CONFLICT (id) DO UPDATE
	   SET title = EXCLUDED.title,
	       caption = EXCLUDED.caption,
	       poster_url = EXCLUDED.poster_url,
	       ticket_link = EXCLUDED.ticket_link,
	       start_date = EXCLUDED.start_date,
	       end_date = EXCLUDED.end_date,
	       music_genres = EXCLUDED.music_genres,
	       recurring_config = EXCLUDED.recurring_config;`

// SaveEvents writes events in one transaction. Rows with an existing ID are
// updated in place, so re-importing a feed is idempotent.
func (s *Store) SaveEvents(ctx context.Context, events []model.ScheduledEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range events {
		rc, err := recurringArg(ev.Recurring)
		if err != nil {
			return err
		}
		genres := pq.StringArray(ev.Genres)
		if genres == nil {
			genres = pq.StringArray{}
		}
		if _, err := tx.ExecContext(ctx, upsertEvent,
			ev.ID, ev.VenueID, ev.Title, ev.Caption, ev.PosterURL, ev.TicketLink,
			ev.Start, ev.End, genres, ev.CreatedBy, ev.ExternalUID, rc,
		); err != nil {
			appLog.Error("SaveEvents failed", err, "event_id", ev.ID, "venue_id", ev.VenueID)
			return fmt.Errorf("save event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

func recurringArg(cfg *model.RecurringConfig) (any, error) {
	if cfg == nil {
		return nil, nil
	}
	return cfg.Value()
}
