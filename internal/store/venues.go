package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appLog "nightsched/internal/log"
	"nightsched/internal/model"
)

type venueRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Timezone string `db:"timezone"`
	Hours    []byte `db:"hours"`
}

func (r venueRow) venue() (model.Venue, error) {
	v := model.Venue{ID: r.ID, Name: r.Name, Timezone: r.Timezone}
	if len(r.Hours) > 0 {
		if err := json.Unmarshal(r.Hours, &v.Hours); err != nil {
			return v, fmt.Errorf("venue %s hours: %w", r.ID, err)
		}
	}
	return v, nil
}

// GetVenue loads one venue with its hours document.
func (s *Store) GetVenue(ctx context.Context, id string) (model.Venue, error) {
	var row venueRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, timezone, hours FROM venues WHERE id = $1;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Venue{}, ErrNotFound
	}
	if err != nil {
		appLog.Error("GetVenue failed", err, "venue_id", id)
		return model.Venue{}, err
	}
	return row.venue()
}

// ListVenues returns all venues ordered by ID.
func (s *Store) ListVenues(ctx context.Context) ([]model.Venue, error) {
	var rows []venueRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, timezone, hours FROM venues ORDER BY id;`); err != nil {
		appLog.Error("ListVenues failed", err)
		return nil, err
	}
	out := make([]model.Venue, 0, len(rows))
	for _, r := range rows {
		v, err := r.venue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// UpsertVenue creates or replaces a venue record.
func (s *Store) UpsertVenue(ctx context.Context, v model.Venue) error {
	hours, err := json.Marshal(v.Hours)
	if err != nil {
		return err
	}
	const q = `
	INSERT INTO venues (id, name, timezone, hours)
	VALUES ($1, $2, $3, $4::jsonb)
	ON CONFLICT (id) DO UPDATE
	   SET name = EXCLUDED.name,
	       timezone = EXCLUDED.timezone,
	       hours = EXCLUDED.hours,
	       updated_at = now();`
	if _, err := s.db.ExecContext(ctx, q, v.ID, v.Name, v.Timezone, string(hours)); err != nil {
		appLog.Error("UpsertVenue failed", err, "venue_id", v.ID)
		return err
	}
	return nil
}

type musicRow struct {
	VenueID   string         `db:"venue_id"`
	DayOfWeek int            `db:"day_of_week"`
	Genres    pq.StringArray `db:"genres"`
}

// MusicSchedule returns the venue's weekly assignments ordered by weekday.
func (s *Store) MusicSchedule(ctx context.Context, venueID string) ([]model.WeeklyMusicAssignment, error) {
	var rows []musicRow
	const q = `
	SELECT venue_id, day_of_week, genres
	  FROM music_schedules
	 WHERE venue_id = $1
	 ORDER BY day_of_week;`
	if err := s.db.SelectContext(ctx, &rows, q, venueID); err != nil {
		appLog.Error("MusicSchedule failed", err, "venue_id", venueID)
		return nil, err
	}
	out := make([]model.WeeklyMusicAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.WeeklyMusicAssignment{
			VenueID: r.VenueID,
			Weekday: r.DayOfWeek,
			Genres:  []string(r.Genres),
		})
	}
	return out, nil
}

// SetMusicAssignment replaces the programming of one weekday.
func (s *Store) SetMusicAssignment(ctx context.Context, a model.WeeklyMusicAssignment) error {
	const q = `
	INSERT INTO music_schedules (venue_id, day_of_week, genres)
	VALUES ($1, $2, $3)
	ON CONFLICT (venue_id, day_of_week) DO UPDATE SET genres = EXCLUDED.genres;`
	_, err := s.db.ExecContext(ctx, q, a.VenueID, a.Weekday, pq.StringArray(model.CanonicalGenres(a.Genres)))
	if err != nil {
		appLog.Error("SetMusicAssignment failed", err, "venue_id", a.VenueID, "day_of_week", a.Weekday)
	}
	return err
}
