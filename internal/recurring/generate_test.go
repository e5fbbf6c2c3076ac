package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightsched/internal/model"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func template(cfg model.RecurringConfig, start, end time.Time) model.ScheduledEvent {
	return model.ScheduledEvent{
		ID:         "tmpl-1",
		VenueID:    "venue-1",
		Title:      "Friday Night Party",
		Caption:    "every week",
		TicketLink: "https://tickets.example/fnp",
		Start:      start,
		End:        end,
		Genres:     []string{"House", "EDM"},
		CreatedBy:  "operator-1",
		Recurring:  &cfg,
	}
}

func starts(events []model.ScheduledEvent) []string {
	out := make([]time.Time, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Start)
	}
	return rfc3339(out...)
}

func rfc3339(ts ...time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.UTC().Format(time.RFC3339))
	}
	return out
}

func TestGenerateMonthlyCappedSeries(t *testing.T) {
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyMonthly, MaxOccurrences: 3},
		utc(2024, time.January, 15, 22, 0),
		utc(2024, time.January, 16, 2, 0),
	)
	now := utc(2024, time.February, 1, 12, 0)

	res, err := Generate(context.Background(), tmpl, now, 12, nil)
	require.NoError(t, err)

	assert.Equal(t, rfc3339(
		utc(2024, time.February, 15, 22, 0),
		utc(2024, time.March, 15, 22, 0),
		utc(2024, time.April, 15, 22, 0),
	), starts(res.Instances))
	for _, inst := range res.Instances {
		assert.Equal(t, 4*time.Hour, inst.End.Sub(inst.Start))
		assert.Equal(t, inst.Start.Day()+1, inst.End.Day())
		assert.Nil(t, inst.Recurring)
		assert.NotEmpty(t, inst.ID)
		assert.NotEqual(t, tmpl.ID, inst.ID)
		assert.Equal(t, tmpl.Title, inst.Title)
		assert.Equal(t, tmpl.VenueID, inst.VenueID)
		assert.Equal(t, tmpl.TicketLink, inst.TicketLink)
		assert.Equal(t, tmpl.Genres, inst.Genres)
	}
}

func TestGenerateWeeklyDayFilter(t *testing.T) {
	// 2024-03-03 is a Sunday.
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{1, 3}},
		utc(2024, time.March, 3, 22, 0),
		utc(2024, time.March, 4, 2, 0),
	)
	now := utc(2024, time.March, 3, 0, 0)

	res, err := Generate(context.Background(), tmpl, now, 4, nil)
	require.NoError(t, err)

	require.Len(t, res.Instances, 8)
	for _, inst := range res.Instances {
		wd := inst.Start.Weekday()
		assert.True(t, wd == time.Monday || wd == time.Wednesday, "unexpected weekday %s", wd)
		assert.Equal(t, 22, inst.Start.Hour())
	}
	assert.False(t, res.Truncated)
}

func TestGenerateIsIdempotent(t *testing.T) {
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{5}},
		utc(2024, time.March, 1, 22, 0),
		utc(2024, time.March, 2, 2, 0),
	)
	now := utc(2024, time.March, 1, 12, 0)
	idx := NewIndex(tmpl)

	first, err := Generate(context.Background(), tmpl, now, 4, idx.Exists)
	require.NoError(t, err)
	require.NotEmpty(t, first.Instances)

	// Persisted timestamps come back slightly off.
	stored := make([]model.ScheduledEvent, 0, len(first.Instances))
	for _, inst := range first.Instances {
		inst.Start = inst.Start.Add(30 * time.Second)
		stored = append(stored, inst)
	}
	idx.Add(stored...)

	second, err := Generate(context.Background(), tmpl, now, 4, idx.Exists)
	require.NoError(t, err)
	assert.Empty(t, second.Instances)
	assert.Equal(t, len(first.Instances), second.Duplicates)
}

func TestGenerateIdempotentWhenCapped(t *testing.T) {
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, MaxOccurrences: 5},
		utc(2024, time.March, 1, 22, 0),
		utc(2024, time.March, 2, 2, 0),
	)
	now := utc(2024, time.March, 1, 12, 0)
	idx := NewIndex()

	first, err := Generate(context.Background(), tmpl, now, 4, idx.Exists)
	require.NoError(t, err)
	require.Len(t, first.Instances, 5)
	assert.True(t, first.Truncated)
	idx.Add(first.Instances...)

	second, err := Generate(context.Background(), tmpl, now, 4, idx.Exists)
	require.NoError(t, err)
	assert.Empty(t, second.Instances)
}

func TestGenerateBounds(t *testing.T) {
	start := utc(2024, time.March, 1, 22, 0)
	now := utc(2024, time.March, 1, 12, 0)

	t.Run("horizon", func(t *testing.T) {
		tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, MaxOccurrences: 100}, start, start.Add(3*time.Hour))
		res, err := Generate(context.Background(), tmpl, now, 1, nil)
		require.NoError(t, err)
		horizon := now.Add(7 * 24 * time.Hour)
		require.Len(t, res.Instances, 6)
		for _, inst := range res.Instances {
			assert.False(t, inst.Start.After(horizon))
		}
	})

	t.Run("end date", func(t *testing.T) {
		end := utc(2024, time.March, 4, 23, 0)
		tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, EndDate: &end}, start, start.Add(3*time.Hour))
		res, err := Generate(context.Background(), tmpl, now, 4, nil)
		require.NoError(t, err)
		assert.Equal(t, rfc3339(
			utc(2024, time.March, 2, 22, 0),
			utc(2024, time.March, 3, 22, 0),
			utc(2024, time.March, 4, 22, 0),
		), starts(res.Instances))
	})

	t.Run("default cap", func(t *testing.T) {
		tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily}, start, start.Add(3*time.Hour))
		res, err := Generate(context.Background(), tmpl, now, 8, nil)
		require.NoError(t, err)
		assert.Len(t, res.Instances, model.DefaultMaxOccurrences)
		assert.True(t, res.Truncated)
	})

	t.Run("default weeks", func(t *testing.T) {
		tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{5}}, start, start.Add(3*time.Hour))
		res, err := Generate(context.Background(), tmpl, now, 0, nil)
		require.NoError(t, err)
		assert.Len(t, res.Instances, 3)
	})
}

func TestGenerateMonthlySkipsShortMonths(t *testing.T) {
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyMonthly},
		utc(2024, time.January, 31, 21, 0),
		utc(2024, time.February, 1, 1, 0),
	)
	res, err := Generate(context.Background(), tmpl, utc(2024, time.January, 31, 0, 0), 20, nil)
	require.NoError(t, err)
	assert.Equal(t, rfc3339(
		utc(2024, time.March, 31, 21, 0),
		utc(2024, time.May, 31, 21, 0),
	), starts(res.Instances))
}

func TestGenerateKeepsWallClockInTimezone(t *testing.T) {
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skip("tzdata not available")
	}
	// 22:00 EST on Friday 2024-03-01 is 03:00 UTC on Saturday.
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{5}, Timezone: "America/New_York"},
		utc(2024, time.March, 2, 3, 0),
		utc(2024, time.March, 2, 7, 0),
	)
	res, err := Generate(context.Background(), tmpl, utc(2024, time.March, 1, 0, 0), 3, nil)
	require.NoError(t, err)
	require.Len(t, res.Instances, 2)
	for _, inst := range res.Instances {
		assert.Equal(t, time.Friday, inst.Start.Weekday())
		assert.Equal(t, 22, inst.Start.Hour())
	}
	// After the DST switch on 2024-03-10 the UTC offset changes.
	assert.Equal(t, 2, res.Instances[1].Start.UTC().Hour())
}

func TestGenerateInZoneUsesLocalWeekday(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// Monday 22:00 EST, as read back from the database.
	tmpl := template(
		model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{1}},
		utc(2024, time.March, 5, 3, 0),
		utc(2024, time.March, 5, 7, 0),
	)
	now := utc(2024, time.March, 1, 12, 0)

	res, err := Generate(context.Background(), InZone(tmpl, loc), now, 4, nil)
	require.NoError(t, err)
	require.Len(t, res.Instances, 3)
	for _, inst := range res.Instances {
		local := inst.Start.In(loc)
		assert.Equal(t, time.Monday, local.Weekday())
		assert.Equal(t, 22, local.Hour())
	}
	assert.True(t, res.Last.Equal(res.Instances[2].Start))

	// Without a zone the days are read in UTC.
	res, err = Generate(context.Background(), tmpl, now, 4, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Instances)
	assert.Equal(t, time.Sunday, res.Instances[0].Start.In(loc).Weekday())
}

func TestInZone(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily}, utc(2024, time.March, 1, 22, 0), utc(2024, time.March, 2, 2, 0))

	anchored := InZone(tmpl, loc)
	assert.Equal(t, "EST", anchored.Recurring.Timezone)
	assert.Empty(t, tmpl.Recurring.Timezone)

	tmpl.Recurring.Timezone = "Europe/Berlin"
	assert.Equal(t, "Europe/Berlin", InZone(tmpl, loc).Recurring.Timezone)

	oneOff := model.ScheduledEvent{ID: "ev-1"}
	assert.Nil(t, InZone(oneOff, loc).Recurring)
}

func TestGenerateWeeklyWithoutDays(t *testing.T) {
	tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly}, utc(2024, time.March, 1, 22, 0), utc(2024, time.March, 2, 2, 0))
	res, err := Generate(context.Background(), tmpl, utc(2024, time.March, 1, 0, 0), 4, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Instances)
	assert.Empty(t, res.Diagnostics)
}

func TestGenerateInactive(t *testing.T) {
	tmpl := template(model.RecurringConfig{Active: false, Frequency: model.FrequencyDaily}, utc(2024, time.March, 1, 22, 0), utc(2024, time.March, 2, 2, 0))
	res, err := Generate(context.Background(), tmpl, utc(2024, time.March, 1, 0, 0), 4, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Instances)
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	start := utc(2024, time.March, 1, 22, 0)
	tests := []struct {
		name string
		cfg  model.RecurringConfig
		end  time.Time
	}{
		{"unknown frequency", model.RecurringConfig{Active: true, Frequency: "yearly"}, start.Add(time.Hour)},
		{"bad weekday", model.RecurringConfig{Active: true, Frequency: model.FrequencyWeekly, DaysOfWeek: []int{7}}, start.Add(time.Hour)},
		{"negative cap", model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, MaxOccurrences: -1}, start.Add(time.Hour)},
		{"unknown timezone", model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, Timezone: "Mars/Olympus"}, start.Add(time.Hour)},
		{"end before start", model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily}, start.Add(-time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Generate(context.Background(), template(tt.cfg, start, tt.end), start, 4, nil)
			require.NoError(t, err)
			assert.Empty(t, res.Instances)
			require.Len(t, res.Diagnostics, 1)
			var verr *ValidationError
			assert.True(t, errors.As(res.Diagnostics[0], &verr))
			assert.ErrorIs(t, res.Diagnostics[0], model.ErrInvalid)
		})
	}
}

func TestGenerateRequiresTemplate(t *testing.T) {
	ev := model.ScheduledEvent{ID: "inst-1", Start: utc(2024, time.March, 1, 22, 0), End: utc(2024, time.March, 2, 2, 0)}
	_, err := Generate(context.Background(), ev, ev.Start, 4, nil)
	require.Error(t, err)
	var perr *PreconditionError
	assert.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, model.ErrPrecondition)
}

func TestGenerateStopsOnCheckError(t *testing.T) {
	tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily}, utc(2024, time.March, 1, 22, 0), utc(2024, time.March, 2, 2, 0))
	boom := errors.New("store down")
	calls := 0
	check := func(context.Context, string, string, time.Time) (bool, error) {
		calls++
		return false, boom
	}
	_, err := Generate(context.Background(), tmpl, utc(2024, time.March, 1, 0, 0), 4, check)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestGeneratePassesTemplateIdentityToCheck(t *testing.T) {
	tmpl := template(model.RecurringConfig{Active: true, Frequency: model.FrequencyDaily, MaxOccurrences: 2}, utc(2024, time.March, 1, 22, 0), utc(2024, time.March, 2, 2, 0))
	var seen []time.Time
	check := func(_ context.Context, venueID, title string, start time.Time) (bool, error) {
		assert.Equal(t, "venue-1", venueID)
		assert.Equal(t, "Friday Night Party", title)
		seen = append(seen, start)
		return false, nil
	}
	_, err := Generate(context.Background(), tmpl, utc(2024, time.March, 1, 0, 0), 4, check)
	require.NoError(t, err)
	assert.Equal(t, rfc3339(utc(2024, time.March, 2, 22, 0), utc(2024, time.March, 3, 22, 0)), rfc3339(seen...))
}
