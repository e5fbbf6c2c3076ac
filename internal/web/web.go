package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nightsched/internal/ics"
	"nightsched/internal/jobs"
	"nightsched/internal/lock"
	appLog "nightsched/internal/log"
	"nightsched/internal/model"
	"nightsched/internal/schedule"
	"nightsched/internal/store"
)

// Store is the read side the API needs.
type Store interface {
	GetVenue(ctx context.Context, id string) (model.Venue, error)
	MusicSchedule(ctx context.Context, venueID string) ([]model.WeeklyMusicAssignment, error)
	EventsBetween(ctx context.Context, venueID string, from, to time.Time) ([]model.ScheduledEvent, error)
}

// Generator runs recurring-instance generation; *jobs.Runner implements it.
type Generator interface {
	Generate(ctx context.Context, opts jobs.RunOptions) (jobs.RunResult, error)
}

// Server exposes venue status, overrides, calendars and generation.
type Server struct {
	store     Store
	generator Generator
	engine    *gin.Engine
	now       func() time.Time
}

// NewServer builds the router. debug enables gin's debug mode.
func NewServer(st Store, gen Generator, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		store:     st,
		generator: gen,
		engine:    gin.New(),
		now:       time.Now,
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/venues/:id/status", s.handleStatus)
	api.GET("/venues/:id/overrides", s.handleOverrides)
	api.GET("/venues/:id/calendar.ics", s.handleCalendar)
	api.POST("/recurring-events/generate", s.handleGenerate)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// requestLogger logs one line per request through the app logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

type periodDTO struct {
	Open  model.TimeOfWeek `json:"open"`
	Close model.TimeOfWeek `json:"close"`
}

// statusResponse is the JSON shape for /api/venues/:id/status.
type statusResponse struct {
	VenueID           string                       `json:"venue_id"`
	At                time.Time                    `json:"at"`
	State             model.ResolutionKind         `json:"state"`
	Open              bool                         `json:"open"`
	NoRegularSchedule bool                         `json:"no_regular_schedule"`
	Genres            []string                     `json:"genres"`
	Event             *model.ScheduledEvent        `json:"event,omitempty"`
	Assignment        *model.WeeklyMusicAssignment `json:"assignment,omitempty"`
	Period            *periodDTO                   `json:"period,omitempty"`
	Window            *model.Window                `json:"window,omitempty"`
	NextOpening       *time.Time                   `json:"next_opening,omitempty"`
	Warnings          []string                     `json:"warnings,omitempty"`
}

// handleStatus resolves what is on at a venue.
//
// GET /api/venues/:id/status?at=2024-03-01T23:00:00Z
//   - at: instant to resolve (default now)
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	venue, ok := s.loadVenue(c)
	if !ok {
		return
	}

	at := s.now()
	if raw := c.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "at must be RFC 3339")
			return
		}
		at = t
	}
	at = at.In(venue.Location())

	music, err := s.store.MusicSchedule(ctx, venue.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load music schedule")
		return
	}
	// A period lasts at most a day, so every candidate event lies in here.
	events, err := s.store.EventsBetween(ctx, venue.ID, at.Add(-24*time.Hour), at.Add(24*time.Hour))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load events")
		return
	}

	res := schedule.Resolve(at, venue.Hours.Periods, music, events)

	resp := statusResponse{
		VenueID:           venue.ID,
		At:                at,
		State:             res.Kind,
		Open:              res.Open(),
		NoRegularSchedule: res.NoRegularSchedule(),
		Genres:            res.Genres(),
		Event:             res.Event,
		Assignment:        res.Assignment,
		Window:            res.Window,
	}
	if resp.Genres == nil {
		resp.Genres = []string{}
	}
	if res.Period != nil {
		resp.Period = &periodDTO{Open: res.Period.Open, Close: res.Period.Close}
	}
	if !resp.Open {
		if next, ok := schedule.NextOpening(at, venue.Hours.Periods); ok {
			resp.NextOpening = &next
		}
	}
	for _, d := range res.Diagnostics {
		resp.Warnings = append(resp.Warnings, d.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// handleOverrides lists upcoming events that replace the regular music.
//
// GET /api/venues/:id/overrides?days=14
func (s *Server) handleOverrides(c *gin.Context) {
	venue, ok := s.loadVenue(c)
	if !ok {
		return
	}
	days := parseIntDefault(c.Query("days"), 14)
	if days <= 0 {
		days = 14
	}

	ctx := c.Request.Context()
	music, err := s.store.MusicSchedule(ctx, venue.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load music schedule")
		return
	}
	now := s.now().In(venue.Location())
	events, err := s.store.EventsBetween(ctx, venue.ID, now, now.AddDate(0, 0, days))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load events")
		return
	}

	// Weekdays are the venue's, not the database session's.
	for i := range events {
		events[i].Start = events[i].Start.In(now.Location())
		events[i].End = events[i].End.In(now.Location())
	}
	overrides := schedule.Overrides(events, music)
	c.JSON(http.StatusOK, gin.H{"venue_id": venue.ID, "events": overrides})
}

// handleCalendar exports the venue's upcoming events as iCalendar.
//
// GET /api/venues/:id/calendar.ics?days=60&backfill=1
func (s *Server) handleCalendar(c *gin.Context) {
	venue, ok := s.loadVenue(c)
	if !ok {
		return
	}
	days := parseIntDefault(c.Query("days"), 60)
	if days <= 0 {
		days = 60
	}
	backfill := parseIntDefault(c.Query("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	now := s.now()
	events, err := s.store.EventsBetween(c.Request.Context(), venue.ID, now.AddDate(0, 0, -backfill), now.AddDate(0, 0, days))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load events")
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+venue.ID+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics.Export(venue, events, now)))
}

// handleGenerate runs recurring-instance generation.
//
// POST /api/recurring-events/generate
//
//	{"weeks_ahead": 4, "dry_run": true, "venue_id": "...", "template_id": "..."}
//
// An empty body runs every template with the defaults.
func (s *Server) handleGenerate(c *gin.Context) {
	var opts jobs.RunOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			writeError(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if opts.WeeksAhead < 0 {
		writeError(c, http.StatusBadRequest, "weeks_ahead must not be negative")
		return
	}

	res, err := s.generator.Generate(c.Request.Context(), opts)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, jobs.ErrTemplateNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, lock.ErrHeld):
		writeError(c, http.StatusConflict, "generation already running")
	case errors.Is(err, model.ErrInvalid):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api generate failed", err)
		writeError(c, http.StatusInternalServerError, "failed to generate recurring events")
	}
}

func (s *Server) loadVenue(c *gin.Context) (model.Venue, bool) {
	id := c.Param("id")
	venue, err := s.store.GetVenue(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "venue not found")
		return venue, false
	}
	if err != nil {
		appLog.Error("api: load venue failed", err, "venue_id", id)
		writeError(c, http.StatusInternalServerError, "failed to load venue")
		return venue, false
	}
	return venue, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
