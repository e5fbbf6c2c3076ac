// Package store persists venues, music schedules and events in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	appLog "nightsched/internal/log"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is a Postgres-backed record store. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to databaseURL, retrying while the database comes up.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	const (
		maxRetries    = 10
		retryInterval = 2 * time.Second
	)
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var db *sqlx.DB
		db, err = sqlx.ConnectContext(ctx, "postgres", databaseURL)
		if err == nil {
			appLog.Info("connected to database")
			return New(db), nil
		}
		appLog.Error("database connect failed", err, "attempt", attempt, "retry_in", retryInterval.String())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, err)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations executes every *.up.sql file in dir in name order. Files
// must be idempotent; there is no version table.
func (s *Store) RunMigrations(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		stmt, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", file, err)
		}
		if len(stmt) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("migration %q: %w", file, err)
		}
		appLog.Debug("migration applied", "file", filepath.Base(file))
	}
	return nil
}
