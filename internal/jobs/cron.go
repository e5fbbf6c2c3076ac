package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"nightsched/internal/lock"
	appLog "nightsched/internal/log"
)

// Schedule configures the background jobs. Empty cron specs disable a job.
type Schedule struct {
	GenerateCron string
	ImportCron   string
	WeeksAhead   int
	DryRun       bool
	Location     *time.Location
	// Timeout bounds one job invocation.
	Timeout time.Duration
}

// cronLogger routes robfig/cron's own messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// NewCron wires the runner and importer to their schedules. The caller
// starts and stops the returned cron.
func NewCron(s Schedule, runner *Runner, importer *Importer) (*cron.Cron, error) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	if s.GenerateCron != "" && runner != nil {
		opts := RunOptions{WeeksAhead: s.WeeksAhead, DryRun: s.DryRun}
		_, err := c.AddFunc(s.GenerateCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if _, err := runner.Generate(ctx, opts); err != nil {
				if errors.Is(err, lock.ErrHeld) {
					appLog.Info("scheduled generation skipped; another replica is running it")
					return
				}
				appLog.Error("scheduled generation failed", err)
			}
		})
		if err != nil {
			return nil, err
		}
		appLog.Info("generation scheduled", "cron", s.GenerateCron, "weeks_ahead", s.WeeksAhead, "dry_run", s.DryRun)
	}

	if s.ImportCron != "" && importer != nil {
		_, err := c.AddFunc(s.ImportCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			// Import logs its own errors.
			_, _ = importer.Import(ctx)
		})
		if err != nil {
			return nil, err
		}
		appLog.Info("feed import scheduled", "cron", s.ImportCron, "feeds", len(importer.sources))
	}

	return c, nil
}
