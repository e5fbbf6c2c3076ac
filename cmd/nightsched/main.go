package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"nightsched/internal/config"
	"nightsched/internal/ics"
	"nightsched/internal/jobs"
	"nightsched/internal/lock"
	appLog "nightsched/internal/log"
	"nightsched/internal/store"
	"nightsched/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	once       bool
	dryRun     bool
	weeks      int
	debug      bool
}

func main() {
	flags := parseFlags()

	if flags.debug {
		appLog.SetOutput(os.Stderr, true)
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("nightsched starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.weeks > 0 {
		conf.WeeksAhead = flags.weeks
	}
	if flags.dryRun {
		conf.DryRun = true
	}
	if flags.debug {
		conf.CacheDir = "./cache/ics-cache"
	}

	env, err := config.LoadEnv(flags.envPath)
	if err != nil {
		appLog.Error("failed to load env file", err, "env_path", flags.envPath)
		os.Exit(1)
	}
	if env.DatabaseURL == "" {
		appLog.Error("DATABASE_URL is required", errors.New("missing environment variable"))
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"weeks_ahead", conf.WeeksAhead,
		"generate_cron", conf.GenerateCron,
		"import_cron", conf.ImportCron,
		"dry_run", conf.DryRun,
		"feed_count", len(conf.Feeds),
		"redis", env.RedisAddress != "",
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, env, flags.once, flags.debug); err != nil {
		appLog.Error("nightsched failed", err)
		os.Exit(1)
	}
	appLog.Info("nightsched exiting")
}

func run(ctx context.Context, conf *config.Config, env config.Env, once, debug bool) error {
	st, err := store.Open(ctx, env.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.RunMigrations(ctx, conf.MigrationsPath); err != nil {
		return err
	}

	var locker lock.Locker = lock.NewLocal()
	if env.RedisAddress != "" {
		rl := lock.NewRedis(env.RedisAddress, env.RedisUsername, env.RedisPassword)
		defer rl.Close()
		if err := rl.Ping(ctx); err != nil {
			return err
		}
		locker = rl
	}

	runner := jobs.NewRunner(st, locker, conf.LockTTL, conf.Location())
	importer := jobs.NewImporter(ics.NewFetcher(conf.CacheDir, 0), st, feedSources(conf))

	if once {
		return runOnce(ctx, conf, runner, importer)
	}

	c, err := jobs.NewCron(jobs.Schedule{
		GenerateCron: conf.GenerateCron,
		ImportCron:   conf.ImportCron,
		WeeksAhead:   conf.WeeksAhead,
		DryRun:       conf.DryRun,
		Location:     conf.Location(),
		Timeout:      conf.LockTTL,
	}, runner, importer)
	if err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := web.NewServer(st, runner, debug)
	if err := srv.ListenAndServe(ctx, conf.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runOnce imports the feeds, generates one batch and prints the result.
func runOnce(ctx context.Context, conf *config.Config, runner *jobs.Runner, importer *jobs.Importer) error {
	if len(conf.Feeds) > 0 {
		// Feed errors are logged; generation still runs on what we have.
		_, _ = importer.Import(ctx)
	}
	res, err := runner.Generate(ctx, jobs.RunOptions{WeeksAhead: conf.WeeksAhead, DryRun: conf.DryRun})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func feedSources(conf *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		sources = append(sources, ics.Source{
			ID:       f.ID,
			URL:      f.URL,
			VenueID:  f.VenueID,
			Timezone: f.Timezone,
		})
	}
	return sources
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/nightsched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Optional dotenv file with DATABASE_URL and REDIS_* settings")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Import feeds and generate instances once, print the result and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Report generated instances without saving them")
	flag.IntVar(&cfg.weeks, "weeks", 0, "Generation horizon in weeks (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Human readable debug logging and a local cache dir")

	flag.Parse()

	return cfg
}
