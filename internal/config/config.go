package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// FeedConfig binds one promoter ICS feed to a venue.
type FeedConfig struct {
	// ID is used for logging and as the imported events' CreatedBy suffix.
	ID      string `yaml:"id" json:"id"`
	URL     string `yaml:"url" json:"url"`
	VenueID string `yaml:"venue_id" json:"venue_id"`
	// Timezone reads floating times in the feed. Defaults to Config.Timezone.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Config is the top-level application configuration. Connection secrets are
// not stored here; see Env.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when a venue record has none.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeeksAhead is the generation horizon for scheduled runs.
	WeeksAhead int `yaml:"weeks_ahead" json:"weeks_ahead"`

	// GenerateCron schedules recurring-instance generation (standard 5-field
	// cron syntax). Empty disables scheduled generation.
	GenerateCron string `yaml:"generate_cron" json:"generate_cron"`

	// ImportCron schedules the ICS feed import. Empty disables it.
	ImportCron string `yaml:"import_cron" json:"import_cron"`

	// DryRun makes scheduled runs report instead of writing.
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	// LockTTL bounds how long one replica may hold the generation lock.
	LockTTL time.Duration `yaml:"lock_ttl" json:"lock_ttl"`

	// CacheDir holds the on-disk ICS feed cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// MigrationsPath is the directory of *.up.sql files applied on start.
	MigrationsPath string `yaml:"migrations_path" json:"migrations_path"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "UTC"
	defaultWeeksAhead   = 4
	defaultGenerateCron = "0 4 * * 1"
	defaultImportCron   = "*/30 * * * *"
	defaultLockTTL      = 10 * time.Minute
	defaultCacheDir     = "/var/lib/nightsched/ics-cache"
	defaultMigrations   = "./migrations"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		Timezone:       defaultTimezone,
		WeeksAhead:     defaultWeeksAhead,
		GenerateCron:   defaultGenerateCron,
		ImportCron:     defaultImportCron,
		LockTTL:        defaultLockTTL,
		CacheDir:       defaultCacheDir,
		MigrationsPath: defaultMigrations,
		Feeds:          []FeedConfig{},
	}
}

// Normalize fills in zero values so partially filled files still work.
// Cron fields are left alone: empty means disabled.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.WeeksAhead <= 0 {
		c.WeeksAhead = defaultWeeksAhead
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaultLockTTL
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.MigrationsPath == "" {
		c.MigrationsPath = defaultMigrations
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = c.Feeds[i].VenueID
		}
		if c.Feeds[i].Timezone == "" {
			c.Feeds[i].Timezone = c.Timezone
		}
	}
}

// Validate rejects values that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	for name, spec := range map[string]string{"generate_cron": c.GenerateCron, "import_cron": c.ImportCron} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}
	for _, f := range c.Feeds {
		if f.URL == "" || f.VenueID == "" {
			return fmt.Errorf("feed %q: url and venue_id are required", f.ID)
		}
	}
	return nil
}

// Location returns the configured default zone, UTC if it does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads the YAML file at path. On first run the file does not exist;
// a default config is written with 0600 permissions and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".nightsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
