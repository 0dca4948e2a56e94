package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvLookup resolves the value for an environment variable, matching the
// teacher's internal/config/loader.go injection seam so tests never touch
// the real process environment.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customizes Load's behavior.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	configPath string
}

// WithEnv supplies a custom environment lookup, used in tests.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithConfigPath forces Load to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithFileReader injects a custom file reader, used in tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = reader }
}

// Load builds a Config by layering defaults, an optional YAML file, and
// environment variable overrides, then validates the result.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Defaults()

	if err := applyFile(&cfg, options); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, options.envLookup); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, opts loadOptions) error {
	if opts.configPath == "" {
		return nil
	}
	data, err := opts.readFile(opts.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	// Unmarshal onto the defaults so a file that only sets a few fields
	// leaves the rest at their built-in values.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup EnvLookup) error {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	if v, ok := lookup("MARCUS_LEASE_DEFAULT_DURATION_HOURS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_LEASE_DEFAULT_DURATION_HOURS: %w", err)
		}
		cfg.Lease.DefaultDurationHours = n
	}
	if v, ok := lookup("MARCUS_LEASE_TICKER_INTERVAL_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_LEASE_TICKER_INTERVAL_SECONDS: %w", err)
		}
		cfg.Lease.TickerIntervalSeconds = n
	}
	if v, ok := lookup("MARCUS_RECONCILER_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_RECONCILER_ENABLED: %w", err)
		}
		cfg.Reconciler.Enabled = b
	}
	if v, ok := lookup("MARCUS_RECONCILER_INTERVAL_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_RECONCILER_INTERVAL_SECONDS: %w", err)
		}
		cfg.Reconciler.IntervalSeconds = n
	}
	if v, ok := lookup("MARCUS_PROJECT_CACHE_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_PROJECT_CACHE_CAPACITY: %w", err)
		}
		cfg.Project.CacheCapacity = n
	}
	if v, ok := lookup("MARCUS_SCHEDULER_DEADLINE_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_SCHEDULER_DEADLINE_SECONDS: %w", err)
		}
		cfg.Scheduler.DeadlineSeconds = n
	}
	if v, ok := lookup("MARCUS_EVENTS_DURABLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_EVENTS_DURABLE: %w", err)
		}
		cfg.Events.Durable = b
	}
	if v, ok := lookup("MARCUS_EVENTS_FSYNC_INTERVAL_MS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_EVENTS_FSYNC_INTERVAL_MS: %w", err)
		}
		cfg.Events.FsyncIntervalMS = n
	}
	if v, ok := lookup("MARCUS_KANBAN_RETRY_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MARCUS_KANBAN_RETRY_ATTEMPTS: %w", err)
		}
		cfg.Kanban.Retry.Attempts = n
	}

	return nil
}
