package matcher

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the tunables for one matching run
type Config struct {
	// Threshold is the minimum score for a pair to be reported
	// Default: 60
	Threshold int `yaml:"threshold"`

	// CheckInterval is the number of pairs a worker processes between
	// cancellation checks and progress ticks. Smaller values make Cancel
	// more responsive at the cost of more atomic traffic.
	// Default: 500
	CheckInterval int `yaml:"check_interval"`

	// ProgressEvery is the minimum wall time between two progress reports.
	// Zero reports on every tick.
	// Default: 100ms
	ProgressEvery time.Duration `yaml:"progress_every"`

	// Workers is the number of blocks scanned in parallel
	// Default: 4
	Workers int `yaml:"workers"`

	// Blocking limits comparison to records sharing a block key. Pairs in
	// different blocks are assumed not to match and are never scored.
	// Turning it off compares every pair, which is quadratic in the
	// number of records.
	// Default: true
	Blocking bool `yaml:"blocking"`

	// DiscoverMaxScore runs an unfiltered pass before the threshold pass so
	// the highest score is known (and reported) early
	// Default: true
	DiscoverMaxScore bool `yaml:"discover_max_score"`

	// ShowIgnored returns excluded pairs flagged Ignored instead of
	// skipping them
	// Default: false
	ShowIgnored bool `yaml:"show_ignored"`
}

// DefaultConfig returns the default matcher configuration
func DefaultConfig() Config {
	return Config{
		Threshold:        60,
		CheckInterval:    500,
		ProgressEvery:    100 * time.Millisecond,
		Workers:          4,
		Blocking:         true,
		DiscoverMaxScore: true,
		ShowIgnored:      false,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold cannot be negative (got %d)", c.Threshold)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive (got %d)", c.CheckInterval)
	}
	if c.CheckInterval > 1_000_000 {
		return fmt.Errorf("check_interval too large (got %d, max 1000000)", c.CheckInterval)
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every cannot be negative (got %v)", c.ProgressEvery)
	}
	if c.ProgressEvery > time.Minute {
		return fmt.Errorf("progress_every too large (got %v, max 1 minute)", c.ProgressEvery)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 256 {
		return fmt.Errorf("workers too large (got %d, max 256)", c.Workers)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Threshold: %d, CheckInterval: %d, ProgressEvery: %v, Workers: %d, "+
			"Blocking: %t, DiscoverMaxScore: %t, ShowIgnored: %t}",
		c.Threshold, c.CheckInterval, c.ProgressEvery, c.Workers,
		c.Blocking, c.DiscoverMaxScore, c.ShowIgnored,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - FTAUDIT_MATCH_THRESHOLD: Minimum score to report (default: 60)
//   - FTAUDIT_MATCH_CHECK_INTERVAL: Pairs between cancellation checks (default: 500)
//   - FTAUDIT_MATCH_PROGRESS_MS: Milliseconds between progress reports (default: 100)
//   - FTAUDIT_MATCH_WORKERS: Blocks scanned in parallel (default: 4)
//   - FTAUDIT_MATCH_BLOCKING: Compare only within surname blocks (default: true)
//   - FTAUDIT_MATCH_DISCOVER_MAX: Run the max-score pass (default: true)
//   - FTAUDIT_MATCH_SHOW_IGNORED: Return excluded pairs flagged as ignored (default: false)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overrides fields of cfg from FTAUDIT_MATCH_* variables
func ApplyEnv(cfg Config) (Config, error) {
	millis := func(s string) (time.Duration, error) {
		n, err := strconv.Atoi(s)
		return time.Duration(n) * time.Millisecond, err
	}

	overrides := []func() error{
		func() error { return fromEnv("FTAUDIT_MATCH_THRESHOLD", &cfg.Threshold, strconv.Atoi) },
		func() error { return fromEnv("FTAUDIT_MATCH_CHECK_INTERVAL", &cfg.CheckInterval, strconv.Atoi) },
		func() error { return fromEnv("FTAUDIT_MATCH_PROGRESS_MS", &cfg.ProgressEvery, millis) },
		func() error { return fromEnv("FTAUDIT_MATCH_WORKERS", &cfg.Workers, strconv.Atoi) },
		func() error { return fromEnv("FTAUDIT_MATCH_BLOCKING", &cfg.Blocking, strconv.ParseBool) },
		func() error { return fromEnv("FTAUDIT_MATCH_DISCOVER_MAX", &cfg.DiscoverMaxScore, strconv.ParseBool) },
		func() error { return fromEnv("FTAUDIT_MATCH_SHOW_IGNORED", &cfg.ShowIgnored, strconv.ParseBool) },
	}
	for _, apply := range overrides {
		if err := apply(); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// fromEnv stores the parsed value of key in dest. Unset or blank keys
// leave dest alone.
func fromEnv[T any](key string, dest *T, parse func(string) (T, error)) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parse(raw)
	if err != nil {
		return fmt.Errorf("%s=%q is not valid: %w", key, raw, err)
	}
	*dest = v
	return nil
}
