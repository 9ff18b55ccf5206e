// Package config loads the project configuration from .ftaudit/config.yaml,
// applies FTAUDIT_* environment overrides and opens the configured
// exclusion backend.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/matcher"
	"github.com/steveyegge/ftaudit/internal/session"
	"github.com/steveyegge/ftaudit/internal/storage/postgres"
	"github.com/steveyegge/ftaudit/internal/storage/sqlite"
)

const (
	// DirName is the per-project state directory
	DirName = ".ftaudit"
	// FileName is the config file inside DirName
	FileName = "config.yaml"
)

// Backend selects where the exclusion set is stored
type Backend string

const (
	BackendYAML     Backend = "yaml"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// IsValid checks if the backend value is valid
func (b Backend) IsValid() bool {
	switch b {
	case BackendYAML, BackendSQLite, BackendPostgres:
		return true
	}
	return false
}

// ExclusionsConfig describes the exclusion store
type ExclusionsConfig struct {
	Backend  Backend                `yaml:"backend"`
	Path     string                 `yaml:"path"` // yaml and sqlite; relative paths resolve against the project root
	Postgres postgres.Config        `yaml:"postgres"`
	Retry    exclusions.RetryConfig `yaml:"retry"`
}

// File is the on-disk project configuration
type File struct {
	Records     string           `yaml:"records"` // Record snapshot, YAML or JSON
	Exclusions  ExclusionsConfig `yaml:"exclusions"`
	Matcher     matcher.Config   `yaml:"matcher"`
	EventBuffer int              `yaml:"event_buffer"`
	Filter      filter.Selection `yaml:"filter"` // Default selection for filter, duplicates and explore
}

// Default returns the configuration used when no file exists
func Default() *File {
	return &File{
		Records: "records.yaml",
		Exclusions: ExclusionsConfig{
			Backend:  BackendYAML,
			Path:     filepath.Join(DirName, "exclusions.yaml"),
			Postgres: postgres.DefaultConfig(),
			Retry:    exclusions.DefaultRetryConfig(),
		},
		Matcher:     matcher.DefaultConfig(),
		EventBuffer: session.DefaultConfig().EventBuffer,
	}
}

// Path returns the config file location for a project
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, DirName, FileName)
}

// LoadFile reads the project config. A missing file yields the defaults;
// keys absent from the file keep their default values.
func LoadFile(projectRoot string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(projectRoot))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Load reads the project config, applies environment overrides and validates
// the result
//
// Environment variables:
//   - FTAUDIT_RECORDS: Record snapshot path
//   - FTAUDIT_EXCLUSIONS_BACKEND: yaml, sqlite or postgres
//   - FTAUDIT_EXCLUSIONS_PATH: Exclusion file or database path
//   - FTAUDIT_PG_HOST, FTAUDIT_PG_PORT, FTAUDIT_PG_DATABASE, FTAUDIT_PG_USER,
//     FTAUDIT_PG_PASSWORD, FTAUDIT_PG_SSLMODE: PostgreSQL connection
//   - FTAUDIT_MATCH_*: Matcher settings, see matcher.ConfigFromEnv
func Load(projectRoot string) (*File, error) {
	cfg, err := LoadFile(projectRoot)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FTAUDIT_* environment variables
func (f *File) ApplyEnv() error {
	if v := os.Getenv("FTAUDIT_RECORDS"); v != "" {
		f.Records = v
	}
	if v := os.Getenv("FTAUDIT_EXCLUSIONS_BACKEND"); v != "" {
		f.Exclusions.Backend = Backend(v)
	}
	if v := os.Getenv("FTAUDIT_EXCLUSIONS_PATH"); v != "" {
		f.Exclusions.Path = v
	}
	pg := &f.Exclusions.Postgres
	for name, dst := range map[string]*string{
		"FTAUDIT_PG_HOST":     &pg.Host,
		"FTAUDIT_PG_DATABASE": &pg.Database,
		"FTAUDIT_PG_USER":     &pg.User,
		"FTAUDIT_PG_PASSWORD": &pg.Password,
		"FTAUDIT_PG_SSLMODE":  &pg.SSLMode,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("FTAUDIT_PG_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FTAUDIT_PG_PORT %q: %w", v, err)
		}
		pg.Port = port
	}
	m, err := matcher.ApplyEnv(f.Matcher)
	if err != nil {
		return err
	}
	f.Matcher = m
	return nil
}

// Validate checks if the configuration has valid values
func (f *File) Validate() error {
	if f.Records == "" {
		return fmt.Errorf("records path is required")
	}
	if !f.Exclusions.Backend.IsValid() {
		return fmt.Errorf("exclusions.backend must be %q, %q or %q (got %q)",
			BackendYAML, BackendSQLite, BackendPostgres, f.Exclusions.Backend)
	}
	if f.Exclusions.Backend == BackendPostgres {
		if err := f.Exclusions.Postgres.Validate(); err != nil {
			return fmt.Errorf("exclusions.postgres: %w", err)
		}
	} else if f.Exclusions.Path == "" {
		return fmt.Errorf("exclusions.path is required")
	}
	if err := f.Exclusions.Retry.Validate(); err != nil {
		return fmt.Errorf("exclusions.retry: %w", err)
	}
	if err := f.Session().Validate(); err != nil {
		return err
	}
	if err := f.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

// Session returns the session configuration
func (f *File) Session() session.Config {
	return session.Config{Matcher: f.Matcher, EventBuffer: f.EventBuffer}
}

// Resolve makes path absolute against the project root
func Resolve(projectRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

// Save writes the config to the project directory
func Save(projectRoot string, f *File) error {
	path := Path(projectRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s directory: %w", DirName, err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// OpenExclusions opens the configured exclusion store. The returned closer
// releases the backend and must be called after the store is closed.
func OpenExclusions(ctx context.Context, projectRoot string, f *File) (*exclusions.Store, io.Closer, error) {
	path := Resolve(projectRoot, f.Exclusions.Path)

	var (
		persister exclusions.Persister
		closer    io.Closer = nopCloser{}
	)
	switch f.Exclusions.Backend {
	case BackendSQLite:
		db, err := sqlite.New(path)
		if err != nil {
			return nil, nil, err
		}
		persister, closer = db, db
	case BackendPostgres:
		db, err := postgres.New(ctx, f.Exclusions.Postgres)
		if err != nil {
			return nil, nil, err
		}
		persister, closer = db, db
	case BackendYAML:
		persister = exclusions.NewFilePersister(path)
	default:
		return nil, nil, fmt.Errorf("unknown exclusions backend %q", f.Exclusions.Backend)
	}

	store, err := exclusions.Open(ctx, persister, f.Exclusions.Retry)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return store, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ExampleFile returns a commented example configuration
func ExampleFile() string {
	return `# ftaudit project configuration

# Record snapshot to audit (YAML or JSON, top-level "people" list)
records: records.yaml

# Pairs confirmed as "not a duplicate"
exclusions:
  backend: yaml                  # yaml, sqlite or postgres
  path: .ftaudit/exclusions.yaml # .ftaudit/ftaudit.db for sqlite
  postgres:                      # Used when backend is postgres
    host: localhost
    port: 5432
    database: ftaudit
    user: ftaudit
    sslmode: prefer              # Set the password with FTAUDIT_PG_PASSWORD
    max_conns: 4
    max_conn_lifetime: 1h
    max_conn_idle_time: 30m
  retry:
    max_retries: 5
    initial_backoff: 200ms
    max_backoff: 10s
    backoff_multiplier: 2.0

# Possible-duplicate matching
matcher:
  threshold: 60
  check_interval: 500      # Pairs between cancellation checks
  progress_every: 100ms
  workers: 4
  blocking: true           # Only compare records with the same surname
  discover_max_score: true
  show_ignored: false

event_buffer: 64

# Default selection for "ftaudit filter", "duplicates" and "explore"
filter:
  relations: [direct, blood]
  # surname: smith
  # birth: {from: 1800, to: 1900}
  # places: [England]
  # exclude_unknown_births: true
  # unknowns: include
`
}
