package exclusions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ftaudit/internal/types"
)

// FormatVersion is written to every exclusion file
const FormatVersion = "v1.0.0"

// fileFormat is the on-disk layout of the YAML exclusion file
type fileFormat struct {
	Version string             `yaml:"version"`
	Pairs   [][]types.PersonID `yaml:"pairs"`
}

// FilePersister stores the exclusion set as a YAML file, one pair per entry
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for the given path. The file is
// created on first save; a missing file loads as an empty set.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the file location
func (f *FilePersister) Path() string { return f.path }

// Load reads the file
func (f *FilePersister) Load(ctx context.Context) ([]types.Pair, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading exclusion file: %w", err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parsing exclusion file: %w", err)
	}
	if err := checkVersion(ff.Version); err != nil {
		return nil, err
	}

	pairs := make([]types.Pair, 0, len(ff.Pairs))
	for i, raw := range ff.Pairs {
		if len(raw) != 2 {
			return nil, fmt.Errorf("exclusion file entry %d has %d members, want 2", i, len(raw))
		}
		pairs = append(pairs, types.Pair{A: raw[0], B: raw[1]})
	}
	return pairs, nil
}

// Save writes the file atomically (temp file + rename)
func (f *FilePersister) Save(ctx context.Context, pairs []types.Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ff := fileFormat{Version: FormatVersion, Pairs: make([][]types.PersonID, 0, len(pairs))}
	for _, p := range pairs {
		ff.Pairs = append(ff.Pairs, []types.PersonID{p.A, p.B})
	}

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("marshaling exclusions: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".exclusions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing exclusion file: %w", err)
	}
	return nil
}

// checkVersion accepts files written by any release with the same major version
func checkVersion(v string) error {
	if v == "" {
		return nil // Files written before versioning
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("exclusion file has invalid version %q", v)
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return fmt.Errorf("exclusion file version %s is not compatible with %s", v, FormatVersion)
	}
	return nil
}

// MemoryPersister keeps the set in memory. FailNext makes the next n saves fail.
type MemoryPersister struct {
	mu       sync.Mutex
	pairs    []types.Pair
	saves    int
	failNext int
	failErr  error
}

// NewMemoryPersister returns a persister preloaded with pairs
func NewMemoryPersister(pairs ...types.Pair) *MemoryPersister {
	return &MemoryPersister{pairs: append([]types.Pair(nil), pairs...)}
}

// Load returns the stored pairs
func (m *MemoryPersister) Load(ctx context.Context) ([]types.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Pair(nil), m.pairs...), nil
}

// Save replaces the stored pairs
func (m *MemoryPersister) Save(ctx context.Context, pairs []types.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	m.pairs = append([]types.Pair(nil), pairs...)
	m.saves++
	return nil
}

// FailNext makes the next n calls to Save return err
func (m *MemoryPersister) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// Saved returns the last successfully saved pairs and the number of successful saves
func (m *MemoryPersister) Saved() ([]types.Pair, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Pair(nil), m.pairs...), m.saves
}
