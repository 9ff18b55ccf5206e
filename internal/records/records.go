// Package records loads the person snapshot the other packages work on.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ftaudit/internal/types"
)

// ErrDuplicateID is returned when two records share an identifier
var ErrDuplicateID = errors.New("duplicate record id")

// Format is the encoding of a snapshot file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from the file extension. Anything that
// is not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// snapshot is the top-level layout of a record file
type snapshot struct {
	People []*types.Record `json:"people" yaml:"people"`
}

// Load reads and validates the snapshot at path
func Load(path string) ([]*types.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	recs, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Parse decodes a snapshot. Relations are normalized, so an empty relation
// comes back as unknown.
func Parse(data []byte, format Format) ([]*types.Record, error) {
	var snap snapshot
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to parse JSON records: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML records: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported record format %q", format)
	}

	if err := Check(snap.People); err != nil {
		return nil, err
	}
	for _, r := range snap.People {
		r.Relation = r.Relation.Normalize()
	}
	return snap.People, nil
}

// Check validates every record and rejects repeated identifiers
func Check(recs []*types.Record) error {
	seen := make(map[types.PersonID]int, len(recs))
	for i, r := range recs {
		if r == nil {
			return fmt.Errorf("record %d is empty", i)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, r.ID, err)
		}
		if j, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %s at records %d and %d", ErrDuplicateID, r.ID, j, i)
		}
		seen[r.ID] = i
	}
	return nil
}

// Index maps identifiers to records
func Index(recs []*types.Record) map[types.PersonID]*types.Record {
	idx := make(map[types.PersonID]*types.Record, len(recs))
	for _, r := range recs {
		idx[r.ID] = r
	}
	return idx
}

// Save writes recs to path in the format implied by its extension
func Save(path string, recs []*types.Record) error {
	snap := snapshot{People: recs}
	var (
		data []byte
		err  error
	)
	if FormatFromPath(path) == FormatJSON {
		data, err = json.MarshalIndent(snap, "", "  ")
	} else {
		data, err = yaml.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
