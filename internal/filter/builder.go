package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/ftaudit/internal/types"
)

// ErrInvalidSelection is wrapped by every error returned from Selection.Validate
var ErrInvalidSelection = errors.New("invalid filter selection")

// SelectionError describes one malformed field of a Selection
type SelectionError struct {
	Field  string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidSelection, e.Field, e.Reason)
}

func (e *SelectionError) Unwrap() error { return ErrInvalidSelection }

// YearRange is an inclusive range of years. Zero on either side leaves that side open.
type YearRange struct {
	From int `yaml:"from,omitempty" json:"from,omitempty"`
	To   int `yaml:"to,omitempty" json:"to,omitempty"`
}

func (r YearRange) bounds() (types.Date, types.Date) {
	lo, hi := types.Unknown, types.Unknown
	if r.From > 0 {
		lo = types.Year(r.From)
	}
	if r.To > 0 {
		hi = types.Year(r.To)
	}
	return lo, hi
}

// Selection is the set of user-toggled filter controls, as a plain value.
// The zero Selection selects everything.
type Selection struct {
	// Relations enabled; empty means no restriction
	Relations []types.Relation `yaml:"relations,omitempty" json:"relations,omitempty"`

	// Surname and Forename are case-insensitive substrings; blank means no restriction
	Surname  string `yaml:"surname,omitempty" json:"surname,omitempty"`
	Forename string `yaml:"forename,omitempty" json:"forename,omitempty"`

	Birth *YearRange `yaml:"birth,omitempty" json:"birth,omitempty"`
	Death *YearRange `yaml:"death,omitempty" json:"death,omitempty"`

	// Places restricts by location part (e.g. country) unless IgnoreLocations is set
	Places          []string `yaml:"places,omitempty" json:"places,omitempty"`
	IgnoreLocations bool     `yaml:"ignore_locations,omitempty" json:"ignore_locations,omitempty"`

	ExcludeUnknownBirths bool `yaml:"exclude_unknown_births,omitempty" json:"exclude_unknown_births,omitempty"`

	// MaxAge bounds the minimum possible age at death, or at AgeAt if still living
	MaxAge *int       `yaml:"max_age,omitempty" json:"max_age,omitempty"`
	AgeAt  types.Date `yaml:"age_at,omitempty" json:"age_at,omitempty"`

	// Unknowns decides whether unknown dates pass date and age bounds
	Unknowns UnknownPolicy `yaml:"unknowns,omitempty" json:"unknowns,omitempty"`
}

// IsEmpty reports whether the selection restricts nothing
func (s Selection) IsEmpty() bool {
	return len(s.Relations) == 0 &&
		strings.TrimSpace(s.Surname) == "" &&
		strings.TrimSpace(s.Forename) == "" &&
		s.Birth == nil && s.Death == nil &&
		(len(s.Places) == 0 || s.IgnoreLocations) &&
		!s.ExcludeUnknownBirths &&
		s.MaxAge == nil
}

// Validate checks the selection for configuration errors
func (s Selection) Validate() error {
	for _, r := range s.Relations {
		if !r.IsValid() {
			return &SelectionError{Field: "relations", Reason: fmt.Sprintf("unknown relation %q", r)}
		}
	}
	ranges := []struct {
		name string
		r    *YearRange
	}{{"birth", s.Birth}, {"death", s.Death}}
	for _, nr := range ranges {
		name, r := nr.name, nr.r
		if r == nil {
			continue
		}
		if r.From < 0 || r.To < 0 {
			return &SelectionError{Field: name, Reason: "years cannot be negative"}
		}
		if r.From > 0 && r.To > 0 && r.From > r.To {
			return &SelectionError{Field: name, Reason: fmt.Sprintf("from (%d) is after to (%d)", r.From, r.To)}
		}
	}
	if s.MaxAge != nil {
		if *s.MaxAge < 0 {
			return &SelectionError{Field: "max_age", Reason: fmt.Sprintf("cannot be negative (got %d)", *s.MaxAge)}
		}
		if !s.AgeAt.IsKnown() {
			return &SelectionError{Field: "age_at", Reason: "required when max_age is set"}
		}
	}
	if !s.Unknowns.IsValid() {
		return &SelectionError{Field: "unknowns", Reason: fmt.Sprintf("must be %q or %q (got %q)",
			ExcludeUnknown, IncludeUnknown, s.Unknowns)}
	}
	return nil
}

// Fields supplies the accessors a report row type exposes to the builder.
// Nil accessors disable the corresponding controls for that row type.
type Fields[T any] struct {
	Relation  func(T) types.Relation
	Surname   func(T) string
	Forenames func(T) string
	Birth     func(T) types.Date
	Death     func(T) types.Date
	Location  func(T) string
}

// RecordFields are the accessors for *types.Record. A nil record reads as empty.
var RecordFields = Fields[*types.Record]{
	Relation: func(r *types.Record) types.Relation {
		if r == nil {
			return types.RelationUnknown
		}
		return r.Relation
	},
	Surname: func(r *types.Record) string {
		if r == nil {
			return ""
		}
		return r.Surname
	},
	Forenames: func(r *types.Record) string {
		if r == nil {
			return ""
		}
		return r.Forenames
	},
	Birth: func(r *types.Record) types.Date {
		if r == nil {
			return types.Unknown
		}
		return r.Birth
	},
	Death: func(r *types.Record) types.Date {
		if r == nil {
			return types.Unknown
		}
		return r.Death
	},
	Location: func(r *types.Record) string {
		if r == nil {
			return ""
		}
		return r.Location
	},
}

// Build composes the selection into a predicate over records
func Build(sel Selection) (Predicate[*types.Record], error) {
	return BuildFor(sel, RecordFields)
}

// BuildFor composes the selection into a predicate over any row type.
//
// An empty selection yields Always: no selected controls means no
// restriction, not "exclude everything". The selection is never modified
// and the same selection always yields an equivalent predicate.
func BuildFor[T any](sel Selection, f Fields[T]) (Predicate[T], error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	policy := sel.Unknowns
	if policy == "" {
		policy = ExcludeUnknown
	}

	var preds []Predicate[T]

	if f.Relation != nil && len(sel.Relations) > 0 {
		enabled := append([]types.Relation(nil), sel.Relations...)
		preds = append(preds, Category(f.Relation, enabled))
	}
	if f.Surname != nil && strings.TrimSpace(sel.Surname) != "" {
		preds = append(preds, Substring(f.Surname, sel.Surname))
	}
	if f.Forenames != nil && strings.TrimSpace(sel.Forename) != "" {
		preds = append(preds, Substring(f.Forenames, sel.Forename))
	}
	if f.Birth != nil {
		if sel.ExcludeUnknownBirths {
			preds = append(preds, KnownDate(f.Birth))
		}
		if sel.Birth != nil {
			lo, hi := sel.Birth.bounds()
			preds = append(preds, DateRange(f.Birth, lo, hi, policy))
		}
	}
	if f.Death != nil && sel.Death != nil {
		lo, hi := sel.Death.bounds()
		preds = append(preds, DateRange(f.Death, lo, hi, policy))
	}
	if f.Location != nil && !sel.IgnoreLocations && len(sel.Places) > 0 {
		places := append([]string(nil), sel.Places...)
		preds = append(preds, Location(f.Location, places))
	}
	if sel.MaxAge != nil && f.Birth != nil {
		death := f.Death
		if death == nil {
			death = func(T) types.Date { return types.Unknown }
		}
		preds = append(preds, MaxAge(f.Birth, death, sel.AgeAt.Start(), *sel.MaxAge, policy))
	}

	return And(preds...), nil
}
