package types

import (
	"fmt"
	"strings"
)

// PersonID is the stable identifier of a record in the loaded tree
type PersonID string

// Record is a single person from the loaded record set.
// Records are owned by the caller; nothing in this module mutates them.
type Record struct {
	ID        PersonID `json:"id" yaml:"id"`
	Forenames string   `json:"forenames" yaml:"forenames"`
	Surname   string   `json:"surname" yaml:"surname"`
	Birth     Date     `json:"birth" yaml:"birth"`
	Death     Date     `json:"death" yaml:"death"`
	Location  string   `json:"location,omitempty" yaml:"location,omitempty"`
	Relation  Relation `json:"relation" yaml:"relation"`
}

// Name returns the display name ("Forenames Surname")
func (r *Record) Name() string {
	return strings.TrimSpace(r.Forenames + " " + r.Surname)
}

// Validate checks if the record has valid field values
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !r.Relation.IsValid() {
		return fmt.Errorf("invalid relation: %q", r.Relation)
	}
	if err := r.Birth.Validate(); err != nil {
		return fmt.Errorf("invalid birth date: %w", err)
	}
	if err := r.Death.Validate(); err != nil {
		return fmt.Errorf("invalid death date: %w", err)
	}
	return nil
}

// Relation classifies how a record is related to the root person of the tree
type Relation string

const (
	RelationUnknown         Relation = "unknown"
	RelationDirect          Relation = "direct" // Direct ancestor
	RelationBlood           Relation = "blood"
	RelationMarriage        Relation = "marriage"
	RelationMarriedToDirect Relation = "married_to_direct"
	RelationDescendant      Relation = "descendant"
	RelationLinked          Relation = "linked"
)

// IsValid checks if the relation value is valid.
// The empty relation is treated as unknown.
func (r Relation) IsValid() bool {
	switch r {
	case "", RelationUnknown, RelationDirect, RelationBlood, RelationMarriage,
		RelationMarriedToDirect, RelationDescendant, RelationLinked:
		return true
	}
	return false
}

// Normalize maps the empty relation to RelationUnknown
func (r Relation) Normalize() Relation {
	if r == "" {
		return RelationUnknown
	}
	return r
}

// AllRelations returns every relation classification in display order
func AllRelations() []Relation {
	return []Relation{
		RelationDirect,
		RelationDescendant,
		RelationBlood,
		RelationMarriage,
		RelationMarriedToDirect,
		RelationLinked,
		RelationUnknown,
	}
}

// Pair is an unordered pair of distinct record identifiers.
// Pairs are always stored with A < B so that (x,y) and (y,x) compare equal.
type Pair struct {
	A PersonID `json:"a" yaml:"a"`
	B PersonID `json:"b" yaml:"b"`
}

// NewPair returns the canonical pair for two distinct identifiers
func NewPair(a, b PersonID) (Pair, error) {
	if a == "" || b == "" {
		return Pair{}, fmt.Errorf("pair members must be non-empty (got %q, %q)", a, b)
	}
	if a == b {
		return Pair{}, fmt.Errorf("pair members must differ (got %q twice)", a)
	}
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}, nil
}

// MustPair is NewPair for identifiers known to be distinct; it panics otherwise.
func MustPair(a, b PersonID) Pair {
	p, err := NewPair(a, b)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns a stable string form of the pair
func (p Pair) Key() string {
	return string(p.A) + "|" + string(p.B)
}

// Has reports whether id is one of the pair members
func (p Pair) Has(id PersonID) bool {
	return p.A == id || p.B == id
}

// Less orders pairs by A then B
func (p Pair) Less(o Pair) bool {
	if p.A != o.A {
		return p.A < o.A
	}
	return p.B < o.B
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.A, p.B)
}

// Candidate is a possible duplicate produced by a completed matching run.
// Primary is the member that appears first in the candidate collection and
// provides the sort keys; Match is the other member.
type Candidate struct {
	Pair    Pair    `json:"pair"`
	Primary *Record `json:"primary"`
	Match   *Record `json:"match"`
	Score   int     `json:"score"`
	Ignored bool    `json:"ignored"`
}
