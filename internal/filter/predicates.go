package filter

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/steveyegge/ftaudit/internal/types"
)

// UnknownPolicy decides how predicates over dates treat unknown values
type UnknownPolicy string

const (
	// ExcludeUnknown makes a date predicate false for unknown dates (default)
	ExcludeUnknown UnknownPolicy = "exclude"
	// IncludeUnknown makes a date predicate true for unknown dates
	IncludeUnknown UnknownPolicy = "include"
)

// IsValid checks if the policy value is valid. Empty means ExcludeUnknown.
func (p UnknownPolicy) IsValid() bool {
	switch p {
	case "", ExcludeUnknown, IncludeUnknown:
		return true
	}
	return false
}

// Category passes values whose relation is in enabled.
// An empty enabled set passes everything.
func Category[T any](get func(T) types.Relation, enabled []types.Relation) Predicate[T] {
	if len(enabled) == 0 {
		return Always[T]()
	}
	set := make(map[types.Relation]struct{}, len(enabled))
	for _, r := range enabled {
		set[r.Normalize()] = struct{}{}
	}
	return func(v T) bool {
		_, ok := set[get(v).Normalize()]
		return ok
	}
}

// Substring passes values whose text field contains needle, ignoring case.
// A blank needle passes everything.
func Substring[T any](get func(T) string, needle string) Predicate[T] {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return Always[T]()
	}
	folded := fold(needle)
	return func(v T) bool {
		return strings.Contains(fold(get(v)), folded)
	}
}

// DateRange passes values whose date overlaps [lo, hi] (inclusive; an
// unknown bound is open). Unknown values pass only under IncludeUnknown.
func DateRange[T any](get func(T) types.Date, lo, hi types.Date, policy UnknownPolicy) Predicate[T] {
	return func(v T) bool {
		d := get(v)
		if !d.IsKnown() {
			return policy == IncludeUnknown
		}
		return d.Overlaps(lo, hi)
	}
}

// KnownDate passes values whose date is at least partially known
func KnownDate[T any](get func(T) types.Date) Predicate[T] {
	return func(v T) bool { return get(v).IsKnown() }
}

// Location passes values whose location mentions any of places, comparing
// each comma separated part of the location case-insensitively.
// An empty places list passes everything.
func Location[T any](get func(T) string, places []string) Predicate[T] {
	set := make(map[string]struct{}, len(places))
	for _, p := range places {
		if p = strings.TrimSpace(p); p != "" {
			set[fold(p)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return Always[T]()
	}
	return func(v T) bool {
		for _, part := range strings.Split(get(v), ",") {
			if _, ok := set[fold(strings.TrimSpace(part))]; ok {
				return true
			}
		}
		return false
	}
}

// MaxAge passes values whose minimum possible age is at most maxAge.
// Age is measured to the death date when known, otherwise to ref.
// Unknown birth dates follow policy.
func MaxAge[T any](birth, death func(T) types.Date, ref time.Time, maxAge int, policy UnknownPolicy) Predicate[T] {
	return func(v T) bool {
		b := birth(v)
		if !b.IsKnown() {
			return policy == IncludeUnknown
		}
		until := ref
		if d := death(v); d.IsKnown() && d.Start().Before(ref) {
			until = d.Start()
		}
		return b.MinYearsUntil(until) <= maxAge
	}
}

// fold returns the Unicode case-folded form of s. A cases.Caser carries
// per-call state, so a fresh one is used for each evaluation.
func fold(s string) string {
	return cases.Fold().String(s)
}

// FoldKey exposes the folding used by the predicates so sort keys match
// filter semantics.
func FoldKey(s string) string {
	return fold(strings.TrimSpace(s))
}
