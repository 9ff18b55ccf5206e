// Package filter provides composable boolean predicates over report rows and
// a builder that turns a plain Selection value into one composed predicate.
//
// # Predicates
//
// A Predicate[T] is a plain function value. Combinators (And, Or, Not) return
// new functions and never hold mutable state, so a composed predicate can be
// cached at the call site and evaluated concurrently:
//
//	byRelation := filter.Category(getRelation, []types.Relation{types.RelationDirect})
//	bySurname := filter.Substring(getSurname, "smith")
//	p := filter.And(byRelation, bySurname)
//
// And() with no arguments is Always; Or() with no arguments is Never.
//
// # Unknown dates
//
// Genealogical dates are often partially or wholly unknown. Date predicates
// never fail on an unknown value: they return false unless the caller passes
// IncludeUnknown.
//
// # Selections
//
// Build and BuildFor map a Selection (enabled relations, name substrings,
// year ranges, places, age bound) onto predicates. The empty Selection is the
// identity filter. Malformed selections are rejected with an error wrapping
// ErrInvalidSelection rather than silently ignored.
package filter
