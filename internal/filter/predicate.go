package filter

// Predicate reports whether a value passes a filter.
// Predicates built by this package hold no mutable state and may be
// cached, reused, and evaluated from many goroutines at once.
type Predicate[T any] func(T) bool

// Always returns the identity filter that passes everything
func Always[T any]() Predicate[T] {
	return func(T) bool { return true }
}

// Never returns a filter that rejects everything
func Never[T any]() Predicate[T] {
	return func(T) bool { return false }
}

// And returns a predicate that is true iff every input is true.
// Zero inputs compose to Always; nil inputs are skipped.
func And[T any](preds ...Predicate[T]) Predicate[T] {
	live := compact(preds)
	switch len(live) {
	case 0:
		return Always[T]()
	case 1:
		return live[0]
	}
	return func(v T) bool {
		for _, p := range live {
			if !p(v) {
				return false
			}
		}
		return true
	}
}

// Or returns a predicate that is true iff any input is true.
// Zero inputs compose to Never; nil inputs are skipped.
func Or[T any](preds ...Predicate[T]) Predicate[T] {
	live := compact(preds)
	switch len(live) {
	case 0:
		return Never[T]()
	case 1:
		return live[0]
	}
	return func(v T) bool {
		for _, p := range live {
			if p(v) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate. Not(nil) is Never.
func Not[T any](p Predicate[T]) Predicate[T] {
	if p == nil {
		return Never[T]()
	}
	return func(v T) bool { return !p(v) }
}

// Apply returns the items that pass p, in their original order.
// The input slice is not modified.
func Apply[T any](items []T, p Predicate[T]) []T {
	if p == nil {
		p = Always[T]()
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if p(item) {
			out = append(out, item)
		}
	}
	return out
}

// Count returns how many items pass p
func Count[T any](items []T, p Predicate[T]) int {
	if p == nil {
		return len(items)
	}
	n := 0
	for _, item := range items {
		if p(item) {
			n++
		}
	}
	return n
}

// compact copies the non-nil predicates so later changes to the caller's
// slice cannot leak into a composed predicate.
func compact[T any](preds []Predicate[T]) []Predicate[T] {
	out := make([]Predicate[T], 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
