// Package session owns a matching run on behalf of an interactive caller.
//
// A Session holds an immutable candidate snapshot, the exclusion store and
// a scorer. Start, Cancel and ToggleIgnore are called from the caller's
// context; the matcher runs on its own goroutine and reports back through
// the Events channel, which the caller drains on whatever goroutine it
// renders from.
package session
