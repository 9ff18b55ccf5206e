package exclusions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/steveyegge/ftaudit/internal/types"
)

// ErrPersistPending is wrapped by mutation errors when the in-memory change
// was applied but the durable write failed and is being retried.
var ErrPersistPending = errors.New("exclusion set write pending retry")

// Persister loads and saves the full exclusion set.
// Save always receives a sorted, deduplicated list of canonical pairs.
type Persister interface {
	Load(ctx context.Context) ([]types.Pair, error)
	Save(ctx context.Context, pairs []types.Pair) error
}

// Store is the session's set of pairs confirmed as "not a duplicate".
//
// Mutations update memory first and then write the whole set through the
// Persister before returning. Writes are serialized by writeMu; readers only
// take mu, so a slow write never blocks a matcher taking a Snapshot.
type Store struct {
	mu    sync.RWMutex
	pairs map[types.Pair]struct{}

	writeMu   sync.Mutex
	persister Persister
	retry     RetryConfig
	dirty     bool

	retryMu     sync.Mutex
	retryCancel context.CancelFunc
	retryDone   chan struct{}
}

// Open loads the persisted set. Pairs stored as (B,A) are folded onto (A,B).
func Open(ctx context.Context, p Persister, retry RetryConfig) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("persister cannot be nil")
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	loaded, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusions: %w", err)
	}

	s := &Store{
		pairs:     make(map[types.Pair]struct{}, len(loaded)),
		persister: p,
		retry:     retry,
	}
	for _, raw := range loaded {
		pair, err := types.NewPair(raw.A, raw.B)
		if err != nil {
			log.Printf("[EXCLUSIONS] Skipping invalid stored pair %v: %v", raw, err)
			continue
		}
		s.pairs[pair] = struct{}{}
	}
	return s, nil
}

// Contains reports whether the pair is excluded
func (s *Store) Contains(p types.Pair) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[p]
	return ok
}

// Len returns the number of excluded pairs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Pairs returns the excluded pairs sorted by A then B
func (s *Store) Pairs() []types.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Snapshot returns an immutable copy of the current set
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[types.Pair]struct{}, len(s.pairs))
	for p := range s.pairs {
		cp[p] = struct{}{}
	}
	return Snapshot{pairs: cp}
}

// Add excludes the pair. Adding an existing pair is a no-op and does not write.
func (s *Store) Add(ctx context.Context, p types.Pair) error {
	_, err := s.mutate(ctx, func(m map[types.Pair]struct{}) bool {
		if _, ok := m[p]; ok {
			return false
		}
		m[p] = struct{}{}
		return true
	})
	return err
}

// Remove stops excluding the pair. Removing an absent pair is a no-op.
func (s *Store) Remove(ctx context.Context, p types.Pair) error {
	_, err := s.mutate(ctx, func(m map[types.Pair]struct{}) bool {
		if _, ok := m[p]; !ok {
			return false
		}
		delete(m, p)
		return true
	})
	return err
}

// Toggle flips the pair's membership and returns whether it is now excluded.
// The in-memory state is kept even when the returned error wraps ErrPersistPending.
func (s *Store) Toggle(ctx context.Context, p types.Pair) (bool, error) {
	var excluded bool
	_, err := s.mutate(ctx, func(m map[types.Pair]struct{}) bool {
		if _, ok := m[p]; ok {
			delete(m, p)
			excluded = false
		} else {
			m[p] = struct{}{}
			excluded = true
		}
		return true
	})
	return excluded, err
}

// Prune removes every pair that mentions an identifier for which keep
// returns false, and returns how many pairs were removed.
func (s *Store) Prune(ctx context.Context, keep func(types.PersonID) bool) (int, error) {
	removed := 0
	_, err := s.mutate(ctx, func(m map[types.Pair]struct{}) bool {
		for p := range m {
			if !keep(p.A) || !keep(p.B) {
				delete(m, p)
				removed++
			}
		}
		return removed > 0
	})
	return removed, err
}

// Flush writes the set if an earlier write failed
func (s *Store) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.flushLocked(ctx)
}

// Pending reports whether the durable copy is behind memory
func (s *Store) Pending() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.dirty
}

// Close stops any background retry and makes a final write attempt
func (s *Store) Close(ctx context.Context) error {
	s.stopRetry()
	return s.Flush(ctx)
}

// mutate applies fn under the write guard and persists if fn changed the set
func (s *Store) mutate(ctx context.Context, fn func(map[types.Pair]struct{}) bool) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := fn(s.pairs)
	s.mu.Unlock()

	if !changed {
		return false, nil
	}
	s.dirty = true
	if err := s.flushLocked(ctx); err != nil {
		log.Printf("[EXCLUSIONS] Failed to save exclusion set, will retry: %v", err)
		s.startRetry()
		return true, fmt.Errorf("%w: %v", ErrPersistPending, err)
	}
	return true, nil
}

// flushLocked writes the current set if dirty. Caller holds writeMu.
func (s *Store) flushLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	s.mu.RLock()
	pairs := s.sortedLocked()
	s.mu.RUnlock()

	if err := s.persister.Save(ctx, pairs); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// startRetry launches the background retry loop unless one is running
func (s *Store) startRetry() {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	if s.retryDone != nil {
		select {
		case <-s.retryDone:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.retryCancel = cancel
	s.retryDone = done

	go func() {
		defer close(done)
		defer cancel()
		err := retryWithBackoff(ctx, s.retry, "save exclusion set", s.Flush)
		if err != nil {
			log.Printf("[EXCLUSIONS] Giving up on background save (next change will try again): %v", err)
		}
	}()
}

func (s *Store) stopRetry() {
	s.retryMu.Lock()
	cancel, done := s.retryCancel, s.retryDone
	s.retryMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// sortedLocked returns the pairs in canonical order. Caller holds mu.
func (s *Store) sortedLocked() []types.Pair {
	out := make([]types.Pair, 0, len(s.pairs))
	for p := range s.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Snapshot is a read-only view of the exclusion set taken at one instant
type Snapshot struct {
	pairs map[types.Pair]struct{}
}

// EmptySnapshot excludes nothing
func EmptySnapshot() Snapshot {
	return Snapshot{}
}

// Contains reports whether the pair was excluded when the snapshot was taken
func (s Snapshot) Contains(p types.Pair) bool {
	_, ok := s.pairs[p]
	return ok
}

// Len returns the number of pairs in the snapshot
func (s Snapshot) Len() int {
	return len(s.pairs)
}
