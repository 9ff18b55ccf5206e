package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/matcher"
	"github.com/steveyegge/ftaudit/internal/types"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// State is the lifecycle state of a session
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// ExclusionStore is what the session needs from the exclusion set
type ExclusionStore interface {
	Snapshot() exclusions.Snapshot
	Toggle(ctx context.Context, p types.Pair) (bool, error)
}

// Config controls a session
type Config struct {
	Matcher matcher.Config `yaml:"matcher"`

	// EventBuffer is the capacity of the event channel. Progress events are
	// dropped once all but one slot is taken; terminal events are queued
	// behind them without limit.
	// Default: 64
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns the default session configuration
func DefaultConfig() Config {
	return Config{
		Matcher:     matcher.DefaultConfig(),
		EventBuffer: 64,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.EventBuffer < 2 {
		return fmt.Errorf("event_buffer must be at least 2 (got %d)", c.EventBuffer)
	}
	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("matcher: %w", err)
	}
	return nil
}

// run is one matching pass owned by the session
type run struct {
	id        string
	threshold int
	cancel    context.CancelFunc
	done      chan struct{} // Closed once the terminal event is published
}

// Session runs the matcher in the background, one run at a time, and
// delivers progress and results on a single channel.
//
// Events pass through an ordered queue drained by a forwarding goroutine,
// so a run never waits on the consumer. Progress and max-score events are
// dropped when the consumer falls behind. Terminal events (completed,
// cancelled, failed) are never dropped and arrive in the order runs were
// started.
type Session struct {
	startMu sync.Mutex // Serializes Start and Close

	mu            sync.Mutex
	candidates    []*types.Record
	state         State
	lastOutcome   State
	lastCompleted *matcher.Result
	active        *run
	closed        bool

	scorer matcher.Scorer
	store  ExclusionStore
	cfg    Config

	events    chan Event
	quit      chan struct{} // Closed by Close once no run is active
	forwarded chan struct{} // Closed when the forwarder has closed events
	dropped   atomic.Int64

	queueMu sync.Mutex
	pending []Event       // Published but not yet on the channel
	notify  chan struct{} // Wakes the forwarder
}

// New creates an idle session over a copy of candidates
func New(candidates []*types.Record, scorer matcher.Scorer, store ExclusionStore, cfg Config) (*Session, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("exclusion store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	s := &Session{
		candidates: append([]*types.Record(nil), candidates...),
		state:      StateIdle,
		scorer:     scorer,
		store:      store,
		cfg:        cfg,
		events:     make(chan Event, cfg.EventBuffer),
		quit:       make(chan struct{}),
		forwarded:  make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
	go s.forward()
	return s, nil
}

// Events returns the delivery channel. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SetCandidates replaces the candidate snapshot used by later runs.
// A run already in progress keeps the snapshot it started with.
func (s *Session) SetCandidates(candidates []*types.Record) {
	cp := append([]*types.Record(nil), candidates...)
	s.mu.Lock()
	s.candidates = cp
	s.mu.Unlock()
}

// Start launches a run at threshold and returns its id. A run already in
// progress is cancelled first, and Start waits until it has published its
// terminal event, so two runs never overlap. Start does not wait for the
// consumer. The new run also ends when ctx does.
func (s *Session) Start(ctx context.Context, threshold int) (string, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	mcfg := s.cfg.Matcher
	mcfg.Threshold = threshold
	if err := mcfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid threshold: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	prev := s.active
	s.mu.Unlock()

	if prev != nil {
		s.Cancel()
		<-prev.done
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        uuid.New().String(),
		threshold: threshold,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	candidates := s.candidates
	s.active = r
	s.state = StateRunning
	s.mu.Unlock()

	// Exclusions are read once per run; toggles made while it runs apply to the next one.
	snap := s.store.Snapshot()

	log.Printf("[SESSION] Starting run %s at threshold %d over %d records", r.id, threshold, len(candidates))
	go s.execute(runCtx, r, candidates, snap, mcfg)
	return r.id, nil
}

func (s *Session) execute(ctx context.Context, r *run, candidates []*types.Record, snap exclusions.Snapshot, cfg matcher.Config) {
	defer close(r.done)
	defer r.cancel()

	sink := matcher.SinkFuncs{
		OnProgress: func(processed, total int) {
			s.publish(progressEvent(r.id, r.threshold, processed, total))
		},
		OnMaxScore: func(score int) {
			s.publish(maxScoreEvent(r.id, r.threshold, score))
		},
	}

	res, err := matcher.Match(ctx, candidates, s.scorer, cfg, matcher.Options{
		Exclusions: snap,
		Sink:       sink,
	})

	var ev Event
	var outcome State
	switch {
	case err == nil:
		ev, outcome = completedEvent(r.id, r.threshold, res), StateCompleted
	case errors.Is(err, matcher.ErrCancelled):
		ev, outcome = cancelledEvent(r.id, r.threshold), StateCancelled
	default:
		ev, outcome = failedEvent(r.id, r.threshold, err.Error()), StateFailed
		log.Printf("[SESSION] Run %s failed: %v", r.id, err)
	}

	s.mu.Lock()
	if outcome == StateCompleted {
		s.lastCompleted = res
	}
	s.lastOutcome = outcome
	s.mu.Unlock()

	s.publish(ev)

	s.mu.Lock()
	if s.active == r {
		s.active = nil
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// publish queues ev for the forwarder without blocking. A non-terminal
// event is dropped when it would take the last free slot of the channel.
func (s *Session) publish(ev Event) {
	s.queueMu.Lock()
	if !ev.Type.IsTerminal() && len(s.pending)+len(s.events) >= cap(s.events)-1 {
		s.queueMu.Unlock()
		s.dropped.Add(1)
		return
	}
	s.pending = append(s.pending, ev)
	s.queueMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// forward moves published events onto the channel in order. It owns the
// channel and closes it once Close has been called.
func (s *Session) forward() {
	defer close(s.forwarded)
	defer close(s.events)

	for {
		s.queueMu.Lock()
		if len(s.pending) == 0 {
			s.queueMu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.quit:
				// A publish may have raced the close
				s.flush()
				return
			}
		}
		ev := s.pending[0]
		s.queueMu.Unlock()

		select {
		case s.events <- ev:
			s.queueMu.Lock()
			s.pending[0] = Event{}
			s.pending = s.pending[1:]
			s.queueMu.Unlock()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

// flush delivers whatever still fits in the channel after Close
func (s *Session) flush() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for i, ev := range s.pending {
		select {
		case s.events <- ev:
		default:
			log.Printf("[SESSION] Session closed, dropping %d undelivered event(s)", len(s.pending)-i)
			s.pending = nil
			return
		}
	}
	s.pending = nil
}

// Cancel asks the active run to stop and returns immediately. The run
// reaches Cancelled within one check interval of the matcher.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	s.state = StateCancelling
	s.active.cancel()
}

// Wait blocks until the active run, if any, has published its terminal event
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleIgnore flips the pair's membership in the exclusion set and returns
// whether it is now excluded. The write is durable before ToggleIgnore
// returns unless the error wraps exclusions.ErrPersistPending, in which case
// the change is kept in memory and retried in the background. The last
// completed result is updated so the flip is visible without a new run.
func (s *Session) ToggleIgnore(ctx context.Context, p types.Pair) (bool, error) {
	pair, err := types.NewPair(p.A, p.B)
	if err != nil {
		return false, err
	}

	excluded, err := s.store.Toggle(ctx, pair)
	if err != nil && !errors.Is(err, exclusions.ErrPersistPending) {
		return false, err
	}

	s.mu.Lock()
	s.lastCompleted = withIgnored(s.lastCompleted, pair, excluded)
	s.mu.Unlock()

	return excluded, err
}

// withIgnored returns a copy of res with the pair's Ignored flag set.
// Results already handed out are never modified.
func withIgnored(res *matcher.Result, pair types.Pair, ignored bool) *matcher.Result {
	if res == nil {
		return nil
	}
	idx := -1
	for i, c := range res.Candidates {
		if c.Pair == pair {
			idx = i
			break
		}
	}
	if idx < 0 || res.Candidates[idx].Ignored == ignored {
		return res
	}
	cp := *res
	cp.Candidates = append([]types.Candidate(nil), res.Candidates...)
	cp.Candidates[idx].Ignored = ignored
	return &cp
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastOutcome returns the terminal state of the most recent run, or
// StateIdle if no run has finished
func (s *Session) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastOutcome == "" {
		return StateIdle
	}
	return s.lastOutcome
}

// LastCompleted returns the most recent completed result. Cancelled and
// failed runs leave it unchanged.
func (s *Session) LastCompleted() *matcher.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompleted
}

// Dropped returns the number of progress events discarded because the
// consumer fell behind
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Close cancels any active run, waits for it, and closes the event channel.
// Events that fit in the channel remain readable; anything the consumer
// had fallen further behind on is dropped.
func (s *Session) Close() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.active
	s.mu.Unlock()

	if active != nil {
		s.Cancel()
		<-active.done
	}
	close(s.quit)
	<-s.forwarded
	return nil
}
