package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/types"
)

var (
	// ErrCancelled is returned when the context ends before the run completes.
	// It wraps context.Canceled.
	ErrCancelled = fmt.Errorf("matching cancelled: %w", context.Canceled)

	// ErrScorer wraps a panic raised by the injected scorer
	ErrScorer = errors.New("scorer failed")

	// ErrInvalidInput is wrapped by errors about the candidate collection
	ErrInvalidInput = errors.New("invalid match input")
)

// Scorer returns the similarity of two records. It must be pure: the
// matcher calls it from several goroutines and may call it twice per pair.
type Scorer func(a, b *types.Record) int

// BlockKey assigns a record to a comparison block
type BlockKey func(r *types.Record) string

// SurnameBlock groups records by case-folded surname
func SurnameBlock(r *types.Record) string {
	return filter.FoldKey(r.Surname)
}

// Exclusions is the read side of the exclusion set
type Exclusions interface {
	Contains(p types.Pair) bool
}

type noExclusions struct{}

func (noExclusions) Contains(types.Pair) bool { return false }

// Sink receives progress from a running match. Methods are called from
// worker goroutines and must not block.
type Sink interface {
	Progress(processed, total int)
	MaxScore(score int)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Progress(int, int) {}
func (NopSink) MaxScore(int)      {}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnProgress func(processed, total int)
	OnMaxScore func(score int)
}

func (s SinkFuncs) Progress(processed, total int) {
	if s.OnProgress != nil {
		s.OnProgress(processed, total)
	}
}

func (s SinkFuncs) MaxScore(score int) {
	if s.OnMaxScore != nil {
		s.OnMaxScore(score)
	}
}

// Result is the outcome of a completed run
type Result struct {
	Candidates []types.Candidate // Sorted, see Sort
	Threshold  int
	MaxScore   int           // Highest score seen; 0 when nothing was scored
	Compared   int           // Pairs scored in the threshold pass
	Excluded   int           // Pairs found in the exclusion set
	TotalPairs int           // Pairs enumerated per pass after blocking
	Blocks     int           // Blocks with at least two records
	Duration   time.Duration // Wall time of the whole run
}

// AtThreshold returns the candidates scoring at least t. A threshold
// below the run's own cannot add pairs the run never kept.
func (r *Result) AtThreshold(t int) []types.Candidate {
	out := make([]types.Candidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if c.Score >= t {
			out = append(out, c)
		}
	}
	return out
}

// Visible returns the candidates not flagged Ignored
func (r *Result) Visible() []types.Candidate {
	out := make([]types.Candidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if !c.Ignored {
			out = append(out, c)
		}
	}
	return out
}

// Options carries the optional collaborators of Match
type Options struct {
	Exclusions Exclusions // nil excludes nothing
	Sink       Sink       // nil discards progress
	BlockKey   BlockKey   // nil means SurnameBlock
}

// Match scores pairs of candidates and returns those at or above the
// configured threshold.
//
// Pairs are enumerated within blocks (see Config.Blocking) in candidate
// order, so a candidate's Primary is always the record that appears first
// in candidates. Excluded pairs are skipped unless Config.ShowIgnored is
// set. Neither candidates nor the exclusion set is modified.
//
// When ctx ends mid-run Match returns ErrCancelled and no result: an empty
// Result always means the run completed and found nothing.
func Match(ctx context.Context, candidates []*types.Record, scorer Scorer, cfg Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: scorer cannot be nil", ErrInvalidInput)
	}
	if err := checkCandidates(candidates); err != nil {
		return nil, err
	}
	if opts.Exclusions == nil {
		opts.Exclusions = noExclusions{}
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.BlockKey == nil {
		opts.BlockKey = SurnameBlock
	}

	start := time.Now()
	blocks := buildBlocks(candidates, opts.BlockKey, cfg.Blocking)
	perPass := 0
	for _, b := range blocks {
		perPass += len(b) * (len(b) - 1) / 2
	}
	passes := 1
	if cfg.DiscoverMaxScore {
		passes = 2
	}

	r := &run{
		cfg:        cfg,
		candidates: candidates,
		scorer:     scorer,
		excl:       opts.Exclusions,
		sink:       opts.Sink,
		total:      perPass * passes,
		limiter:    newLimiter(cfg.ProgressEvery),
		maxLimiter: newLimiter(cfg.ProgressEvery),
	}

	if cfg.DiscoverMaxScore {
		if err := r.pass(ctx, blocks, false); err != nil {
			return nil, r.finishErr(ctx, err)
		}
		r.reportMax()
	}
	if err := r.pass(ctx, blocks, true); err != nil {
		return nil, r.finishErr(ctx, err)
	}
	r.reportMax()
	r.sink.Progress(r.total, r.total)

	var kept []types.Candidate
	for _, part := range r.kept {
		kept = append(kept, part...)
	}
	Sort(kept)

	res := &Result{
		Candidates: kept,
		Threshold:  cfg.Threshold,
		MaxScore:   r.maxScore(),
		Compared:   int(r.compared.Load()),
		Excluded:   int(r.excluded.Load()),
		TotalPairs: perPass,
		Blocks:     len(blocks),
		Duration:   time.Since(start),
	}
	if res.Candidates == nil {
		res.Candidates = []types.Candidate{}
	}
	log.Printf("[MATCHER] Completed: %d candidates at threshold %d (%d pairs in %d blocks, %d excluded, max score %d) in %v",
		len(res.Candidates), res.Threshold, res.TotalPairs, res.Blocks, res.Excluded, res.MaxScore, res.Duration)
	return res, nil
}

// checkCandidates rejects nil records and repeated identifiers
func checkCandidates(candidates []*types.Record) error {
	seen := make(map[types.PersonID]int, len(candidates))
	for i, rec := range candidates {
		if rec == nil {
			return fmt.Errorf("%w: candidate %d is nil", ErrInvalidInput, i)
		}
		if rec.ID == "" {
			return fmt.Errorf("%w: candidate %d has no identifier", ErrInvalidInput, i)
		}
		if j, ok := seen[rec.ID]; ok {
			return fmt.Errorf("%w: identifier %s appears at %d and %d", ErrInvalidInput, rec.ID, j, i)
		}
		seen[rec.ID] = i
	}
	return nil
}

// buildBlocks groups candidate indexes by key, keeping candidate order within
// each block and first-seen order between blocks. Singleton blocks are dropped.
func buildBlocks(candidates []*types.Record, key BlockKey, blocking bool) [][]int {
	if !blocking {
		if len(candidates) < 2 {
			return nil
		}
		all := make([]int, len(candidates))
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}

	index := make(map[string]int)
	var blocks [][]int
	for i, rec := range candidates {
		k := key(rec)
		bi, ok := index[k]
		if !ok {
			bi = len(blocks)
			index[k] = bi
			blocks = append(blocks, nil)
		}
		blocks[bi] = append(blocks[bi], i)
	}

	out := blocks[:0]
	for _, b := range blocks {
		if len(b) >= 2 {
			out = append(out, b)
		}
	}
	return out
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// run is the shared state of one Match call
type run struct {
	cfg        Config
	candidates []*types.Record
	scorer     Scorer
	excl       Exclusions
	sink       Sink
	total      int

	processed atomic.Int64
	compared  atomic.Int64
	excluded  atomic.Int64
	limiter   *rate.Limiter

	maxMu      sync.Mutex
	max        int
	haveMax    bool
	maxLimiter *rate.Limiter

	kept [][]types.Candidate // One slot per block, threshold pass only
}

// pass scans every block once. When filtering is false it only discovers
// the maximum score; otherwise it keeps pairs at or above the threshold.
func (r *run) pass(ctx context.Context, blocks [][]int, filtering bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filtering {
		r.kept = make([][]types.Candidate, len(blocks))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for bi, block := range blocks {
		g.Go(func() error {
			kept, err := r.scanBlock(gctx, block, filtering)
			if err != nil {
				return err
			}
			if filtering {
				r.kept[bi] = kept
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) scanBlock(ctx context.Context, block []int, filtering bool) ([]types.Candidate, error) {
	var kept []types.Candidate
	sinceCheck := 0

	for x := 0; x < len(block); x++ {
		a := r.candidates[block[x]]
		for y := x + 1; y < len(block); y++ {
			sinceCheck++
			if sinceCheck >= r.cfg.CheckInterval {
				r.tick(sinceCheck)
				sinceCheck = 0
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			b := r.candidates[block[y]]
			pair, err := types.NewPair(a.ID, b.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}

			ignored := r.excl.Contains(pair)
			if ignored && filtering {
				r.excluded.Add(1)
			}
			if ignored && !(filtering && r.cfg.ShowIgnored) {
				continue
			}

			score, err := r.score(a, b, pair)
			if err != nil {
				return nil, err
			}
			if !ignored && (!filtering || !r.cfg.DiscoverMaxScore) {
				r.observe(score)
			}
			if !filtering {
				continue
			}
			r.compared.Add(1)
			if score >= r.cfg.Threshold {
				kept = append(kept, types.Candidate{
					Pair:    pair,
					Primary: a,
					Match:   b,
					Score:   score,
					Ignored: ignored,
				})
			}
		}
	}
	r.tick(sinceCheck)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return kept, nil
}

// score calls the scorer, turning a panic into an error
func (r *run) score(a, b *types.Record, pair types.Pair) (score int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w on %s: %v", ErrScorer, pair, p)
		}
	}()
	return r.scorer(a, b), nil
}

// tick records n processed pairs and reports progress if the limiter allows
func (r *run) tick(n int) {
	if n == 0 {
		return
	}
	done := r.processed.Add(int64(n))
	if r.limiter.Allow() {
		r.sink.Progress(int(done), r.total)
	}
}

// observe folds a score into the running maximum
func (r *run) observe(score int) {
	r.maxMu.Lock()
	defer r.maxMu.Unlock()
	if r.haveMax && score <= r.max {
		return
	}
	r.max = score
	r.haveMax = true
	if r.maxLimiter.Allow() {
		r.sink.MaxScore(score)
	}
}

// reportMax sends the final maximum, which the limiter may have held back
func (r *run) reportMax() {
	r.maxMu.Lock()
	defer r.maxMu.Unlock()
	if r.haveMax {
		r.sink.MaxScore(r.max)
	}
}

func (r *run) maxScore() int {
	r.maxMu.Lock()
	defer r.maxMu.Unlock()
	return r.max
}

// finishErr maps a pass error to what Match returns
func (r *run) finishErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		log.Printf("[MATCHER] Cancelled after %d of %d pairs", r.processed.Load(), r.total)
		return ErrCancelled
	}
	log.Printf("[MATCHER] Failed: %v", err)
	return err
}
