package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ftaudit/internal/types"
)

func rec(id, forenames, surname string, birth types.Date) *types.Record {
	return &types.Record{ID: types.PersonID(id), Forenames: forenames, Surname: surname, Birth: birth}
}

// fixedScorer returns the score listed for a pair, 0 otherwise
func fixedScorer(scores map[types.Pair]int) Scorer {
	return func(a, b *types.Record) int {
		return scores[types.MustPair(a.ID, b.ID)]
	}
}

type pairSet map[types.Pair]bool

func (s pairSet) Contains(p types.Pair) bool { return s[p] }

func pairsOf(cands []types.Candidate) []types.Pair {
	out := make([]types.Pair, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Pair)
	}
	return out
}

func testConfig(threshold int) Config {
	cfg := DefaultConfig()
	cfg.Threshold = threshold
	cfg.ProgressEvery = 0
	return cfg
}

func threePeople() ([]*types.Record, Scorer) {
	people := []*types.Record{
		rec("P1", "Ada", "Hale", types.Year(1900)),
		rec("P2", "Bea", "Hale", types.Year(1895)),
		rec("P3", "Cy", "Hale", types.Year(1890)),
	}
	scorer := fixedScorer(map[types.Pair]int{
		types.MustPair("P1", "P2"): 80,
		types.MustPair("P1", "P3"): 60,
		types.MustPair("P2", "P3"): 90,
	})
	return people, scorer
}

func TestMatchThresholdScenario(t *testing.T) {
	people, scorer := threePeople()

	tests := []struct {
		threshold int
		want      []types.Pair
	}{
		{61, []types.Pair{types.MustPair("P2", "P3"), types.MustPair("P1", "P2")}},
		{80, []types.Pair{types.MustPair("P2", "P3"), types.MustPair("P1", "P2")}},
		{91, []types.Pair{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("threshold %d", tt.threshold), func(t *testing.T) {
			res, err := Match(context.Background(), people, scorer, testConfig(tt.threshold), Options{})
			require.NoError(t, err)
			require.NotNil(t, res, "empty result is not cancellation")
			assert.Equal(t, tt.want, pairsOf(res.Candidates))
			assert.Equal(t, 90, res.MaxScore)
			assert.Equal(t, 3, res.TotalPairs)
			assert.Equal(t, 3, res.Compared)
			assert.Equal(t, tt.threshold, res.Threshold)
		})
	}
}

func TestMatchPrimaryIsEarlierCandidate(t *testing.T) {
	people, scorer := threePeople()

	res, err := Match(context.Background(), people, scorer, testConfig(61), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)

	assert.Equal(t, types.PersonID("P2"), res.Candidates[0].Primary.ID)
	assert.Equal(t, types.PersonID("P3"), res.Candidates[0].Match.ID)
	assert.Equal(t, 90, res.Candidates[0].Score)
	assert.Equal(t, types.PersonID("P1"), res.Candidates[1].Primary.ID)
}

func TestMatchOrdersByBirthDate(t *testing.T) {
	people := []*types.Record{
		rec("P1", "Ann", "Lee", types.Year(1900)),
		rec("P2", "Ann", "Lee", types.Year(1895)),
		rec("P3", "Ann", "Lee", types.Unknown),
		rec("P4", "Ann", "Lee", types.Unknown),
	}
	scorer := fixedScorer(map[types.Pair]int{
		types.MustPair("P1", "P3"): 80,
		types.MustPair("P2", "P4"): 80,
	})

	res, err := Match(context.Background(), people, scorer, testConfig(50), Options{})
	require.NoError(t, err)
	assert.Equal(t, []types.Pair{types.MustPair("P2", "P4"), types.MustPair("P1", "P3")}, pairsOf(res.Candidates),
		"lower birth date first")
}

func TestMatchMonotonicInThreshold(t *testing.T) {
	var people []*types.Record
	for i := 0; i < 40; i++ {
		surname := "Ward"
		if i%3 == 0 {
			surname = "WARD"
		}
		people = append(people, rec(fmt.Sprintf("I%02d", i), "X", surname, types.Year(1800+i%7)))
	}
	scorer := func(a, b *types.Record) int {
		h := 0
		for _, c := range string(a.ID) + string(b.ID) {
			h = (h*31 + int(c)) % 101
		}
		return h
	}

	var previous map[types.Pair]bool
	for threshold := 0; threshold <= 100; threshold += 10 {
		res, err := Match(context.Background(), people, scorer, testConfig(threshold), Options{})
		require.NoError(t, err)

		current := make(map[types.Pair]bool)
		for _, c := range res.Candidates {
			assert.GreaterOrEqual(t, c.Score, threshold)
			current[c.Pair] = true
			if previous != nil {
				assert.True(t, previous[c.Pair], "%s at %d missing from lower threshold", c.Pair, threshold)
			}
		}
		previous = current
	}
}

func TestMatchSkipsExcludedPairs(t *testing.T) {
	people, scorer := threePeople()
	excl := pairSet{types.MustPair("P2", "P1"): true}

	res, err := Match(context.Background(), people, scorer, testConfig(61), Options{Exclusions: excl})
	require.NoError(t, err)
	assert.Equal(t, []types.Pair{types.MustPair("P2", "P3")}, pairsOf(res.Candidates))
	assert.Equal(t, 1, res.Excluded)
	assert.Equal(t, 2, res.Compared)

	// Removing the exclusion restores the pair
	delete(excl, types.MustPair("P1", "P2"))
	res, err = Match(context.Background(), people, scorer, testConfig(61), Options{Exclusions: excl})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
}

func TestMatchShowIgnored(t *testing.T) {
	people, scorer := threePeople()
	excl := pairSet{types.MustPair("P2", "P3"): true}
	cfg := testConfig(61)
	cfg.ShowIgnored = true

	res, err := Match(context.Background(), people, scorer, cfg, Options{Exclusions: excl})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.True(t, res.Candidates[0].Ignored)
	assert.False(t, res.Candidates[1].Ignored)
	assert.Equal(t, []types.Pair{types.MustPair("P1", "P2")}, pairsOf(res.Visible()))
	assert.Equal(t, 80, res.MaxScore, "excluded pairs do not count towards the maximum")
}

func TestMatchMaxScoreWithoutDiscoveryPass(t *testing.T) {
	people, scorer := threePeople()
	cfg := testConfig(95)
	cfg.DiscoverMaxScore = false

	var reported []int
	var mu sync.Mutex
	sink := SinkFuncs{OnMaxScore: func(s int) {
		mu.Lock()
		reported = append(reported, s)
		mu.Unlock()
	}}

	res, err := Match(context.Background(), people, scorer, cfg, Options{Sink: sink})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 90, res.MaxScore)
	require.NotEmpty(t, reported)
	assert.Equal(t, 90, reported[len(reported)-1])
}

func TestMatchReportsProgress(t *testing.T) {
	var people []*types.Record
	for i := 0; i < 30; i++ {
		people = append(people, rec(fmt.Sprintf("I%02d", i), "X", "Moss", types.Unknown))
	}
	cfg := testConfig(0)
	cfg.CheckInterval = 7

	var mu sync.Mutex
	var last [2]int
	calls := 0
	sink := SinkFuncs{OnProgress: func(processed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, processed, total)
		last = [2]int{processed, total}
		calls++
	}}

	res, err := Match(context.Background(), people, func(a, b *types.Record) int { return 1 }, cfg, Options{Sink: sink})
	require.NoError(t, err)
	assert.Equal(t, 435, res.TotalPairs)
	assert.Len(t, res.Candidates, 435)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [2]int{870, 870}, last, "total counts both passes")
	assert.Greater(t, calls, 2)
}

func TestMatchBlocking(t *testing.T) {
	people := []*types.Record{
		rec("I1", "Tom", "Jones", types.Unknown),
		rec("I2", "Tom", "Brown", types.Unknown),
		rec("I3", "Tom", "JONES", types.Unknown),
	}
	var calls sync.Map
	scorer := func(a, b *types.Record) int {
		calls.Store(types.MustPair(a.ID, b.ID), true)
		return 100
	}

	res, err := Match(context.Background(), people, scorer, testConfig(50), Options{})
	require.NoError(t, err)
	assert.Equal(t, []types.Pair{types.MustPair("I1", "I3")}, pairsOf(res.Candidates))
	assert.Equal(t, 1, res.Blocks)
	_, scored := calls.Load(types.MustPair("I1", "I2"))
	assert.False(t, scored, "pairs across blocks are never scored")

	cfg := testConfig(50)
	cfg.Blocking = false
	res, err = Match(context.Background(), people, scorer, cfg, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 3)
}

func TestMatchCustomBlockKey(t *testing.T) {
	people := []*types.Record{
		rec("I1", "Tom", "Jones", types.Year(1850)),
		rec("I2", "Tom", "Brown", types.Year(1850)),
		rec("I3", "Tom", "Jones", types.Year(1851)),
	}
	byYear := func(r *types.Record) string { return r.Birth.String() }

	res, err := Match(context.Background(), people, func(a, b *types.Record) int { return 70 },
		testConfig(50), Options{BlockKey: byYear})
	require.NoError(t, err)
	assert.Equal(t, []types.Pair{types.MustPair("I1", "I2")}, pairsOf(res.Candidates))
}

func TestMatchCancelledBeforeStart(t *testing.T) {
	people, scorer := threePeople()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Match(ctx, people, scorer, testConfig(61), Options{})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMatchCancelledMidRun(t *testing.T) {
	var people []*types.Record
	for i := 0; i < 300; i++ {
		people = append(people, rec(fmt.Sprintf("I%03d", i), "X", "Page", types.Unknown))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	scorer := func(a, b *types.Record) int {
		if calls.Add(1) == 100 {
			cancel()
		}
		return 50
	}
	cfg := testConfig(0)
	cfg.CheckInterval = 10
	cfg.Workers = 1

	res, err := Match(ctx, people, scorer, cfg, Options{})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Less(t, calls.Load(), int64(200), "cancellation observed within a check interval")
}

func TestMatchScorerPanic(t *testing.T) {
	people, _ := threePeople()
	scorer := func(a, b *types.Record) int {
		if a.ID == "P2" {
			panic("bad record")
		}
		return 1
	}

	res, err := Match(context.Background(), people, scorer, testConfig(0), Options{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScorer))
	assert.False(t, errors.Is(err, ErrCancelled))
	assert.Contains(t, err.Error(), "bad record")
}

func TestMatchRejectsBadInput(t *testing.T) {
	people, scorer := threePeople()

	_, err := Match(context.Background(), people, nil, testConfig(0), Options{})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Match(context.Background(), []*types.Record{people[0], nil}, scorer, testConfig(0), Options{})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Match(context.Background(), []*types.Record{people[0], people[0]}, scorer, testConfig(0), Options{})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bad := testConfig(0)
	bad.Workers = 0
	_, err = Match(context.Background(), people, scorer, bad, Options{})
	assert.Error(t, err)
}

func TestMatchDoesNotMutateInputs(t *testing.T) {
	people, scorer := threePeople()
	before := make([]types.Record, len(people))
	order := make([]*types.Record, len(people))
	for i, p := range people {
		before[i] = *p
		order[i] = p
	}
	excl := pairSet{types.MustPair("P1", "P2"): true}

	_, err := Match(context.Background(), people, scorer, testConfig(0), Options{Exclusions: excl})
	require.NoError(t, err)

	for i, p := range people {
		assert.Same(t, order[i], p)
		assert.Equal(t, before[i], *p)
	}
	assert.Equal(t, pairSet{types.MustPair("P1", "P2"): true}, excl)
}

func TestMatchEmptyAndSingleton(t *testing.T) {
	res, err := Match(context.Background(), nil, func(a, b *types.Record) int { return 0 }, testConfig(0), Options{})
	require.NoError(t, err)
	assert.NotNil(t, res.Candidates)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.MaxScore)

	res, err = Match(context.Background(), []*types.Record{rec("I1", "A", "B", types.Unknown)},
		func(a, b *types.Record) int { return 0 }, testConfig(0), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestResultAtThreshold(t *testing.T) {
	people, scorer := threePeople()
	res, err := Match(context.Background(), people, scorer, testConfig(0), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)

	assert.Len(t, res.AtThreshold(61), 2)
	assert.Len(t, res.AtThreshold(85), 1)
	assert.Len(t, res.AtThreshold(91), 0)
	assert.Len(t, res.Candidates, 3, "AtThreshold does not modify the result")
}
