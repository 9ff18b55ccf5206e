package filter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ftaudit/internal/types"
)

func intPtr(i int) *int { return &i }

func sampleRecords() []*types.Record {
	return []*types.Record{
		{ID: "I1", Forenames: "John", Surname: "Smith", Birth: types.Year(1850), Death: types.Year(1910),
			Location: "Leeds, Yorkshire, England", Relation: types.RelationDirect},
		{ID: "I2", Forenames: "Mary", Surname: "Smithson", Birth: types.Year(1855),
			Location: "Glasgow, Scotland", Relation: types.RelationMarriage},
		{ID: "I3", Forenames: "Ann", Surname: "Jones", Relation: types.RelationBlood,
			Location: "Cardiff, Wales"},
		{ID: "I4", Forenames: "Émile", Surname: "ÉCLAIR", Birth: types.Year(1799), Death: types.Year(1801),
			Relation: types.RelationUnknown},
	}
}

func ids(recs []*types.Record) []types.PersonID {
	out := make([]types.PersonID, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestAndLaw(t *testing.T) {
	isEven := Predicate[int](func(n int) bool { return n%2 == 0 })
	isBig := Predicate[int](func(n int) bool { return n > 10 })
	isSquare := Predicate[int](func(n int) bool {
		for i := 0; i*i <= n; i++ {
			if i*i == n {
				return true
			}
		}
		return false
	})

	for n := -5; n <= 40; n++ {
		assert.Equal(t, isEven(n) && isBig(n), And(isEven, isBig)(n), "n=%d", n)
		// Associativity
		assert.Equal(t, And(And(isEven, isBig), isSquare)(n), And(isEven, And(isBig, isSquare))(n), "n=%d", n)
		assert.Equal(t, isEven(n) || isBig(n), Or(isEven, isBig)(n), "n=%d", n)
		assert.Equal(t, !isEven(n), Not(isEven)(n), "n=%d", n)
		assert.True(t, And[int]()(n), "empty And is identity")
		assert.False(t, Or[int]()(n), "empty Or is false")
	}
}

func TestAndSkipsNil(t *testing.T) {
	p := And[int](nil, func(n int) bool { return n > 0 }, nil)
	assert.True(t, p(1))
	assert.False(t, p(-1))
	assert.True(t, And[int](nil, nil)(0))
}

func TestAndIsNotAffectedByCallerSliceChanges(t *testing.T) {
	preds := []Predicate[int]{Always[int](), Always[int]()}
	p := And(preds...)
	preds[0] = Never[int]()
	assert.True(t, p(1))
}

func TestCategory(t *testing.T) {
	recs := sampleRecords()

	all := Apply(recs, Category(RecordFields.Relation, nil))
	assert.Len(t, all, len(recs), "empty enabled set passes everything")

	direct := Apply(recs, Category(RecordFields.Relation, []types.Relation{types.RelationDirect, types.RelationBlood}))
	assert.Equal(t, []types.PersonID{"I1", "I3"}, ids(direct))

	blank := &types.Record{ID: "X"}
	assert.True(t, Category(RecordFields.Relation, []types.Relation{types.RelationUnknown})(blank),
		"empty relation counts as unknown")
}

func TestSubstringIgnoresCase(t *testing.T) {
	recs := sampleRecords()

	got := Apply(recs, Substring(RecordFields.Surname, "SMITH"))
	assert.Equal(t, []types.PersonID{"I1", "I2"}, ids(got))

	got = Apply(recs, Substring(RecordFields.Surname, "éclair"))
	assert.Equal(t, []types.PersonID{"I4"}, ids(got))

	assert.Len(t, Apply(recs, Substring(RecordFields.Surname, "   ")), len(recs))
}

func TestDateRangeUnknownPolicy(t *testing.T) {
	recs := sampleRecords()

	excl := Apply(recs, DateRange(RecordFields.Birth, types.Year(1800), types.Year(1860), ExcludeUnknown))
	assert.Equal(t, []types.PersonID{"I1", "I2"}, ids(excl))

	incl := Apply(recs, DateRange(RecordFields.Birth, types.Year(1800), types.Year(1860), IncludeUnknown))
	assert.Equal(t, []types.PersonID{"I1", "I2", "I3"}, ids(incl))

	open := Apply(recs, DateRange(RecordFields.Birth, types.Unknown, types.Year(1800), ExcludeUnknown))
	assert.Equal(t, []types.PersonID{"I4"}, ids(open))
}

func TestLocation(t *testing.T) {
	recs := sampleRecords()

	got := Apply(recs, Location(RecordFields.Location, []string{"scotland", "WALES"}))
	assert.Equal(t, []types.PersonID{"I2", "I3"}, ids(got))

	assert.Len(t, Apply(recs, Location(RecordFields.Location, []string{" "})), len(recs))
}

func TestMaxAge(t *testing.T) {
	ref := time.Date(1900, time.June, 1, 0, 0, 0, 0, time.UTC)
	recs := sampleRecords()

	got := Apply(recs, MaxAge(RecordFields.Birth, RecordFields.Death, ref, 45, ExcludeUnknown))
	// I1 aged 49 at ref, I2 44 at ref, I4 died aged 1
	assert.Equal(t, []types.PersonID{"I2", "I4"}, ids(got))
}

func TestBuildEmptySelectionIsIdentity(t *testing.T) {
	var sel Selection
	assert.True(t, sel.IsEmpty())

	p, err := Build(sel)
	require.NoError(t, err)
	recs := sampleRecords()
	assert.Len(t, Apply(recs, p), len(recs))
	assert.True(t, p(nil), "nil record must not panic")
}

func TestBuildComposesSelection(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want []types.PersonID
	}{
		{
			name: "relations",
			sel:  Selection{Relations: []types.Relation{types.RelationDirect, types.RelationMarriage}},
			want: []types.PersonID{"I1", "I2"},
		},
		{
			name: "relations and surname",
			sel:  Selection{Relations: []types.Relation{types.RelationDirect, types.RelationMarriage}, Surname: "smithson"},
			want: []types.PersonID{"I2"},
		},
		{
			name: "birth range excludes unknown",
			sel:  Selection{Birth: &YearRange{From: 1840, To: 1900}},
			want: []types.PersonID{"I1", "I2"},
		},
		{
			name: "birth range includes unknown",
			sel:  Selection{Birth: &YearRange{From: 1840}, Unknowns: IncludeUnknown},
			want: []types.PersonID{"I1", "I2", "I3"},
		},
		{
			name: "places",
			sel:  Selection{Places: []string{"England"}},
			want: []types.PersonID{"I1"},
		},
		{
			name: "ignore locations drops places",
			sel:  Selection{Places: []string{"England"}, IgnoreLocations: true},
			want: []types.PersonID{"I1", "I2", "I3", "I4"},
		},
		{
			name: "exclude unknown births",
			sel:  Selection{ExcludeUnknownBirths: true},
			want: []types.PersonID{"I1", "I2", "I4"},
		},
		{
			name: "max age",
			sel:  Selection{MaxAge: intPtr(45), AgeAt: types.Year(1900)},
			want: []types.PersonID{"I2", "I4"},
		},
		{
			name: "forename",
			sel:  Selection{Forename: "ÉMI"},
			want: []types.PersonID{"I4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(Apply(sampleRecords(), p)))
		})
	}
}

func TestBuildRejectsMalformedSelection(t *testing.T) {
	tests := []struct {
		name  string
		sel   Selection
		field string
	}{
		{"unknown relation", Selection{Relations: []types.Relation{"cousin"}}, "relations"},
		{"inverted birth", Selection{Birth: &YearRange{From: 1900, To: 1800}}, "birth"},
		{"negative death", Selection{Death: &YearRange{From: -1}}, "death"},
		{"negative age", Selection{MaxAge: intPtr(-1), AgeAt: types.Year(1900)}, "max_age"},
		{"age without reference", Selection{MaxAge: intPtr(10)}, "age_at"},
		{"bad unknown policy", Selection{Unknowns: "maybe"}, "unknowns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.sel)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrInvalidSelection))

			var selErr *SelectionError
			require.True(t, errors.As(err, &selErr))
			assert.Equal(t, tt.field, selErr.Field)
		})
	}
}

func TestBuildDoesNotMutateSelection(t *testing.T) {
	sel := Selection{
		Relations: []types.Relation{types.RelationDirect},
		Places:    []string{"England"},
	}
	p, err := Build(sel)
	require.NoError(t, err)

	sel.Relations[0] = types.RelationBlood
	sel.Places[0] = "Wales"

	got := Apply(sampleRecords(), p)
	assert.Equal(t, []types.PersonID{"I1"}, ids(got), "predicate must not see later selection edits")
}

func TestBuildIsDeterministic(t *testing.T) {
	sel := Selection{Surname: "smith", Birth: &YearRange{From: 1800}}
	p1, err := Build(sel)
	require.NoError(t, err)
	p2, err := Build(sel)
	require.NoError(t, err)

	for _, r := range sampleRecords() {
		assert.Equal(t, p1(r), p2(r), r.ID)
	}
}

type censusRow struct {
	Surname string
	Rel     types.Relation
}

func TestBuildForOtherRowTypes(t *testing.T) {
	rows := []censusRow{{"Smith", types.RelationDirect}, {"Jones", types.RelationDirect}, {"Smith", types.RelationLinked}}
	fields := Fields[censusRow]{
		Relation: func(r censusRow) types.Relation { return r.Rel },
		Surname:  func(r censusRow) string { return r.Surname },
	}

	p, err := BuildFor(Selection{Relations: []types.Relation{types.RelationDirect}, Surname: "smi", ExcludeUnknownBirths: true}, fields)
	require.NoError(t, err)
	assert.Equal(t, 1, Count(rows, p), "controls without accessors are ignored")
}

func TestPredicateConcurrentUse(t *testing.T) {
	p, err := Build(Selection{Surname: "smith", Places: []string{"england"}})
	require.NoError(t, err)
	recs := sampleRecords()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.Equal(t, 1, Count(recs, p))
			}
		}()
	}
	wg.Wait()
}
