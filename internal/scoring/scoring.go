// Package scoring provides a simple additive similarity score for two
// person records. Real deployments inject their own scorer; this one is
// what the command line uses.
package scoring

import (
	"strings"

	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/types"
)

// Weights for each component of the default score
const (
	SurnameExact    = 40
	SurnamePrefix   = 20
	ForenamesExact  = 30
	FirstNameMatch  = 20
	InitialMatch    = 5
	BirthSameYear   = 20
	BirthNearYear   = 10
	BirthFarPenalty = 20
	PlaceShared     = 10

	MaxScore = 100
)

// Default scores a and b between 0 and MaxScore. It is symmetric and pure.
func Default(a, b *types.Record) int {
	score := surname(a.Surname, b.Surname) +
		forenames(a.Forenames, b.Forenames) +
		birth(a.Birth, b.Birth) +
		place(a.Location, b.Location)

	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func surname(a, b string) int {
	fa, fb := filter.FoldKey(a), filter.FoldKey(b)
	switch {
	case fa == "" || fb == "":
		return 0
	case fa == fb:
		return SurnameExact
	case strings.HasPrefix(fa, fb) || strings.HasPrefix(fb, fa):
		return SurnamePrefix
	}
	return 0
}

func forenames(a, b string) int {
	wa, wb := strings.Fields(filter.FoldKey(a)), strings.Fields(filter.FoldKey(b))
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	switch {
	case strings.Join(wa, " ") == strings.Join(wb, " "):
		return ForenamesExact
	case wa[0] == wb[0]:
		return FirstNameMatch
	case []rune(wa[0])[0] == []rune(wb[0])[0]:
		return InitialMatch
	}
	return 0
}

func birth(a, b types.Date) int {
	if !a.IsKnown() || !b.IsKnown() {
		return 0
	}
	if a.Overlaps(b, b) {
		return BirthSameYear
	}
	gap := yearGap(a, b)
	switch {
	case gap <= 2:
		return BirthNearYear
	case gap > 5:
		return -BirthFarPenalty
	}
	return 0
}

// yearGap is the number of whole years between the closest ends of two dates
func yearGap(a, b types.Date) int {
	if a.Start().After(b.End()) {
		return a.Start().Year() - b.End().Year()
	}
	return b.Start().Year() - a.End().Year()
}

func place(a, b string) int {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	parts := make(map[string]bool)
	for _, p := range strings.Split(a, ",") {
		if k := filter.FoldKey(p); k != "" {
			parts[k] = true
		}
	}
	for _, p := range strings.Split(b, ",") {
		if parts[filter.FoldKey(p)] {
			return PlaceShared
		}
	}
	return 0
}
