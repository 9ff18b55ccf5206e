package matcher

import (
	"sort"
	"strings"

	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/types"
)

// Sort orders candidates by the primary record's birth date (unknown
// first), then forenames, then surname, then by descending score. Names
// compare case-folded. Ties fall back to the pair so the order is total.
func Sort(cands []types.Candidate) {
	type keyed struct {
		c        types.Candidate
		forename string
		surname  string
	}

	ks := make([]keyed, len(cands))
	for i, c := range cands {
		k := keyed{c: c}
		if c.Primary != nil {
			k.forename = filter.FoldKey(c.Primary.Forenames)
			k.surname = filter.FoldKey(c.Primary.Surname)
		}
		ks[i] = k
	}

	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if c := birthOf(a.c).Compare(birthOf(b.c)); c != 0 {
			return c < 0
		}
		if a.forename != b.forename {
			return a.forename < b.forename
		}
		if a.surname != b.surname {
			return a.surname < b.surname
		}
		if a.c.Score != b.c.Score {
			return a.c.Score > b.c.Score
		}
		return strings.Compare(a.c.Pair.Key(), b.c.Pair.Key()) < 0
	})

	for i := range ks {
		cands[i] = ks[i].c
	}
}

func birthOf(c types.Candidate) types.Date {
	if c.Primary == nil {
		return types.Unknown
	}
	return c.Primary.Birth
}
