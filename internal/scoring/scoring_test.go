package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/ftaudit/internal/types"
)

func TestDefault(t *testing.T) {
	base := &types.Record{ID: "A", Forenames: "John Henry", Surname: "Smith", Birth: types.Year(1850), Location: "Leeds, Yorkshire"}

	tests := []struct {
		name  string
		other *types.Record
		want  int
	}{
		{"identical", &types.Record{ID: "B", Forenames: "john henry", Surname: "SMITH", Birth: types.Year(1850), Location: "yorkshire"},
			SurnameExact + ForenamesExact + BirthSameYear + PlaceShared},
		{"first name only", &types.Record{ID: "B", Forenames: "John", Surname: "Smith"},
			SurnameExact + FirstNameMatch},
		{"initial and near birth", &types.Record{ID: "B", Forenames: "Jack", Surname: "Smithson", Birth: types.Year(1852)},
			SurnamePrefix + InitialMatch + BirthNearYear},
		{"far birth", &types.Record{ID: "B", Forenames: "Mary", Surname: "Smith", Birth: types.Year(1890)},
			SurnameExact - BirthFarPenalty},
		{"nothing in common", &types.Record{ID: "B", Forenames: "Ann", Surname: "Jones", Birth: types.Year(1700)},
			0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Default(base, tt.other))
			assert.Equal(t, Default(base, tt.other), Default(tt.other, base), "symmetric")
		})
	}
}

func TestDefaultStaysInRange(t *testing.T) {
	empty := &types.Record{ID: "X"}
	assert.Equal(t, 0, Default(empty, empty))

	a := &types.Record{ID: "A", Forenames: "Ann", Surname: "Lee", Birth: types.Year(1900), Location: "Hull"}
	score := Default(a, a)
	assert.LessOrEqual(t, score, MaxScore)
	assert.Equal(t, SurnameExact+ForenamesExact+BirthSameYear+PlaceShared, score)
}
