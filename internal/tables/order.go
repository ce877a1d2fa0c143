package tables

import (
	"strings"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/study"
)

// sorter orders dimension values: declared values in declaration order,
// then everything else ascending.
type sorter struct {
	ranks map[schemas.Dimension]map[string]int
}

func newSorter(m *study.Manifest) sorter {
	s := sorter{ranks: make(map[schemas.Dimension]map[string]int)}
	if m == nil {
		return s
	}
	for _, d := range []schemas.Dimension{schemas.DimensionDomain, schemas.DimensionLanguage, schemas.DimensionPromptType} {
		order := m.Order(d)
		if len(order) == 0 {
			continue
		}
		ranks := make(map[string]int, len(order))
		for i, v := range order {
			ranks[v] = i
		}
		s.ranks[d] = ranks
	}
	return s
}

// compare returns -1, 0 or 1.
func (s sorter) compare(d schemas.Dimension, a, b string) int {
	if a == b {
		return 0
	}
	ra, okA := s.ranks[d][a]
	rb, okB := s.ranks[d][b]
	switch {
	case okA && okB:
		if ra < rb {
			return -1
		}
		return 1
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// compareTuple compares aligned value tuples dimension by dimension.
func (s sorter) compareTuple(dims []schemas.Dimension, a, b []string) int {
	for i, d := range dims {
		if c := s.compare(d, a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func keyValues(k schemas.GroupKey, dims []schemas.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = k.Value(d)
	}
	return out
}
