package runstore

import (
	"context"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// MemorySource serves a fixed set of runs, for callers that already hold
// them in memory such as pipeline tests.
type MemorySource struct {
	runs []schemas.Run
}

// NewMemorySource copies runs into a new source.
func NewMemorySource(runs []schemas.Run) *MemorySource {
	cp := make([]schemas.Run, len(runs))
	copy(cp, runs)
	return &MemorySource{runs: cp}
}

// LoadRuns returns the runs the source was created with.
func (m *MemorySource) LoadRuns(ctx context.Context) ([]schemas.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]schemas.Run, len(m.runs))
	copy(out, m.runs)
	return out, nil
}
