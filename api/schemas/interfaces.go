package schemas

import "context"

// -- Storage Interfaces --

// RunSource loads every run of a study. Implementations include the
// filesystem tree written by the scanning stage and the PostgreSQL store.
type RunSource interface {
	LoadRuns(ctx context.Context) ([]Run, error)
}

// RunSink persists runs for later analysis.
type RunSink interface {
	PersistRuns(ctx context.Context, runs []Run) error
}

// ScoreSink persists the scored records of one analysis.
type ScoreSink interface {
	PersistScores(ctx context.Context, analysisID string, normalizationFactor float64, records []ScoredRecord) error
}
