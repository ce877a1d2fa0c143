// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/runstore"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/study"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/tables"
)

// PipelineConfig holds the knobs of one analysis.
type PipelineConfig struct {
	Basis       Basis
	Concurrency int
	// Model restricts the analysis to one model's runs; empty pools all.
	Model    string
	Manifest *study.Manifest
	TopCWEs  int
}

// Pipeline loads runs, aggregates and scores them, and builds the tables.
type Pipeline struct {
	source   schemas.RunSource
	cfg      PipelineConfig
	enricher *Enricher
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline creates a new results processing pipeline.
func NewPipeline(source schemas.RunSource, cfg PipelineConfig, cweProvider providers.CWEProvider, logger *zap.Logger) *Pipeline {
	if cfg.Manifest == nil {
		cfg.Manifest = study.Default()
	}
	if cfg.Basis == "" {
		cfg.Basis = BasisWeighted
	}
	return &Pipeline{
		source:   source,
		cfg:      cfg,
		enricher: NewEnricher(cweProvider, logger),
		logger:   logger.Named("results_pipeline"),
		now:      time.Now,
	}
}

// Run executes the whole analysis. Aggregation of every group completes
// before any record is scored.
func (p *Pipeline) Run(ctx context.Context) (*schemas.StudyReport, error) {
	analysisID := uuid.NewString()
	p.logger.Info("Starting analysis", zap.String("analysis_id", analysisID), zap.String("basis", string(p.cfg.Basis)))

	// 1. Retrieval
	runs, err := p.source.LoadRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, runstore.ErrNoRuns
	}

	// 2. Indexing
	var opts []runstore.IndexOption
	if p.cfg.Model != "" {
		opts = append(opts, runstore.WithModel(p.cfg.Model))
	}
	idx, err := runstore.NewIndex(runs, opts...)
	if err != nil {
		return nil, err
	}
	if idx.RunCount() == 0 {
		return nil, fmt.Errorf("%w for model %q", runstore.ErrNoRuns, p.cfg.Model)
	}
	p.logger.Info("Indexed runs",
		zap.Int("runs", idx.RunCount()),
		zap.Int("groups", idx.Len()),
		zap.Strings("models", idx.Models()))

	// 3. Aggregation
	agg, err := AggregateAll(ctx, idx, p.cfg.Concurrency, p.logger)
	if err != nil {
		return nil, err
	}
	if len(agg.Records) == 0 {
		return nil, fmt.Errorf("%w: all %d groups are unparseable", runstore.ErrNoRuns, len(agg.Incomplete))
	}

	// 4. Scoring
	scored, factor := Score(agg.Records, p.cfg.Basis)
	p.logger.Info("Scored records", zap.Int("records", len(scored)), zap.Float64("normalization_factor", factor))

	// 5. Tables
	res := tables.Build(scored, p.cfg.Manifest, p.cfg.TopCWEs)
	p.enricher.EnrichCWEs(res.TopCWEs)

	report := &schemas.StudyReport{
		AnalysisID:          analysisID,
		GeneratedAt:         p.now().UTC(),
		Basis:               string(p.cfg.Basis),
		NormalizationFactor: factor,
		Runs:                idx.All(),
		Scored:              scored,
		Incomplete:          agg.Incomplete,
		Overall:             res.Overall,
		Statistics:          res.Statistics,
		Tables:              res.Tables,
		Comparisons:         res.Comparisons,
		TopCWEs:             res.TopCWEs,
		Best:                res.Best,
		Worst:               res.Worst,
	}

	p.logger.Info("Analysis complete",
		zap.String("analysis_id", analysisID),
		zap.Float64("avg_security_score", report.Overall.AvgSecurityScore))
	return report, nil
}
