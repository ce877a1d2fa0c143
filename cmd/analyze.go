// File: cmd/analyze.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/reporting"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/runstore"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/study"
)

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd(stores storeProvider, publishers publisherProvider) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Aggregate, score and tabulate every run of a study",
		Long: `Loads every run from the results tree (or the database), merges the runs of
each prompt into one aggregate, scores the aggregates on a common scale and
writes the per-prompt, grouped and comparison tables in the requested formats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Delegate to the testable core logic function.
			return runAnalyze(ctx, logger, cmd.OutOrStdout(), cfg, stores, publishers)
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringP("input", "i", "", "Root of the results tree. (Overrides config/env)")
	flags.StringP("output", "o", "", "Output directory; 'stdout' streams JSON or SARIF. (Overrides config/env)")
	flags.String("source", "", "Run source: 'filesystem' or 'postgres'. (Overrides config/env)")
	flags.String("model", "", "Only analyze runs of this model. (Overrides config/env)")
	flags.StringSliceP("format", "f", nil, "Output formats: csv, markdown, json, sarif. Repeatable. (Overrides config/env)")
	flags.String("basis", "", "Score basis: 'weighted' or 'cvss'. (Overrides config/env)")
	flags.String("manifest", "", "Study manifest declaring table order and comparisons. (Overrides config/env)")
	flags.String("cvss-mapping", "", "JSON file mapping CWE ids to CVSS base scores. (Overrides config/env)")
	flags.IntP("concurrency", "j", 0, "Number of prompts aggregated in parallel. (Overrides config/env)")
	flags.Int("top-cwes", 0, "Length of the most frequent weaknesses list; 0 disables it. (Overrides config/env)")
	flags.Bool("persist", false, "Store the scored records in the database. (Overrides config/env)")
	flags.Bool("publish", false, "Upload the output directory to object storage. (Overrides config/env)")

	for flag, key := range map[string]string{
		"input":        "analysis.input_dir",
		"output":       "analysis.output_dir",
		"source":       "analysis.source",
		"model":        "analysis.model",
		"format":       "analysis.formats",
		"basis":        "analysis.basis",
		"manifest":     "analysis.manifest",
		"cvss-mapping": "analysis.cvss_mapping",
		"concurrency":  "analysis.concurrency",
		"top-cwes":     "analysis.top_cwes",
		"persist":      "analysis.persist",
		"publish":      "analysis.publish",
	} {
		bindConfigFlag(flags, flag, key)
	}

	return analyzeCmd
}

// runAnalyze contains the core, testable logic of the analyze command.
func runAnalyze(
	ctx context.Context,
	logger *zap.Logger,
	out io.Writer,
	cfg config.Interface,
	stores storeProvider,
	publishers publisherProvider,
) error {
	ac := cfg.Analysis()
	if ac.Publish && ac.OutputDir == "stdout" {
		return errors.New("publishing requires an output directory")
	}

	basis, err := results.ParseBasis(ac.Basis)
	if err != nil {
		return err
	}
	manifest, err := study.Load(ac.Manifest)
	if err != nil {
		return err
	}

	cwe := providers.NewInMemoryCWEProvider()
	if ac.CVSSMapping != "" {
		n, err := cwe.LoadCVSSMapping(ac.CVSSMapping)
		if err != nil {
			return err
		}
		logger.Info("Loaded CVSS mapping", zap.String("path", ac.CVSSMapping), zap.Int("entries", n))
	}

	// The database is needed when it is either the source or a sink.
	var db studyStore
	if ac.Source == config.SourcePostgres || ac.Persist {
		s, cleanup, err := stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		db = s
	}

	var source schemas.RunSource
	switch ac.Source {
	case config.SourcePostgres:
		source = db
	default:
		source = runstore.NewFSSource(ac.InputDir, logger)
	}

	pipeline := results.NewPipeline(source, results.PipelineConfig{
		Basis:       basis,
		Concurrency: ac.Concurrency,
		Model:       ac.Model,
		Manifest:    manifest,
		TopCWEs:     ac.TopCWEs,
	}, cwe, logger)

	report, err := pipeline.Run(ctx)
	if err != nil {
		if errors.Is(err, runstore.ErrNoRuns) {
			logger.Warn("Nothing to analyze", zap.String("source", ac.Source), zap.String("input", ac.InputDir))
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := reporting.WriteAll(report, ac.Formats, ac.OutputDir, Version); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}

	if ac.Persist {
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := db.PersistScores(ctx, report.AnalysisID, report.NormalizationFactor, report.Scored); err != nil {
			return fmt.Errorf("failed to persist scores: %w", err)
		}
	}

	if ac.Publish {
		publisher, err := publishers.Create(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
		keys, err := publisher.Publish(ctx, ac.OutputDir, report.AnalysisID)
		if err != nil {
			return fmt.Errorf("failed to publish reports: %w", err)
		}
		logger.Info("Reports published", zap.Int("objects", len(keys)))
	}

	// Streamed output owns stdout.
	if ac.OutputDir != "stdout" {
		fmt.Fprintf(out, "Analysis %s: %d prompts scored, %d incomplete, average security score %.4f\n",
			report.AnalysisID, len(report.Scored), len(report.Incomplete), report.Overall.AvgSecurityScore)
		fmt.Fprintf(out, "Results written to %s\n", ac.OutputDir)
	}
	return nil
}
