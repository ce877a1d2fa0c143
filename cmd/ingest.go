// File: cmd/ingest.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/runstore"
)

// newIngestCmd creates and configures the `ingest` command.
func newIngestCmd(stores storeProvider) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest [results-dir]",
		Short: "Load a results tree into the database",
		Long: `Reads every run of a results tree and stores runs and findings in PostgreSQL,
replacing earlier copies of the same runs. The directory defaults to
analysis.input_dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				ac := cfg.Analysis()
				ac.InputDir = args[0]
				cfg.SetAnalysisConfig(ac)
			}

			return runIngest(ctx, logger, cmd.OutOrStdout(), cfg, stores)
		},
	}
	return ingestCmd
}

// runIngest contains the core, testable logic of the ingest command.
func runIngest(ctx context.Context, logger *zap.Logger, out io.Writer, cfg config.Interface, stores storeProvider) error {
	root := cfg.Analysis().InputDir
	if root == "" {
		return fmt.Errorf("no results directory given")
	}

	runs, err := runstore.NewFSSource(root, logger).LoadRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("%w under %s", runstore.ErrNoRuns, root)
	}
	// Indexing rejects inconsistent trees before anything is written.
	idx, err := runstore.NewIndex(runs)
	if err != nil {
		return err
	}

	db, cleanup, err := stores.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := db.PersistRuns(ctx, idx.All()); err != nil {
		return fmt.Errorf("failed to persist runs: %w", err)
	}

	logger.Info("Ingested results tree",
		zap.String("root", root),
		zap.Int("runs", idx.RunCount()),
		zap.Int("prompts", idx.Len()),
		zap.Strings("models", idx.Models()))
	fmt.Fprintf(out, "Ingested %d runs of %d prompts from %s\n", idx.RunCount(), idx.Len(), root)
	return nil
}
