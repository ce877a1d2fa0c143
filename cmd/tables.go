// File: cmd/tables.go
package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/reporting"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/study"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/tables"
)

// newTablesCmd creates and configures the `tables` command.
func newTablesCmd() *cobra.Command {
	tablesCmd := &cobra.Command{
		Use:   "tables [security_scores.csv]",
		Short: "Rebuild the grouped tables from an existing scores file",
		Long: `Reads the scored prompts of an earlier analysis and regenerates the grouped
tables, category statistics and comparisons without re-reading any run. The
scores file defaults to security_scores.csv in the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			var scoresPath string
			if len(args) == 1 {
				scoresPath = args[0]
			}
			return runTables(observability.GetLogger(), cmd.OutOrStdout(), cfg, scoresPath)
		},
	}

	flags := tablesCmd.Flags()
	flags.StringP("output", "o", "", "Output directory. (Overrides config/env)")
	flags.StringSliceP("format", "f", nil, "Output formats: csv, markdown, json. (Overrides config/env)")
	flags.String("manifest", "", "Study manifest declaring table order and comparisons. (Overrides config/env)")
	bindConfigFlag(flags, "output", "analysis.output_dir")
	bindConfigFlag(flags, "format", "analysis.formats")
	bindConfigFlag(flags, "manifest", "analysis.manifest")

	return tablesCmd
}

// runTables contains the core, testable logic of the tables command.
func runTables(logger *zap.Logger, out io.Writer, cfg config.Interface, scoresPath string) error {
	ac := cfg.Analysis()
	if scoresPath == "" {
		scoresPath = filepath.Join(ac.OutputDir, reporting.ScoresCSV)
	}

	records, err := reporting.ReadScoresFile(scoresPath)
	if err != nil {
		return err
	}
	manifest, err := study.Load(ac.Manifest)
	if err != nil {
		return err
	}

	// Findings are not part of the scores file, so no weakness ranking.
	res := tables.Build(records, manifest, 0)
	report := &schemas.StudyReport{
		GeneratedAt: time.Now().UTC(),
		Scored:      records,
		Overall:     res.Overall,
		Statistics:  res.Statistics,
		Tables:      res.Tables,
		Comparisons: res.Comparisons,
		Best:        res.Best,
		Worst:       res.Worst,
	}

	if err := reporting.WriteTables(report, ac.Formats, ac.OutputDir); err != nil {
		return fmt.Errorf("failed to write tables: %w", err)
	}

	logger.Info("Rebuilt tables",
		zap.String("scores", scoresPath),
		zap.Int("records", len(records)),
		zap.Int("tables", len(res.Tables)))
	fmt.Fprintf(out, "Rebuilt %d tables from %d prompts into %s\n", len(res.Tables), len(records), ac.OutputDir)
	return nil
}
