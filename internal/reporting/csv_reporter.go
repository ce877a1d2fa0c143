package reporting

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
)

// Column layouts shared with downstream statistical tooling.
var (
	findingColumns = []string{
		"task_id", "domain", "language", "prompt_type", "run_number", "model",
		"scanner", "rule_id", "severity", "cwe", "cvss_score",
		"file_path", "line_number", "end_line", "message",
	}
	aggregatedColumns = []string{
		"task_id", "domain", "language", "prompt_type",
		"total_vulnerabilities", "error_count", "warning_count", "info_count", "weighted_score",
		"total_cvss_score", "max_cvss_score", "avg_cvss_score",
		"unique_rules", "cwe_count", "runs_analyzed",
	}
	scoredColumns = []string{
		"task_id", "domain", "language", "prompt_type",
		"total_vulnerabilities", "error_count", "warning_count", "info_count", "weighted_score",
		"total_cvss_score", "max_cvss_score", "avg_cvss_score", "security_score",
		"unique_rules", "cwe_count", "runs_analyzed",
	}
	summaryColumns = []string{
		"count", "prompts_with_vuln", "prevalence",
		"total_vulnerabilities", "error_count", "warning_count", "info_count",
		"weighted_score", "avg_weighted_score",
		"avg_security_score", "min_security_score", "max_security_score",
	}
	statisticsColumns = []string{
		"category", "value", "count", "prompts_with_vuln", "prevalence",
		"total_vulnerabilities", "error_count", "warning_count", "info_count",
		"avg_weighted_score", "avg_security_score", "min_security_score", "max_security_score",
	}
	comparisonTail = []string{
		"baseline", "treatment",
		"baseline_avg_security_score", "treatment_avg_security_score",
		"improvement", "improvement_pct",
	}
	incompleteColumns = []string{"task_id", "domain", "language", "prompt_type", "runs_unparseable"}
)

// CSVReporter writes the study's flat tables as CSV files.
type CSVReporter struct {
	dir    string
	logger *zap.Logger
}

// NewCSVReporter creates a reporter writing under dir.
func NewCSVReporter(dir string) *CSVReporter {
	return &CSVReporter{dir: dir, logger: observability.GetLogger().Named("csv_reporter")}
}

// Write renders every CSV table of the report.
func (r *CSVReporter) Write(report *schemas.StudyReport) error {
	if err := os.MkdirAll(filepath.Join(r.dir, TablesDir), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := map[string][][]string{
		FindingsCSV:    findingRows(report.Runs),
		AggregatedCSV:  aggregatedRows(report.Scored, false),
		ScoresCSV:      aggregatedRows(report.Scored, true),
		StatisticsCSV:  statisticsRows(report.Statistics),
		ComparisonsCSV: comparisonRows(report.Comparisons),
	}
	if len(report.Incomplete) > 0 {
		files[IncompleteCSV] = incompleteRows(report.Incomplete)
	}
	for _, t := range report.Tables {
		files[filepath.Join(TablesDir, t.Name+".csv")] = tableRows(t)
	}

	for name, rows := range files {
		if err := writeCSV(filepath.Join(r.dir, name), rows); err != nil {
			return err
		}
	}
	r.logger.Info("Wrote CSV tables", zap.String("dir", r.dir), zap.Int("files", len(files)))
	return nil
}

// Close is a no-op; every file is closed as it is written.
func (r *CSVReporter) Close() error { return nil }

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func findingRows(runs []schemas.Run) [][]string {
	rows := [][]string{findingColumns}
	for _, run := range runs {
		for _, f := range run.Findings {
			cvssScore := ""
			if f.CVSSScore != nil {
				cvssScore = formatFloat(*f.CVSSScore, 2)
			}
			rows = append(rows, []string{
				run.Key.TaskID, run.Key.Domain, run.Key.Language, run.Key.PromptType,
				strconv.Itoa(run.RunNumber), run.Model,
				f.Scanner, f.RuleID, string(f.Severity), f.CWE, cvssScore,
				f.FilePath, strconv.Itoa(f.LineNumber), strconv.Itoa(f.EndLine), f.Message,
			})
		}
	}
	return rows
}

func aggregatedRows(records []schemas.ScoredRecord, withScore bool) [][]string {
	header := aggregatedColumns
	if withScore {
		header = scoredColumns
	}
	rows := [][]string{header}
	for _, r := range records {
		row := []string{
			r.TaskID, r.Domain, r.Language, r.PromptType,
			strconv.Itoa(r.TotalVulnerabilities),
			strconv.Itoa(r.ErrorCount),
			strconv.Itoa(r.WarningCount),
			strconv.Itoa(r.InfoCount),
			strconv.Itoa(r.WeightedScore),
			formatFloat(r.TotalCVSSScore, 2),
			formatFloat(r.MaxCVSSScore, 2),
			formatFloat(r.AvgCVSSScore, 2),
		}
		if withScore {
			row = append(row, formatFloat(r.SecurityScore, 4))
		}
		row = append(row,
			strconv.Itoa(r.UniqueRules),
			strconv.Itoa(r.CWECount),
			strconv.Itoa(r.RunsAnalyzed),
		)
		rows = append(rows, row)
	}
	return rows
}

func summaryFields(g schemas.GroupSummary) []string {
	return []string{
		strconv.Itoa(g.Count),
		strconv.Itoa(g.PromptsWithVuln),
		formatFloat(g.Prevalence, 4),
		strconv.Itoa(g.TotalVulnerabilities),
		strconv.Itoa(g.ErrorCount),
		strconv.Itoa(g.WarningCount),
		strconv.Itoa(g.InfoCount),
		strconv.Itoa(g.WeightedScore),
		formatFloat(g.AvgWeightedScore, 4),
		formatFloat(g.AvgSecurityScore, 4),
		formatFloat(g.MinSecurityScore, 4),
		formatFloat(g.MaxSecurityScore, 4),
	}
}

func tableRows(t schemas.Table) [][]string {
	header := make([]string, 0, len(t.Dimensions)+len(summaryColumns))
	for _, d := range t.Dimensions {
		header = append(header, string(d))
	}
	header = append(header, summaryColumns...)

	rows := [][]string{header}
	for _, g := range t.Rows {
		row := append([]string{}, g.Values...)
		rows = append(rows, append(row, summaryFields(g)...))
	}
	return rows
}

func statisticsRows(stats []schemas.CategoryStat) [][]string {
	rows := [][]string{statisticsColumns}
	for _, s := range stats {
		g := s.Summary
		rows = append(rows, []string{
			s.Category, s.Value,
			strconv.Itoa(g.Count),
			strconv.Itoa(g.PromptsWithVuln),
			formatFloat(g.Prevalence, 4),
			strconv.Itoa(g.TotalVulnerabilities),
			strconv.Itoa(g.ErrorCount),
			strconv.Itoa(g.WarningCount),
			strconv.Itoa(g.InfoCount),
			formatFloat(g.AvgWeightedScore, 4),
			formatFloat(g.AvgSecurityScore, 4),
			formatFloat(g.MinSecurityScore, 4),
			formatFloat(g.MaxSecurityScore, 4),
		})
	}
	return rows
}

// comparisonRows names each comparison's partition as "+"-joined dimensions
// and values; unpartitioned comparisons read "overall" and "all".
func comparisonRows(cmps []schemas.Comparison) [][]string {
	rows := [][]string{append([]string{"partition", "partition_value"}, comparisonTail...)}
	for _, c := range cmps {
		partition, value := "overall", "all"
		if len(c.Dimensions) > 0 {
			partition, value = joinDims(c.Dimensions), strings.Join(c.Values, "+")
		}
		pct := ""
		if c.ImprovementPct != nil {
			pct = formatFloat(*c.ImprovementPct, 2)
		}
		rows = append(rows, []string{
			partition, value,
			c.Baseline, c.Treatment,
			formatFloat(c.BaselineAvg, 4),
			formatFloat(c.TreatmentAvg, 4),
			formatFloat(c.Improvement, 4),
			pct,
		})
	}
	return rows
}

func incompleteRows(groups []schemas.IncompleteGroup) [][]string {
	rows := [][]string{incompleteColumns}
	for _, g := range groups {
		rows = append(rows, []string{g.TaskID, g.Domain, g.Language, g.PromptType, strconv.Itoa(g.RunsUnparseable)})
	}
	return rows
}

func joinDims(dims []schemas.Dimension) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = string(d)
	}
	return strings.Join(parts, "+")
}

// formatFloat rounds to places and drops trailing zeros.
func formatFloat(v float64, places int) string {
	p := math.Pow(10, float64(places))
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
}
