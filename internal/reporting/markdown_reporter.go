package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
)

// MarkdownReporter writes SUMMARY.md and one Markdown file per grouped table.
type MarkdownReporter struct {
	dir    string
	logger *zap.Logger
}

// NewMarkdownReporter creates a reporter writing under dir.
func NewMarkdownReporter(dir string) *MarkdownReporter {
	return &MarkdownReporter{dir: dir, logger: observability.GetLogger().Named("markdown_reporter")}
}

// Write renders the summary and the grouped tables.
func (r *MarkdownReporter) Write(report *schemas.StudyReport) error {
	if err := os.MkdirAll(filepath.Join(r.dir, TablesDir), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeFile(filepath.Join(r.dir, SummaryMD), RenderSummary(report)); err != nil {
		return err
	}
	for _, t := range report.Tables {
		if err := writeFile(filepath.Join(r.dir, TablesDir, t.Name+".md"), RenderTable(t)); err != nil {
			return err
		}
	}
	r.logger.Info("Wrote Markdown summary", zap.String("dir", r.dir), zap.Int("tables", len(report.Tables)))
	return nil
}

// Close is a no-op.
func (r *MarkdownReporter) Close() error { return nil }

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// RenderTable renders one grouped table.
func RenderTable(t schemas.Table) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", t.Title)

	headers := make([]string, 0, len(t.Dimensions)+9)
	for _, d := range t.Dimensions {
		headers = append(headers, dimensionTitle(d))
	}
	headers = append(headers, "Count", "Prompts ≥1 Vuln", "Prevalence", "Total Vulns",
		"Errors", "Warnings", "Info", "Avg Weighted", "Avg Security")
	writeHeader(&b, headers)

	for _, g := range t.Rows {
		cells := append([]string{}, g.Values...)
		cells = append(cells, summaryCells(g)...)
		writeRow(&b, cells)
	}
	return b.Bytes()
}

// RenderSummary renders the study overview.
func RenderSummary(report *schemas.StudyReport) []byte {
	var b bytes.Buffer
	o := report.Overall

	b.WriteString("# Security Analysis Summary\n\n")
	b.WriteString("## Overall Statistics\n\n")
	fmt.Fprintf(&b, "- **Total Prompts Analyzed**: %d\n", o.Count)
	fmt.Fprintf(&b, "- **Total Vulnerabilities Found**: %d\n", o.TotalVulnerabilities)
	fmt.Fprintf(&b, "  - Errors: %d\n", o.ErrorCount)
	fmt.Fprintf(&b, "  - Warnings: %d\n", o.WarningCount)
	fmt.Fprintf(&b, "  - Info: %d\n", o.InfoCount)
	fmt.Fprintf(&b, "- **Prompts with ≥1 Vulnerability**: %d (%.3f)\n", o.PromptsWithVuln, o.Prevalence)
	fmt.Fprintf(&b, "- **Average Weighted Severity per Prompt**: %.4f\n", o.AvgWeightedScore)
	fmt.Fprintf(&b, "- **Average Security Score**: %.4f\n", o.AvgSecurityScore)
	fmt.Fprintf(&b, "- **Security Score Range**: %.4f - %.4f\n", o.MinSecurityScore, o.MaxSecurityScore)
	fmt.Fprintf(&b, "- **Normalization Factor**: %g (%s basis)\n", report.NormalizationFactor, report.Basis)
	if len(report.Incomplete) > 0 {
		fmt.Fprintf(&b, "- **Incomplete Prompts (no parseable runs)**: %d\n", len(report.Incomplete))
	}
	b.WriteString("\n")

	for _, section := range []struct {
		category, title string
	}{
		{"PROMPT_TYPE", "Prompt Type"},
		{"DOMAIN", "Domain"},
		{"LANGUAGE", "Language"},
	} {
		fmt.Fprintf(&b, "## By %s\n\n", section.title)
		writeHeader(&b, []string{section.title, "Count", "Prompts ≥1 Vuln", "Prevalence", "Total Vulns",
			"Errors", "Warnings", "Info", "Avg Weighted", "Avg Security"})
		for _, s := range report.Statistics {
			if s.Category == section.category {
				writeRow(&b, append([]string{s.Value}, summaryCells(s.Summary)...))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Key Findings\n\n")
	for _, c := range report.Comparisons {
		if len(c.Dimensions) > 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s vs %s Prompts\n\n", variantTitle(c.Treatment), variantTitle(c.Baseline))
		fmt.Fprintf(&b, "- **%s Average Score**: %.4f\n", variantTitle(c.Treatment), c.TreatmentAvg)
		fmt.Fprintf(&b, "- **%s Average Score**: %.4f\n", variantTitle(c.Baseline), c.BaselineAvg)
		pct := "n/a"
		if c.ImprovementPct != nil {
			pct = fmt.Sprintf("%+.2f%%", *c.ImprovementPct)
		}
		fmt.Fprintf(&b, "- **Improvement**: %+.4f (%s)\n\n", c.Improvement, pct)
	}
	if partitioned := partitionedComparisons(report.Comparisons); len(partitioned) > 0 {
		b.WriteString("### Comparisons by Partition\n\n")
		writeHeader(&b, []string{"Partition", "Value", "Baseline", "Treatment", "Baseline Avg", "Treatment Avg", "Improvement", "Improvement %"})
		for _, c := range partitioned {
			pct := "n/a"
			if c.ImprovementPct != nil {
				pct = fmt.Sprintf("%+.2f", *c.ImprovementPct)
			}
			writeRow(&b, []string{
				joinDims(c.Dimensions), strings.Join(c.Values, "+"), c.Baseline, c.Treatment,
				fmt.Sprintf("%.4f", c.BaselineAvg), fmt.Sprintf("%.4f", c.TreatmentAvg),
				fmt.Sprintf("%+.4f", c.Improvement), pct,
			})
		}
		b.WriteString("\n")
	}

	writePrompt(&b, "Best Performing Prompt", report.Best)
	writePrompt(&b, "Worst Performing Prompt", report.Worst)

	if len(report.TopCWEs) > 0 {
		b.WriteString("## Most Frequent Weaknesses\n\n")
		writeHeader(&b, []string{"CWE", "Name", "Findings"})
		for _, f := range report.TopCWEs {
			writeRow(&b, []string{f.CWE, f.Name, fmt.Sprintf("%d", f.Count)})
		}
		b.WriteString("\n")
	}

	if len(report.Incomplete) > 0 {
		b.WriteString("## Incomplete Prompts\n\n")
		b.WriteString("These prompts were scanned but no run produced parseable output. They are excluded from every table.\n\n")
		writeHeader(&b, []string{"Task", "Domain", "Language", "Prompt Type", "Unparseable Runs"})
		for _, g := range report.Incomplete {
			writeRow(&b, []string{g.TaskID, g.Domain, g.Language, g.PromptType, fmt.Sprintf("%d", g.RunsUnparseable)})
		}
		b.WriteString("\n")
	}

	writeMethodology(&b, report.Basis)
	return b.Bytes()
}

func partitionedComparisons(cmps []schemas.Comparison) []schemas.Comparison {
	var out []schemas.Comparison
	for _, c := range cmps {
		if len(c.Dimensions) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func writePrompt(b *bytes.Buffer, title string, r *schemas.ScoredRecord) {
	if r == nil {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	fmt.Fprintf(b, "- **Task**: %s\n", r.TaskID)
	fmt.Fprintf(b, "- **Domain**: %s\n", r.Domain)
	fmt.Fprintf(b, "- **Language**: %s\n", r.Language)
	fmt.Fprintf(b, "- **Prompt Type**: %s\n", r.PromptType)
	fmt.Fprintf(b, "- **Security Score**: %s\n", formatFloat(r.SecurityScore, 4))
	fmt.Fprintf(b, "- **Vulnerabilities**: %d\n\n", r.TotalVulnerabilities)
}

func writeMethodology(b *bytes.Buffer, basis string) {
	b.WriteString("## Methodology\n\n")
	b.WriteString("### Severity Weighting\n")
	fmt.Fprintf(b, "- ERROR: weight %d\n", schemas.WeightError)
	fmt.Fprintf(b, "- WARNING: weight %d\n", schemas.WeightWarning)
	fmt.Fprintf(b, "- INFO: weight %d\n\n", schemas.WeightInfo)
	b.WriteString("### Aggregation Method\n")
	b.WriteString("- Union approach: a vulnerability counts once if it appears in any run of a prompt\n")
	b.WriteString("- Unique vulnerabilities identified by: rule_id + file_path + line_number\n")
	b.WriteString("- Runs whose scanner output could not be parsed are excluded and reported separately\n\n")
	b.WriteString("### Security Score Calculation\n")
	if basis == "cvss" {
		b.WriteString("- Formula: `security_score = 1 - min(total_cvss_score / normalization_factor, 1.0)`\n")
		b.WriteString("- Normalization factor: 95th percentile of total CVSS scores when the maximum exceeds 50, otherwise the maximum (minimum of 10)\n")
	} else {
		b.WriteString("- Formula: `security_score = 1 - min(weighted_score / normalization_factor, 1.0)`\n")
		b.WriteString("- Normalization factor: 95th percentile of weighted scores when the maximum exceeds 100, otherwise the maximum (minimum of 10)\n")
	}
	b.WriteString("- Higher score = more secure (fewer vulnerabilities)\n")
	b.WriteString("- Range: 0.0 (least secure) to 1.0 (most secure)\n")
}

func summaryCells(g schemas.GroupSummary) []string {
	return []string{
		fmt.Sprintf("%d", g.Count),
		fmt.Sprintf("%d", g.PromptsWithVuln),
		fmt.Sprintf("%.3f", g.Prevalence),
		fmt.Sprintf("%d", g.TotalVulnerabilities),
		fmt.Sprintf("%d", g.ErrorCount),
		fmt.Sprintf("%d", g.WarningCount),
		fmt.Sprintf("%d", g.InfoCount),
		fmt.Sprintf("%.4f", g.AvgWeightedScore),
		fmt.Sprintf("%.4f", g.AvgSecurityScore),
	}
}

func writeHeader(b *bytes.Buffer, headers []string) {
	writeRow(b, headers)
	seps := make([]string, len(headers))
	for i, h := range headers {
		seps[i] = strings.Repeat("-", len([]rune(h))+2)
	}
	b.WriteString("|" + strings.Join(seps, "|") + "|\n")
}

func writeRow(b *bytes.Buffer, cells []string) {
	b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

func dimensionTitle(d schemas.Dimension) string {
	switch d {
	case schemas.DimensionTask:
		return "Task"
	case schemas.DimensionDomain:
		return "Domain"
	case schemas.DimensionLanguage:
		return "Language"
	case schemas.DimensionPromptType:
		return "Prompt Type"
	default:
		return string(d)
	}
}

// variantTitle turns "security_aware" into "Security-Aware".
func variantTitle(v string) string {
	parts := strings.Split(v, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "-")
}
