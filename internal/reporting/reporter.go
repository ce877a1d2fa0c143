// -- internal/reporting/reporter.go --
package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// Output formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatSARIF    = "sarif"
)

// Output file names, relative to the output directory.
const (
	FindingsCSV    = "vuln_results.csv"
	AggregatedCSV  = "aggregated_results.csv"
	ScoresCSV      = "security_scores.csv"
	StatisticsCSV  = "STATISTICS.csv"
	ComparisonsCSV = "comparisons.csv"
	IncompleteCSV  = "incomplete_groups.csv"
	SummaryMD      = "SUMMARY.md"
	TablesJSON     = "tables_data.json"
	ReportJSON     = "report.json"
	FindingsSARIF  = "findings.sarif"
	TablesDir      = "tables"
)

// ErrUnsupportedFormat is returned by New for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Reporter defines the interface for rendering a study report.
type Reporter interface {
	// Write renders the report.
	Write(report *schemas.StudyReport) error
	// Close finalizes the output and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

func isStdout(outputDir string) bool {
	return outputDir == "" || outputDir == "stdout"
}

// New creates a reporter for format. Directory based formats (csv,
// markdown) write several files under outputDir. Single document formats
// (json, sarif) write to stdout when outputDir is empty or "stdout".
func New(format, outputDir, toolVersion string) (Reporter, error) {
	switch format {
	case FormatCSV:
		if isStdout(outputDir) {
			return nil, fmt.Errorf("%s output requires a directory", format)
		}
		return NewCSVReporter(outputDir), nil
	case FormatMarkdown:
		if isStdout(outputDir) {
			return nil, fmt.Errorf("%s output requires a directory", format)
		}
		return NewMarkdownReporter(outputDir), nil
	case FormatJSON:
		if isStdout(outputDir) {
			return NewJSONReporter(&nopWriteCloser{os.Stdout}, ""), nil
		}
		return NewJSONReporter(nil, outputDir), nil
	case FormatSARIF:
		writer, err := openOutput(outputDir, FindingsSARIF)
		if err != nil {
			return nil, err
		}
		// NewSARIFReporter takes ownership of the writer.
		return NewSARIFReporter(writer, toolVersion), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// openOutput returns stdout or a created file under outputDir.
func openOutput(outputDir, name string) (io.WriteCloser, error) {
	if isStdout(outputDir) {
		// Wrap Stdout so Close() is a no-op.
		return &nopWriteCloser{os.Stdout}, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return f, nil
}

// WriteAll renders report in every format. All reporters are closed even
// when one fails; their errors are joined.
func WriteAll(report *schemas.StudyReport, formats []string, outputDir, toolVersion string) error {
	var errs []error
	for _, format := range formats {
		r, err := New(format, outputDir, toolVersion)
		if err != nil {
			return err
		}
		if err := r.Write(report); err != nil {
			errs = append(errs, fmt.Errorf("%s reporter: %w", format, err))
		}
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s reporter: %w", format, err))
		}
	}
	return errors.Join(errs...)
}

// WriteTables renders only the derived tables of report: the grouped
// tables, STATISTICS.csv and comparisons.csv in CSV, the per-table Markdown
// files, and tables_data.json. Run level outputs are left untouched.
func WriteTables(report *schemas.StudyReport, formats []string, outputDir string) error {
	if isStdout(outputDir) {
		return fmt.Errorf("table export requires a directory")
	}
	if err := os.MkdirAll(filepath.Join(outputDir, TablesDir), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, format := range formats {
		switch format {
		case FormatCSV:
			if err := writeCSV(filepath.Join(outputDir, StatisticsCSV), statisticsRows(report.Statistics)); err != nil {
				return err
			}
			if err := writeCSV(filepath.Join(outputDir, ComparisonsCSV), comparisonRows(report.Comparisons)); err != nil {
				return err
			}
			for _, t := range report.Tables {
				if err := writeCSV(filepath.Join(outputDir, TablesDir, t.Name+".csv"), tableRows(t)); err != nil {
					return err
				}
			}
		case FormatMarkdown:
			for _, t := range report.Tables {
				if err := writeFile(filepath.Join(outputDir, TablesDir, t.Name+".md"), RenderTable(t)); err != nil {
					return err
				}
			}
		case FormatJSON:
			var buf bytes.Buffer
			if err := EncodeNestedTable(&buf, nestedTable(report.Tables)); err != nil {
				return err
			}
			if err := writeFile(filepath.Join(outputDir, TablesJSON), buf.Bytes()); err != nil {
				return err
			}
		case FormatSARIF:
			// Findings are not recoverable from scored records.
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
	}
	return nil
}
