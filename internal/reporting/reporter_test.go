// internal/reporting/reporter_test.go
package reporting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aadvait-Hirde/LLMVulnBench/internal/reporting"
)

func TestNew_DirectoryFormats(t *testing.T) {
	for _, format := range []string{reporting.FormatCSV, reporting.FormatMarkdown} {
		t.Run(format, func(t *testing.T) {
			r, err := reporting.New(format, t.TempDir(), testToolVersion)
			require.NoError(t, err)
			assert.NotNil(t, r)
			assert.NoError(t, r.Close())

			// These formats produce several files and cannot stream.
			_, err = reporting.New(format, "stdout", testToolVersion)
			assert.ErrorContains(t, err, "requires a directory")
			_, err = reporting.New(format, "", testToolVersion)
			assert.Error(t, err)
		})
	}
}

func TestNew_Stdout(t *testing.T) {
	for _, format := range []string{reporting.FormatJSON, reporting.FormatSARIF} {
		for _, out := range []string{"", "stdout"} {
			r, err := reporting.New(format, out, testToolVersion)
			require.NoError(t, err, "format %s, output %q", format, out)
			assert.NotNil(t, r)
		}
	}
}

func TestNew_SARIF_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	r, err := reporting.New(reporting.FormatSARIF, dir, testToolVersion)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, reporting.FindingsSARIF), "output file is created by New")
	assert.NoError(t, r.Close())
}

func TestNew_UnsupportedFormat(t *testing.T) {
	r, err := reporting.New("xlsx", t.TempDir(), testToolVersion)
	assert.ErrorIs(t, err, reporting.ErrUnsupportedFormat)
	assert.ErrorContains(t, err, "unsupported output format: xlsx")
	assert.Nil(t, r)
}

func TestNew_FileCreationFailure(t *testing.T) {
	// A regular file where the output directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := reporting.New(reporting.FormatSARIF, blocker, testToolVersion)
	assert.ErrorContains(t, err, "failed to create output directory")
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	formats := []string{reporting.FormatCSV, reporting.FormatMarkdown, reporting.FormatJSON, reporting.FormatSARIF}

	require.NoError(t, reporting.WriteAll(sampleReport(), formats, dir, testToolVersion))

	for _, name := range []string{
		reporting.FindingsCSV,
		reporting.AggregatedCSV,
		reporting.ScoresCSV,
		reporting.StatisticsCSV,
		reporting.ComparisonsCSV,
		reporting.IncompleteCSV,
		reporting.SummaryMD,
		reporting.TablesJSON,
		reporting.ReportJSON,
		reporting.FindingsSARIF,
		filepath.Join(reporting.TablesDir, "domain_prompttype.csv"),
		filepath.Join(reporting.TablesDir, "language_prompttype.md"),
		filepath.Join(reporting.TablesDir, "domain_language_prompttype.csv"),
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestWriteAll_StopsOnUnknownFormat(t *testing.T) {
	err := reporting.WriteAll(sampleReport(), []string{"html"}, t.TempDir(), testToolVersion)
	assert.ErrorIs(t, err, reporting.ErrUnsupportedFormat)
}

func TestWriteTables(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	require.NoError(t, reporting.WriteTables(report, []string{reporting.FormatCSV, reporting.FormatMarkdown, reporting.FormatJSON, reporting.FormatSARIF}, dir))

	for _, name := range []string{
		reporting.StatisticsCSV,
		reporting.ComparisonsCSV,
		reporting.TablesJSON,
		filepath.Join(reporting.TablesDir, "domain_prompttype.csv"),
		filepath.Join(reporting.TablesDir, "domain_prompttype.md"),
		filepath.Join(reporting.TablesDir, "domain_language_prompttype.csv"),
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	// Run level outputs are not produced.
	for _, name := range []string{reporting.FindingsCSV, reporting.ScoresCSV, reporting.SummaryMD, reporting.FindingsSARIF} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}

	assert.ErrorIs(t, reporting.WriteTables(report, []string{"xml"}, dir), reporting.ErrUnsupportedFormat)
	assert.ErrorContains(t, reporting.WriteTables(report, nil, "stdout"), "requires a directory")
}
