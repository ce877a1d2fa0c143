package reporting

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
)

// indented is the encoder for files meant to be read by people.
var indented = json.Config{
	IndentionStep:          2,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// JSONReporter writes the machine readable study outputs. With a writer it
// streams the full report there; otherwise it writes report.json and the
// nested tables_data.json under dir.
type JSONReporter struct {
	writer io.WriteCloser
	dir    string
	logger *zap.Logger
}

// NewJSONReporter creates a JSON reporter. writer takes precedence over dir.
func NewJSONReporter(writer io.WriteCloser, dir string) *JSONReporter {
	return &JSONReporter{writer: writer, dir: dir, logger: observability.GetLogger().Named("json_reporter")}
}

// Write renders the report.
func (r *JSONReporter) Write(report *schemas.StudyReport) error {
	data, err := indented.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if r.writer != nil {
		if _, err := r.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeFile(filepath.Join(r.dir, ReportJSON), data); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodeNestedTable(&buf, nestedTable(report.Tables)); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(r.dir, TablesJSON), buf.Bytes()); err != nil {
		return err
	}
	r.logger.Info("Wrote JSON report", zap.String("dir", r.dir))
	return nil
}

// Close closes the writer, if any.
func (r *JSONReporter) Close() error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

// nestedTable returns the first table grouped on domain, language and prompt
// type, in that order.
func nestedTable(tables []schemas.Table) *schemas.Table {
	want := []schemas.Dimension{schemas.DimensionDomain, schemas.DimensionLanguage, schemas.DimensionPromptType}
	for i := range tables {
		t := &tables[i]
		if len(t.Dimensions) != len(want) {
			continue
		}
		match := true
		for j, d := range want {
			match = match && t.Dimensions[j] == d
		}
		if match {
			return t
		}
	}
	return nil
}

// EncodeNestedTable writes t as nested JSON objects, one level per
// dimension, with the group metrics at the leaves. Object keys follow the
// table's row order. A nil table encodes as {}.
func EncodeNestedTable(w io.Writer, t *schemas.Table) error {
	stream := json.NewStream(indented, w, 4096)
	stream.WriteObjectStart()

	if t != nil && len(t.Dimensions) > 0 {
		var open []string
		for i, row := range t.Rows {
			// Close the levels this row no longer shares with the previous one.
			common := 0
			for common < len(open) && common < len(row.Values)-1 && open[common] == row.Values[common] {
				common++
			}
			for len(open) > common {
				stream.WriteObjectEnd()
				open = open[:len(open)-1]
			}
			if i > 0 {
				stream.WriteMore()
			}
			for _, v := range row.Values[common : len(row.Values)-1] {
				stream.WriteObjectField(v)
				stream.WriteObjectStart()
				open = append(open, v)
			}
			stream.WriteObjectField(row.Values[len(row.Values)-1])
			stream.WriteVal(row)
		}
		for range open {
			stream.WriteObjectEnd()
		}
	}

	stream.WriteObjectEnd()
	stream.WriteRaw("\n")
	if stream.Error != nil {
		return fmt.Errorf("failed to encode tables: %w", stream.Error)
	}
	return stream.Flush()
}
