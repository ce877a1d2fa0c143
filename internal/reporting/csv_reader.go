package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// ReadScoresFile loads scored records from a security_scores.csv file.
func ReadScoresFile(path string) ([]schemas.ScoredRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadScores(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadScores parses security_scores.csv content. Columns are located by
// header name; the CVSS columns are optional since older exports lack them.
func ReadScores(r io.Reader) ([]schemas.ScoredRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty scores file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	required := []string{
		"task_id", "domain", "language", "prompt_type",
		"total_vulnerabilities", "error_count", "warning_count", "info_count",
		"weighted_score", "security_score",
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []schemas.ScoredRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		p := rowParser{row: row, cols: cols}
		rec := schemas.ScoredRecord{
			AggregatedRecord: schemas.AggregatedRecord{
				GroupKey: schemas.GroupKey{
					TaskID:     p.str("task_id"),
					Domain:     p.str("domain"),
					Language:   p.str("language"),
					PromptType: p.str("prompt_type"),
				},
				TotalVulnerabilities: p.integer("total_vulnerabilities"),
				ErrorCount:           p.integer("error_count"),
				WarningCount:         p.integer("warning_count"),
				InfoCount:            p.integer("info_count"),
				WeightedScore:        p.integer("weighted_score"),
				TotalCVSSScore:       p.float("total_cvss_score"),
				MaxCVSSScore:         p.float("max_cvss_score"),
				AvgCVSSScore:         p.float("avg_cvss_score"),
				UniqueRules:          p.integer("unique_rules"),
				CWECount:             p.integer("cwe_count"),
				RunsAnalyzed:         p.integer("runs_analyzed"),
			},
			SecurityScore: p.float("security_score"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// rowParser converts named cells, keeping the first conversion error.
type rowParser struct {
	row  []string
	cols map[string]int
	err  error
}

func (p *rowParser) str(name string) string {
	i, ok := p.cols[name]
	if !ok || i >= len(p.row) {
		return ""
	}
	return p.row[i]
}

// integer also accepts whole floats such as "19.0".
func (p *rowParser) integer(name string) int {
	v := p.float(name)
	if v != float64(int(v)) && p.err == nil {
		p.err = fmt.Errorf("column %s: %v is not a whole number", name, v)
	}
	return int(v)
}

func (p *rowParser) float(name string) float64 {
	s := p.str(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}
