package reporting_test

import (
	"bytes"
	"errors"
	"time"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/tables"
)

const testToolVersion = "v1.0.0-test"

// MockWriteCloser allows capturing output and simulating I/O errors.
type MockWriteCloser struct {
	Buffer    *bytes.Buffer
	FailWrite bool
	FailClose bool
	Closed    bool
}

func (m *MockWriteCloser) Write(p []byte) (n int, err error) {
	if m.FailWrite {
		return 0, errors.New("simulated write error")
	}
	return m.Buffer.Write(p)
}

func (m *MockWriteCloser) Close() error {
	m.Closed = true
	if m.FailClose {
		return errors.New("simulated close error")
	}
	return nil
}

func cvss(v float64) *float64 { return &v }

func finding(scanner, rule, file string, line int, sev schemas.Severity, cwe string) schemas.Finding {
	f := schemas.Finding{
		Scanner: scanner, RuleID: rule, Severity: sev, CWE: cwe,
		Message: rule + " triggered", FilePath: file, LineNumber: line, EndLine: line,
	}
	if cwe == "CWE-79" {
		f.CVSSScore = cvss(6.1)
	}
	return f
}

func scored(key schemas.GroupKey, score float64, findings ...schemas.Finding) schemas.ScoredRecord {
	rec := schemas.AggregatedRecord{GroupKey: key, Findings: findings, RunsAnalyzed: 3}
	rules := map[string]bool{}
	cwes := map[string]bool{}
	for _, f := range findings {
		rec.TotalVulnerabilities++
		rec.WeightedScore += f.Severity.Weight()
		switch f.Severity {
		case schemas.SeverityError:
			rec.ErrorCount++
		case schemas.SeverityWarning:
			rec.WarningCount++
		case schemas.SeverityInfo:
			rec.InfoCount++
		}
		if f.CVSSScore != nil {
			rec.TotalCVSSScore += *f.CVSSScore
			rec.MaxCVSSScore = *f.CVSSScore
			rec.AvgCVSSScore = *f.CVSSScore
		}
		rules[f.RuleID] = true
		if f.HasCWE() {
			cwes[f.CWE] = true
		}
	}
	rec.UniqueRules = len(rules)
	rec.CWECount = len(cwes)
	return schemas.ScoredRecord{AggregatedRecord: rec, SecurityScore: score}
}

var (
	aimlNaive = schemas.GroupKey{TaskID: "AIML_001", Domain: "aiml_ds", Language: "python", PromptType: "naive"}
	aimlAware = schemas.GroupKey{TaskID: "AIML_001", Domain: "aiml_ds", Language: "python", PromptType: "security_aware"}
	webNaive  = schemas.GroupKey{TaskID: "WEB_001", Domain: "web_api", Language: "javascript", PromptType: "naive"}
	webAware  = schemas.GroupKey{TaskID: "WEB_001", Domain: "web_api", Language: "javascript", PromptType: "security_aware"}
)

// sampleReport builds a small two-task study with one incomplete prompt.
func sampleReport() *schemas.StudyReport {
	records := []schemas.ScoredRecord{
		scored(aimlNaive, 0.5,
			finding("bandit", "B104", "app.py", 10, schemas.SeverityWarning, "CWE-200"),
			finding("bandit", "B301", "model.py", 5, schemas.SeverityError, "CWE-502")),
		scored(aimlAware, 0.8,
			finding("bandit", "B104", "app.py", 12, schemas.SeverityWarning, "CWE-200")),
		scored(webNaive, 0.7,
			finding("semgrep", "javascript.express.security.xss", "server.js", 7, schemas.SeverityError, "CWE-79")),
		scored(webAware, 1.0),
	}
	res := tables.Build(records, nil, 3)

	var runs []schemas.Run
	for _, r := range records {
		runs = append(runs, schemas.Run{Key: r.GroupKey, Model: "model-a", RunNumber: 1, Status: schemas.RunScanned, Findings: r.Findings})
	}

	return &schemas.StudyReport{
		AnalysisID:          "3f0a2c1e-0000-4000-8000-000000000001",
		GeneratedAt:         time.Date(2025, 10, 2, 7, 0, 0, 0, time.UTC),
		Basis:               "weighted",
		NormalizationFactor: 10,
		Runs:                runs,
		Scored:              records,
		Incomplete: []schemas.IncompleteGroup{{
			GroupKey:        schemas.GroupKey{TaskID: "FS_003", Domain: "file_system", Language: "cpp", PromptType: "naive"},
			RunsUnparseable: 3,
		}},
		Overall:     res.Overall,
		Statistics:  res.Statistics,
		Tables:      res.Tables,
		Comparisons: res.Comparisons,
		TopCWEs:     res.TopCWEs,
		Best:        res.Best,
		Worst:       res.Worst,
	}
}
