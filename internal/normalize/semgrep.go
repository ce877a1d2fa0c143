package normalize

import (
	"bytes"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

type semgrepReport struct {
	Results *[]semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string          `json:"check_id"`
	Path    string          `json:"path"`
	Start   semgrepPosition `json:"start"`
	End     semgrepPosition `json:"end"`
	Extra   semgrepExtra    `json:"extra"`

	// Some exports flatten message and metadata onto the result itself.
	Message  string          `json:"message"`
	Metadata semgrepMetadata `json:"metadata"`
}

type semgrepPosition struct {
	Line int `json:"line"`
}

type semgrepExtra struct {
	Severity string          `json:"severity"`
	Message  string          `json:"message"`
	Metadata semgrepMetadata `json:"metadata"`
}

type semgrepMetadata struct {
	// CWE is either a list of strings or a single string.
	CWE json.RawMessage `json:"cwe"`
}

// firstCWE returns the first entry of a list, or the string itself.
func (m semgrepMetadata) firstCWE() string {
	raw := bytes.TrimSpace(m.CWE)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '[' {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// Semgrep normalizes TypeScript, JavaScript and Java findings.
type Semgrep struct {
	opts Options
}

// NewSemgrep creates the semgrep adapter.
func NewSemgrep(opts Options) *Semgrep {
	return &Semgrep{opts: opts}
}

func (s *Semgrep) Scanner() string { return ScannerSemgrep }

// Normalize accepts both the `semgrep --json` object and a bare results array.
func (s *Semgrep) Normalize(raw []byte, _ string) ([]schemas.Finding, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var results []semgrepResult
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, parseError(ScannerSemgrep, "invalid JSON array", err)
		}
	case '{':
		var report semgrepReport
		if err := json.Unmarshal(trimmed, &report); err != nil {
			return nil, parseError(ScannerSemgrep, "invalid JSON", err)
		}
		if report.Results == nil {
			return nil, parseError(ScannerSemgrep, "missing results array", nil)
		}
		results = *report.Results
	default:
		return nil, parseError(ScannerSemgrep, "payload is neither an object nor an array", nil)
	}

	findings := make([]schemas.Finding, 0, len(results))
	for _, r := range results {
		ruleID := r.CheckID
		if ruleID == "" {
			ruleID = "unknown"
		}

		reported := r.Extra.Metadata.firstCWE()
		if reported == "" {
			reported = r.Metadata.firstCWE()
		}
		cwe := ResolveCWE(ScannerSemgrep, ruleID, reported)

		message := r.Extra.Message
		if message == "" {
			message = r.Message
		}

		findings = append(findings, schemas.Finding{
			Scanner:    ScannerSemgrep,
			RuleID:     ruleID,
			Severity:   semgrepSeverity(r.Extra.Severity),
			Message:    message,
			CWE:        cwe,
			CVSSScore:  cvssFor(s.opts.CWE, cwe),
			FilePath:   relativePath(s.opts.CodeRoot, r.Path),
			LineNumber: r.Start.Line,
			EndLine:    r.End.Line,
		})
	}
	return findings, nil
}

func semgrepSeverity(raw string) schemas.Severity {
	switch s := schemas.Severity(strings.ToUpper(strings.TrimSpace(raw))); s {
	case schemas.SeverityError, schemas.SeverityWarning:
		return s
	default:
		return schemas.SeverityInfo
	}
}
