package normalize

import (
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// banditReport is the subset of `bandit -f json` output the study uses.
type banditReport struct {
	Results *[]banditResult `json:"results"`
}

type banditResult struct {
	Filename      string     `json:"filename"`
	TestID        string     `json:"test_id"`
	IssueSeverity string     `json:"issue_severity"`
	IssueText     string     `json:"issue_text"`
	LineNumber    int        `json:"line_number"`
	IssueCWE      *banditCWE `json:"issue_cwe"`
}

type banditCWE struct {
	ID int `json:"id"`
}

// Bandit normalizes Python findings from bandit.
type Bandit struct {
	opts Options
}

// NewBandit creates the bandit adapter.
func NewBandit(opts Options) *Bandit {
	return &Bandit{opts: opts}
}

func (b *Bandit) Scanner() string { return ScannerBandit }

// Normalize maps bandit's HIGH/MEDIUM/LOW scale onto ERROR/WARNING/INFO.
// An empty payload means bandit found no Python files and yields no findings.
func (b *Bandit) Normalize(raw []byte, _ string) ([]schemas.Finding, error) {
	if isBlank(raw) {
		return nil, nil
	}

	var report banditReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, parseError(ScannerBandit, "invalid JSON", err)
	}
	if report.Results == nil {
		return nil, parseError(ScannerBandit, "missing results array", nil)
	}

	findings := make([]schemas.Finding, 0, len(*report.Results))
	for _, r := range *report.Results {
		ruleID := r.TestID
		if ruleID == "" {
			ruleID = "unknown"
		}

		// The rule table wins for bandit; the embedded CWE only fills gaps.
		cwe := ResolveCWE(ScannerBandit, ruleID, "")
		if cwe == "" && r.IssueCWE != nil && r.IssueCWE.ID > 0 {
			cwe = NormalizeCWE(strconv.Itoa(r.IssueCWE.ID))
		}

		findings = append(findings, schemas.Finding{
			Scanner:    ScannerBandit,
			RuleID:     ruleID,
			Severity:   banditSeverity(r.IssueSeverity),
			Message:    r.IssueText,
			CWE:        cwe,
			CVSSScore:  cvssFor(b.opts.CWE, cwe),
			FilePath:   relativePath(b.opts.CodeRoot, r.Filename),
			LineNumber: r.LineNumber,
			EndLine:    r.LineNumber,
		})
	}
	return findings, nil
}

func banditSeverity(raw string) schemas.Severity {
	switch strings.ToUpper(raw) {
	case "HIGH":
		return schemas.SeverityError
	case "MEDIUM":
		return schemas.SeverityWarning
	default:
		return schemas.SeverityInfo
	}
}
