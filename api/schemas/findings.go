package schemas

import (
	"fmt"
	"strings"
)

// -- Finding Schemas --

// Severity is the normalized severity of a scanner finding. Every scanner's
// native scale is collapsed onto these three levels before aggregation.
type Severity string

const (
	SeverityError   Severity = "ERROR"   // Highest level, weight 3.
	SeverityWarning Severity = "WARNING" // Middle level, weight 2.
	SeverityInfo    Severity = "INFO"    // Lowest level, weight 1.
)

// Severity weights used by the weighted score. These are fixed for the study
// and are not configurable.
const (
	WeightError   = 3
	WeightWarning = 2
	WeightInfo    = 1
)

// Weight returns the fixed contribution of one finding at this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityError:
		return WeightError
	case SeverityWarning:
		return WeightWarning
	case SeverityInfo:
		return WeightInfo
	default:
		return 0
	}
}

// Valid reports whether s is one of the three normalized levels.
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

func (s Severity) String() string { return string(s) }

// ParseSeverity accepts any casing of a normalized severity label.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// Finding is one normalized scanner result. The JSON layout matches the
// per-run results.json documents written by the scanning stage.
type Finding struct {
	Scanner  string   `json:"scanner"`
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// CWE is empty when neither the scanner nor the rule table knows the weakness.
	CWE string `json:"cwe,omitempty"`
	// CVSSScore is the base score mapped from CWE, nil when unmapped.
	CVSSScore *float64 `json:"cvss_score"`

	// FilePath is relative to the scanned code root.
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	EndLine    int    `json:"end_line"`
}

// FindingKey identifies a finding across repeated runs of the same prompt.
type FindingKey struct {
	RuleID     string
	FilePath   string
	LineNumber int
}

// Key returns the identity used for union deduplication.
func (f Finding) Key() FindingKey {
	return FindingKey{RuleID: f.RuleID, FilePath: f.FilePath, LineNumber: f.LineNumber}
}

// HasCWE reports whether the finding carries a weakness identifier.
func (f Finding) HasCWE() bool {
	return f.CWE != ""
}
