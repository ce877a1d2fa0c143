package schemas

import "time"

// -- Aggregation Schemas --

// AggregatedRecord is the union of all runs of one prompt configuration.
// Counts are over deduplicated findings.
type AggregatedRecord struct {
	GroupKey

	TotalVulnerabilities int `json:"total_vulnerabilities"`
	ErrorCount           int `json:"error_count"`
	WarningCount         int `json:"warning_count"`
	InfoCount            int `json:"info_count"`
	WeightedScore        int `json:"weighted_score"`

	TotalCVSSScore float64 `json:"total_cvss_score"`
	MaxCVSSScore   float64 `json:"max_cvss_score"`
	AvgCVSSScore   float64 `json:"avg_cvss_score"`

	UniqueRules     int `json:"unique_rules"`
	CWECount        int `json:"cwe_count"`
	RunsAnalyzed    int `json:"runs_analyzed"`
	RunsUnparseable int `json:"runs_unparseable"`

	// Findings is the deduplicated finding set in first-seen order.
	Findings []Finding `json:"-"`
}

// ScoredRecord is an AggregatedRecord placed on the bounded security scale.
// 1.0 means no findings, 0.0 means at or beyond the normalization factor.
type ScoredRecord struct {
	AggregatedRecord
	SecurityScore float64 `json:"security_score"`
}

// IncompleteGroup is a prompt configuration for which runs exist but none of
// them could be parsed. It produces no record.
type IncompleteGroup struct {
	GroupKey
	RunsUnparseable int `json:"runs_unparseable"`
}

// -- Table Schemas --

// GroupSummary holds the metrics of one cell of a grouped table. Values is
// aligned with Dimensions.
type GroupSummary struct {
	Dimensions []Dimension `json:"-"`
	Values     []string    `json:"-"`

	Count                int     `json:"count"`
	PromptsWithVuln      int     `json:"prompts_with_vuln"`
	Prevalence           float64 `json:"prevalence"`
	TotalVulnerabilities int     `json:"total_vulnerabilities"`
	ErrorCount           int     `json:"error_count"`
	WarningCount         int     `json:"warning_count"`
	InfoCount            int     `json:"info_count"`
	WeightedScore        int     `json:"weighted_score"`
	AvgWeightedScore     float64 `json:"avg_weighted_score"`
	AvgSecurityScore     float64 `json:"avg_security_score"`
	MinSecurityScore     float64 `json:"min_security_score"`
	MaxSecurityScore     float64 `json:"max_security_score"`
}

// Value returns the summary's value for dimension d, or "" if the summary was
// not grouped on d.
func (g GroupSummary) Value(d Dimension) string {
	for i, dim := range g.Dimensions {
		if dim == d && i < len(g.Values) {
			return g.Values[i]
		}
	}
	return ""
}

// Table is a named grouping of scored records.
type Table struct {
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	Dimensions []Dimension    `json:"dimensions"`
	Rows       []GroupSummary `json:"rows"`
}

// CategoryStat is one row of the study statistics sheet.
type CategoryStat struct {
	Category string       `json:"category"`
	Value    string       `json:"value"`
	Summary  GroupSummary `json:"summary"`
}

// Comparison contrasts two prompt variants that share every other dimension.
// Improvement is Treatment minus Baseline. ImprovementPct is nil when the
// baseline average is zero.
type Comparison struct {
	Dimensions []Dimension `json:"dimensions,omitempty"`
	Values     []string    `json:"values,omitempty"`

	Baseline       string   `json:"baseline"`
	Treatment      string   `json:"treatment"`
	BaselineAvg    float64  `json:"baseline_avg_security_score"`
	TreatmentAvg   float64  `json:"treatment_avg_security_score"`
	Improvement    float64  `json:"improvement"`
	ImprovementPct *float64 `json:"improvement_pct"`
}

// CWEFrequency counts deduplicated findings per weakness.
type CWEFrequency struct {
	CWE   string `json:"cwe"`
	Name  string `json:"name,omitempty"`
	Count int    `json:"count"`
}

// StudyReport is everything the reporting layer renders for one analysis.
type StudyReport struct {
	AnalysisID          string    `json:"analysis_id"`
	GeneratedAt         time.Time `json:"generated_at"`
	Basis               string    `json:"basis"`
	NormalizationFactor float64   `json:"normalization_factor"`

	// Runs are the indexed input runs, kept for the per-finding export.
	Runs       []Run             `json:"-"`
	Scored     []ScoredRecord    `json:"scored"`
	Incomplete []IncompleteGroup `json:"incomplete,omitempty"`

	Overall     GroupSummary   `json:"overall"`
	Statistics  []CategoryStat `json:"statistics"`
	Tables      []Table        `json:"tables"`
	Comparisons []Comparison   `json:"comparisons"`
	TopCWEs     []CWEFrequency `json:"top_cwes"`

	Best  *ScoredRecord `json:"best,omitempty"`
	Worst *ScoredRecord `json:"worst,omitempty"`
}
