// Package tables groups scored records along categorical dimensions and
// derives the summary rows, statistics and prompt comparisons of a study.
package tables

import (
	"math"
	"sort"
	"strings"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/study"
)

// Definition names a grouped table and the dimensions it groups by.
type Definition struct {
	Name       string
	Title      string
	Dimensions []schemas.Dimension
}

// StandardTables are the grouped tables every analysis produces.
var StandardTables = []Definition{
	{
		Name:       "domain_prompttype",
		Title:      "Domain × Prompt Type Security Scores",
		Dimensions: []schemas.Dimension{schemas.DimensionDomain, schemas.DimensionPromptType},
	},
	{
		Name:       "language_prompttype",
		Title:      "Language × Prompt Type Security Scores",
		Dimensions: []schemas.Dimension{schemas.DimensionLanguage, schemas.DimensionPromptType},
	},
	{
		Name:       "domain_language_prompttype",
		Title:      "Domain × Language × Prompt Type Security Scores",
		Dimensions: []schemas.Dimension{schemas.DimensionDomain, schemas.DimensionLanguage, schemas.DimensionPromptType},
	},
}

// Statistics categories, in the order they are emitted.
const (
	CategoryOverall    = "OVERALL"
	CategoryPromptType = "PROMPT_TYPE"
	CategoryDomain     = "DOMAIN"
	CategoryLanguage   = "LANGUAGE"
)

var statisticCategories = []struct {
	name string
	dim  schemas.Dimension
}{
	{CategoryPromptType, schemas.DimensionPromptType},
	{CategoryDomain, schemas.DimensionDomain},
	{CategoryLanguage, schemas.DimensionLanguage},
}

// Summarize computes the metrics of one group. An empty group yields zero
// counts and zero averages rather than NaN.
func Summarize(dims []schemas.Dimension, values []string, members []schemas.ScoredRecord) schemas.GroupSummary {
	g := schemas.GroupSummary{Dimensions: dims, Values: values, Count: len(members)}
	if len(members) == 0 {
		return g
	}

	var scoreSum float64
	g.MinSecurityScore = math.Inf(1)
	g.MaxSecurityScore = math.Inf(-1)
	for _, r := range members {
		g.TotalVulnerabilities += r.TotalVulnerabilities
		g.ErrorCount += r.ErrorCount
		g.WarningCount += r.WarningCount
		g.InfoCount += r.InfoCount
		g.WeightedScore += r.WeightedScore
		if r.TotalVulnerabilities > 0 {
			g.PromptsWithVuln++
		}
		scoreSum += r.SecurityScore
		g.MinSecurityScore = math.Min(g.MinSecurityScore, r.SecurityScore)
		g.MaxSecurityScore = math.Max(g.MaxSecurityScore, r.SecurityScore)
	}

	n := float64(g.Count)
	g.Prevalence = float64(g.PromptsWithVuln) / n
	g.AvgWeightedScore = float64(g.WeightedScore) / n
	g.AvgSecurityScore = scoreSum / n
	return g
}

// GroupBy partitions records on dims and summarizes each partition. Rows
// follow the manifest's declared order per dimension; undeclared values
// sort ascending after declared ones. A nil manifest sorts everything
// ascending.
func GroupBy(records []schemas.ScoredRecord, dims []schemas.Dimension, m *study.Manifest) []schemas.GroupSummary {
	type group struct {
		values  []string
		members []schemas.ScoredRecord
	}
	groups := make(map[string]*group)
	var order []*group

	for _, r := range records {
		values := keyValues(r.GroupKey, dims)
		id := strings.Join(values, "\x00")
		g, ok := groups[id]
		if !ok {
			g = &group{values: values}
			groups[id] = g
			order = append(order, g)
		}
		g.members = append(g.members, r)
	}

	s := newSorter(m)
	sort.SliceStable(order, func(i, j int) bool {
		return s.compareTuple(dims, order[i].values, order[j].values) < 0
	})

	rows := make([]schemas.GroupSummary, len(order))
	for i, g := range order {
		rows[i] = Summarize(dims, g.values, g.members)
	}
	return rows
}

// Overall summarizes every record as a single group.
func Overall(records []schemas.ScoredRecord) schemas.GroupSummary {
	return Summarize(nil, nil, records)
}

// Statistics returns the OVERALL row followed by per prompt type, domain
// and language rows.
func Statistics(records []schemas.ScoredRecord, m *study.Manifest) []schemas.CategoryStat {
	stats := []schemas.CategoryStat{{Category: CategoryOverall, Value: "all", Summary: Overall(records)}}
	for _, c := range statisticCategories {
		for _, row := range GroupBy(records, []schemas.Dimension{c.dim}, m) {
			stats = append(stats, schemas.CategoryStat{Category: c.name, Value: row.Values[0], Summary: row})
		}
	}
	return stats
}

// Compare contrasts cs.Treatment with cs.Baseline, once per partition of
// cs.Within. Partitions lacking either variant are skipped.
func Compare(records []schemas.ScoredRecord, cs study.ComparisonSpec, m *study.Manifest) []schemas.Comparison {
	var partitions []schemas.GroupSummary
	if len(cs.Within) == 0 {
		partitions = []schemas.GroupSummary{{}}
	} else {
		partitions = GroupBy(records, cs.Within, m)
	}

	var out []schemas.Comparison
	for _, p := range partitions {
		var baseline, treatment []schemas.ScoredRecord
		for _, r := range records {
			if !inPartition(r.GroupKey, cs.Within, p.Values) {
				continue
			}
			switch r.PromptType {
			case cs.Baseline:
				baseline = append(baseline, r)
			case cs.Treatment:
				treatment = append(treatment, r)
			}
		}
		if len(baseline) == 0 || len(treatment) == 0 {
			continue
		}
		out = append(out, comparison(cs, p.Values, baseline, treatment))
	}
	return out
}

func inPartition(k schemas.GroupKey, dims []schemas.Dimension, values []string) bool {
	for i, d := range dims {
		if k.Value(d) != values[i] {
			return false
		}
	}
	return true
}

func comparison(cs study.ComparisonSpec, values []string, baseline, treatment []schemas.ScoredRecord) schemas.Comparison {
	c := schemas.Comparison{
		Dimensions:   cs.Within,
		Values:       values,
		Baseline:     cs.Baseline,
		Treatment:    cs.Treatment,
		BaselineAvg:  Summarize(nil, nil, baseline).AvgSecurityScore,
		TreatmentAvg: Summarize(nil, nil, treatment).AvgSecurityScore,
	}
	c.Improvement = c.TreatmentAvg - c.BaselineAvg
	if c.BaselineAvg != 0 {
		pct := c.Improvement / c.BaselineAvg * 100
		c.ImprovementPct = &pct
	}
	return c
}

// BestWorst returns the records with the highest and lowest security score.
// Ties go to the earliest record.
func BestWorst(records []schemas.ScoredRecord) (best, worst *schemas.ScoredRecord) {
	for i := range records {
		r := &records[i]
		if best == nil || r.SecurityScore > best.SecurityScore {
			best = r
		}
		if worst == nil || r.SecurityScore < worst.SecurityScore {
			worst = r
		}
	}
	return best, worst
}

// TopCWEs counts deduplicated findings per weakness across all records and
// returns the n most frequent, ties broken by identifier.
func TopCWEs(records []schemas.ScoredRecord, n int) []schemas.CWEFrequency {
	if n <= 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range records {
		for _, f := range r.Findings {
			if f.HasCWE() {
				counts[f.CWE]++
			}
		}
	}

	freqs := make([]schemas.CWEFrequency, 0, len(counts))
	for cwe, c := range counts {
		freqs = append(freqs, schemas.CWEFrequency{CWE: cwe, Count: c})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].CWE < freqs[j].CWE
	})
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}

// Result holds every derived view of a scored study.
type Result struct {
	Overall     schemas.GroupSummary
	Statistics  []schemas.CategoryStat
	Tables      []schemas.Table
	Comparisons []schemas.Comparison
	TopCWEs     []schemas.CWEFrequency
	Best        *schemas.ScoredRecord
	Worst       *schemas.ScoredRecord
}

// Build derives the standard tables, statistics and the manifest's
// comparisons from records.
func Build(records []schemas.ScoredRecord, m *study.Manifest, topCWEs int) Result {
	if m == nil {
		m = study.Default()
	}
	res := Result{
		Overall:    Overall(records),
		Statistics: Statistics(records, m),
		TopCWEs:    TopCWEs(records, topCWEs),
	}
	for _, def := range StandardTables {
		res.Tables = append(res.Tables, schemas.Table{
			Name:       def.Name,
			Title:      def.Title,
			Dimensions: def.Dimensions,
			Rows:       GroupBy(records, def.Dimensions, m),
		})
	}
	for _, cs := range m.Comparisons {
		res.Comparisons = append(res.Comparisons, Compare(records, cs, m)...)
	}

	best, worst := BestWorst(records)
	if best != nil {
		b, w := *best, *worst
		res.Best, res.Worst = &b, &w
	}
	return res
}
