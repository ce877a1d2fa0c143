// Package results turns indexed runs into scored records: union aggregation
// per prompt configuration, then normalization onto the security scale.
package results

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/runstore"
)

// Aggregate unions the findings of runs that share one key. Findings are
// deduplicated on (rule_id, file_path, line_number), the first occurrence
// winning. Unparseable runs contribute nothing but are counted.
//
// It returns nil when there is nothing to report: no runs at all, or only
// unparseable ones. Runs with mismatched keys are an error.
func Aggregate(runs []schemas.Run) (*schemas.AggregatedRecord, error) {
	if len(runs) == 0 {
		return nil, nil
	}

	key := runs[0].Key
	rec := &schemas.AggregatedRecord{GroupKey: key}
	seen := make(map[schemas.FindingKey]struct{})

	for _, run := range runs {
		if run.Key != key {
			return nil, fmt.Errorf("%w: run %s aggregated with group %s",
				runstore.ErrInconsistentRun, run.ID(), key)
		}
		if !run.Parsed() {
			rec.RunsUnparseable++
			continue
		}
		rec.RunsAnalyzed++
		for _, f := range run.Findings {
			k := f.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			rec.Findings = append(rec.Findings, f)
		}
	}

	if rec.RunsAnalyzed == 0 {
		return nil, nil
	}

	rules := make(map[string]struct{})
	cwes := make(map[string]struct{})
	var scored int
	for _, f := range rec.Findings {
		switch f.Severity {
		case schemas.SeverityError:
			rec.ErrorCount++
		case schemas.SeverityWarning:
			rec.WarningCount++
		case schemas.SeverityInfo:
			rec.InfoCount++
		default:
			return nil, fmt.Errorf("%w: group %s has finding %s with severity %q",
				runstore.ErrInconsistentRun, key, f.RuleID, f.Severity)
		}
		rules[f.RuleID] = struct{}{}
		if f.HasCWE() {
			cwes[f.CWE] = struct{}{}
		}
		if f.CVSSScore != nil {
			scored++
			rec.TotalCVSSScore += *f.CVSSScore
			rec.MaxCVSSScore = math.Max(rec.MaxCVSSScore, *f.CVSSScore)
		}
	}

	rec.TotalVulnerabilities = len(rec.Findings)
	rec.WeightedScore = rec.ErrorCount*schemas.WeightError +
		rec.WarningCount*schemas.WeightWarning +
		rec.InfoCount*schemas.WeightInfo
	rec.UniqueRules = len(rules)
	rec.CWECount = len(cwes)
	if scored > 0 {
		rec.AvgCVSSScore = rec.TotalCVSSScore / float64(scored)
	}
	rec.TotalCVSSScore = round(rec.TotalCVSSScore, 2)
	rec.MaxCVSSScore = round(rec.MaxCVSSScore, 2)
	rec.AvgCVSSScore = round(rec.AvgCVSSScore, 2)

	return rec, nil
}

// Aggregation is the outcome of aggregating every group of an index.
type Aggregation struct {
	Records    []schemas.AggregatedRecord
	Incomplete []schemas.IncompleteGroup
}

// AggregateAll aggregates each key of idx independently, at most concurrency
// groups at a time. Records come back in the index's key order. Groups whose
// runs were all unparseable are listed in Incomplete instead.
func AggregateAll(ctx context.Context, idx *runstore.Index, concurrency int, logger *zap.Logger) (*Aggregation, error) {
	keys := idx.Keys()
	slots := make([]*schemas.AggregatedRecord, len(keys))

	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := Aggregate(idx.Runs(k))
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	out := &Aggregation{Records: make([]schemas.AggregatedRecord, 0, len(keys))}
	for i, k := range keys {
		if slots[i] != nil {
			out.Records = append(out.Records, *slots[i])
			continue
		}
		group := schemas.IncompleteGroup{GroupKey: k, RunsUnparseable: len(idx.Runs(k))}
		out.Incomplete = append(out.Incomplete, group)
		logger.Warn("No parseable runs for group, excluding it from scoring",
			zap.Stringer("group", k),
			zap.Int("runs_unparseable", group.RunsUnparseable))
	}

	logger.Info("Aggregation complete",
		zap.Int("groups", len(keys)),
		zap.Int("records", len(out.Records)),
		zap.Int("incomplete", len(out.Incomplete)))
	return out, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
