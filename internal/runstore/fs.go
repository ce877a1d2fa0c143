package runstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// ResultsFile is the per-run document written by the scanning stage.
const ResultsFile = "results.json"

// RunDocument is the layout of a results.json file.
type RunDocument struct {
	Timestamp          string             `json:"timestamp"`
	Language           string             `json:"language"`
	Vulnerabilities    *[]schemas.Finding `json:"vulnerabilities"`
	VulnerabilityCount int                `json:"vulnerability_count"`
	// ParseError is set when the scanner ran but its output could not be
	// normalized. The run is then loaded as unparseable.
	ParseError string `json:"parse_error,omitempty"`
}

// NewRunDocument wraps findings for writing to results.json.
func NewRunDocument(language string, findings []schemas.Finding, at time.Time) RunDocument {
	if findings == nil {
		findings = []schemas.Finding{}
	}
	return RunDocument{
		Timestamp:          at.Format(time.RFC3339Nano),
		Language:           language,
		Vulnerabilities:    &findings,
		VulnerabilityCount: len(findings),
	}
}

// NewFailedRunDocument records an attempted run whose scanner output could
// not be parsed.
func NewFailedRunDocument(language, reason string, at time.Time) RunDocument {
	return RunDocument{
		Timestamp:  at.Format(time.RFC3339Nano),
		Language:   language,
		ParseError: reason,
	}
}

// timestampLayouts covers RFC 3339 and the zone-less ISO format older
// collection scripts wrote.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FSSource loads runs from a results tree laid out as
// <root>/[<model>/]<domain>/<task_id>/<language>_<prompt_type>/run_<N>/results.json.
type FSSource struct {
	root   string
	logger *zap.Logger
}

// NewFSSource creates a source rooted at root.
func NewFSSource(root string, logger *zap.Logger) *FSSource {
	return &FSSource{root: root, logger: logger.Named("fs_source")}
}

// LoadRuns walks the tree and decodes every results.json. Files that cannot
// be decoded become unparseable runs rather than errors. Paths that do not
// match the layout are skipped.
func (s *FSSource) LoadRuns(ctx context.Context) ([]schemas.Run, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to open results root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("results root %s is not a directory", s.root)
	}

	var runs []schemas.Run
	skipped := 0
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ResultsFile {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		run, ok := runFromPath(rel)
		if !ok {
			skipped++
			s.logger.Debug("Skipping results file outside the expected layout", zap.String("path", rel))
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		runs = append(runs, decodeRun(run, raw))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk results root %s: %w", s.root, err)
	}

	unparseable := 0
	for _, r := range runs {
		if !r.Parsed() {
			unparseable++
			s.logger.Warn("Run results could not be parsed", zap.String("run", r.ID()), zap.String("reason", r.ParseError))
		}
	}
	s.logger.Info("Loaded runs from filesystem",
		zap.String("root", s.root),
		zap.Int("runs", len(runs)),
		zap.Int("unparseable", unparseable),
		zap.Int("skipped", skipped))
	return runs, nil
}

// runFromPath extracts the run identity from a path relative to the root.
func runFromPath(rel string) (schemas.Run, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	var model string
	switch len(parts) {
	case 5:
	case 6:
		model = parts[0]
		parts = parts[1:]
	default:
		return schemas.Run{}, false
	}

	domain, task, langPrompt, runDir := parts[0], parts[1], parts[2], parts[3]
	language, promptType, ok := strings.Cut(langPrompt, "_")
	if !ok || language == "" || promptType == "" {
		return schemas.Run{}, false
	}
	n, ok := parseRunDir(runDir)
	if !ok {
		return schemas.Run{}, false
	}

	return schemas.Run{
		Key: schemas.GroupKey{
			TaskID:     task,
			Domain:     domain,
			Language:   language,
			PromptType: promptType,
		},
		Model:     model,
		RunNumber: n,
	}, true
}

// parseRunDir parses "run_<N>" with N >= 1.
func parseRunDir(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, "run_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// decodeRun fills run from a results.json payload, marking it unparseable
// when the document or one of its findings is malformed.
func decodeRun(run schemas.Run, raw []byte) schemas.Run {
	run.Status = schemas.RunScanned

	var doc RunDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return unparseable(run, fmt.Sprintf("invalid JSON: %v", err))
	}
	if doc.ParseError != "" {
		run.ScannedAt = parseTimestamp(doc.Timestamp)
		return unparseable(run, doc.ParseError)
	}
	if doc.Vulnerabilities == nil {
		return unparseable(run, "missing vulnerabilities array")
	}

	findings := make([]schemas.Finding, 0, len(*doc.Vulnerabilities))
	for i, f := range *doc.Vulnerabilities {
		sev, err := schemas.ParseSeverity(string(f.Severity))
		if err != nil {
			return unparseable(run, fmt.Sprintf("finding %d: %v", i, err))
		}
		f.Severity = sev
		findings = append(findings, f)
	}

	run.ScannedAt = parseTimestamp(doc.Timestamp)
	run.Findings = findings
	return run
}

func unparseable(run schemas.Run, reason string) schemas.Run {
	run.Status = schemas.RunUnparseable
	run.ParseError = reason
	run.Findings = nil
	return run
}
