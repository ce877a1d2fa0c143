package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// RunDir returns the directory a run's results.json lives in.
func RunDir(root string, model string, key schemas.GroupKey, runNumber int) string {
	parts := []string{root}
	if model != "" {
		parts = append(parts, model)
	}
	parts = append(parts,
		key.Domain,
		key.TaskID,
		key.Language+"_"+key.PromptType,
		fmt.Sprintf("run_%d", runNumber),
	)
	return filepath.Join(parts...)
}

// WriteRunDocument writes findings to <dir>/results.json, creating dir.
func WriteRunDocument(dir, language string, findings []schemas.Finding, at time.Time) (string, error) {
	return writeDocument(dir, NewRunDocument(language, findings, at))
}

// WriteFailedRunDocument marks the run in dir as attempted but unparseable.
func WriteFailedRunDocument(dir, language, reason string, at time.Time) (string, error) {
	return writeDocument(dir, NewFailedRunDocument(language, reason, at))
}

func writeDocument(dir string, doc RunDocument) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run document: %w", err)
	}

	path := filepath.Join(dir, ResultsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
