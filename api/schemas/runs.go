package schemas

import (
	"fmt"
	"time"
)

// -- Run Schemas --

// RunStatus records whether a run's scanner output could be interpreted.
type RunStatus string

const (
	RunScanned     RunStatus = "scanned"     // Findings are authoritative, possibly empty.
	RunUnparseable RunStatus = "unparseable" // Scanner output was malformed.
)

// Dimension names one attribute of a GroupKey that tables can group by.
type Dimension string

const (
	DimensionTask       Dimension = "task_id"
	DimensionDomain     Dimension = "domain"
	DimensionLanguage   Dimension = "language"
	DimensionPromptType Dimension = "prompt_type"
)

// GroupKey identifies one prompt configuration. All runs of the same
// configuration are aggregated into a single record.
type GroupKey struct {
	TaskID     string `json:"task_id"`
	Domain     string `json:"domain"`
	Language   string `json:"language"`
	PromptType string `json:"prompt_type"`
}

// Value returns the key's value for the given dimension.
func (k GroupKey) Value(d Dimension) string {
	switch d {
	case DimensionTask:
		return k.TaskID
	case DimensionDomain:
		return k.Domain
	case DimensionLanguage:
		return k.Language
	case DimensionPromptType:
		return k.PromptType
	default:
		return ""
	}
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s/%s_%s", k.Domain, k.TaskID, k.Language, k.PromptType)
}

// Run is the scanner output of one generation of code for a prompt
// configuration. Runs are values and are never mutated after loading.
type Run struct {
	Key        GroupKey  `json:"key"`
	Model      string    `json:"model"`
	RunNumber  int       `json:"run_number"`
	Status     RunStatus `json:"status"`
	ParseError string    `json:"parse_error,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
	Findings   []Finding `json:"findings"`
}

// Parsed reports whether the run's findings can be trusted.
func (r Run) Parsed() bool {
	return r.Status != RunUnparseable
}

// ID is a human readable identifier for logs and error messages.
func (r Run) ID() string {
	if r.Model == "" {
		return fmt.Sprintf("%s/run_%d", r.Key, r.RunNumber)
	}
	return fmt.Sprintf("%s/%s/run_%d", r.Model, r.Key, r.RunNumber)
}
