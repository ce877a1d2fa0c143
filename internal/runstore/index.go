// Package runstore holds the study's runs in memory, keyed by prompt
// configuration, and loads them from the on-disk results tree.
package runstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

var (
	// ErrInconsistentRun is returned when two runs disagree about metadata
	// that must be unique, such as a task's domain.
	ErrInconsistentRun = errors.New("inconsistent run metadata")
	// ErrNoRuns is returned when a source yields nothing to analyze.
	ErrNoRuns = errors.New("no runs found")
)

type runIdentity struct {
	key       schemas.GroupKey
	model     string
	runNumber int
}

// Index partitions runs by GroupKey. It is built once and shared by the
// aggregation and table stages; it is read-only after construction.
type Index struct {
	keys   []schemas.GroupKey
	runs   map[schemas.GroupKey][]schemas.Run
	models []string
	total  int
}

// IndexOption configures NewIndex.
type IndexOption func(*indexOptions)

type indexOptions struct {
	model string
}

// WithModel keeps only the runs generated by model.
func WithModel(model string) IndexOption {
	return func(o *indexOptions) { o.model = model }
}

// NewIndex validates runs and partitions them by key. Keys are ordered by
// task, domain, language and prompt type; runs within a key by model and
// run number. It fails fast with ErrInconsistentRun when a task appears under
// two domains or the same run is supplied twice.
func NewIndex(runs []schemas.Run, opts ...IndexOption) (*Index, error) {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}

	idx := &Index{runs: make(map[schemas.GroupKey][]schemas.Run)}
	taskDomains := make(map[string]string)
	seen := make(map[runIdentity]struct{})
	models := make(map[string]struct{})

	for _, run := range runs {
		if o.model != "" && run.Model != o.model {
			continue
		}
		if err := validateRun(run); err != nil {
			return nil, err
		}

		if domain, ok := taskDomains[run.Key.TaskID]; ok && domain != run.Key.Domain {
			return nil, fmt.Errorf("%w: task %s observed under domains %q and %q",
				ErrInconsistentRun, run.Key.TaskID, domain, run.Key.Domain)
		}
		taskDomains[run.Key.TaskID] = run.Key.Domain

		id := runIdentity{key: run.Key, model: run.Model, runNumber: run.RunNumber}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate run %s", ErrInconsistentRun, run.ID())
		}
		seen[id] = struct{}{}

		if _, ok := idx.runs[run.Key]; !ok {
			idx.keys = append(idx.keys, run.Key)
		}
		idx.runs[run.Key] = append(idx.runs[run.Key], run)
		models[run.Model] = struct{}{}
		idx.total++
	}

	sort.Slice(idx.keys, func(i, j int) bool { return keyLess(idx.keys[i], idx.keys[j]) })
	for _, group := range idx.runs {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Model != group[j].Model {
				return group[i].Model < group[j].Model
			}
			return group[i].RunNumber < group[j].RunNumber
		})
	}
	for m := range models {
		idx.models = append(idx.models, m)
	}
	sort.Strings(idx.models)

	return idx, nil
}

func validateRun(run schemas.Run) error {
	k := run.Key
	if k.TaskID == "" || k.Domain == "" || k.Language == "" || k.PromptType == "" {
		return fmt.Errorf("%w: run %s has an incomplete key", ErrInconsistentRun, run.ID())
	}
	if run.RunNumber < 1 {
		return fmt.Errorf("%w: run %s has run number %d", ErrInconsistentRun, run.ID(), run.RunNumber)
	}
	for i, f := range run.Findings {
		if !f.Severity.Valid() {
			return fmt.Errorf("%w: run %s finding %d has severity %q",
				ErrInconsistentRun, run.ID(), i, f.Severity)
		}
	}
	return nil
}

func keyLess(a, b schemas.GroupKey) bool {
	if a.TaskID != b.TaskID {
		return a.TaskID < b.TaskID
	}
	if a.Domain != b.Domain {
		return a.Domain < b.Domain
	}
	if a.Language != b.Language {
		return a.Language < b.Language
	}
	return a.PromptType < b.PromptType
}

// Keys returns every indexed key in order.
func (i *Index) Keys() []schemas.GroupKey {
	out := make([]schemas.GroupKey, len(i.keys))
	copy(out, i.keys)
	return out
}

// Runs returns the runs for key, or nil when the key was never indexed.
func (i *Index) Runs(key schemas.GroupKey) []schemas.Run {
	return i.runs[key]
}

// Len is the number of distinct keys.
func (i *Index) Len() int { return len(i.keys) }

// RunCount is the number of indexed runs across all keys.
func (i *Index) RunCount() int { return i.total }

// Models lists the models present in the index.
func (i *Index) Models() []string {
	out := make([]string, len(i.models))
	copy(out, i.models)
	return out
}

// All returns every indexed run in key order.
func (i *Index) All() []schemas.Run {
	out := make([]schemas.Run, 0, i.total)
	for _, k := range i.keys {
		out = append(out, i.runs[k]...)
	}
	return out
}
