// Package normalize converts raw scanner payloads into the study's common
// Finding shape.
package normalize

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
)

// Scanner names as they appear in the Finding.Scanner field.
const (
	ScannerBandit   = "bandit"
	ScannerSemgrep  = "semgrep"
	ScannerCppcheck = "cppcheck"
)

// Normalizer translates one scanner's raw output into findings. A payload
// that is structurally invalid yields a *ScanParseError.
type Normalizer interface {
	Scanner() string
	Normalize(raw []byte, language string) ([]schemas.Finding, error)
}

// Options are shared by every adapter.
type Options struct {
	// CodeRoot is the directory the scanner ran in. Absolute paths under it
	// are reported relative to it.
	CodeRoot string
	// CWE supplies CVSS scores. Nil leaves every CVSSScore empty.
	CWE providers.CWEProvider
}

// languageScanners routes each generated-code language to its scanner.
var languageScanners = map[string]string{
	"python":     ScannerBandit,
	"py":         ScannerBandit,
	"cpp":        ScannerCppcheck,
	"c++":        ScannerCppcheck,
	"c":          ScannerCppcheck,
	"typescript": ScannerSemgrep,
	"ts":         ScannerSemgrep,
	"tsx":        ScannerSemgrep,
	"javascript": ScannerSemgrep,
	"js":         ScannerSemgrep,
	"jsx":        ScannerSemgrep,
	"java":       ScannerSemgrep,
}

// Registry holds one adapter per scanner.
type Registry struct {
	normalizers map[string]Normalizer
}

// NewRegistry builds a registry with the bandit, semgrep and cppcheck adapters.
func NewRegistry(opts Options) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer)}
	r.Register(NewBandit(opts))
	r.Register(NewSemgrep(opts))
	r.Register(NewCppcheck(opts))
	return r
}

// Register adds or replaces the adapter for n.Scanner().
func (r *Registry) Register(n Normalizer) {
	r.normalizers[n.Scanner()] = n
}

// Scanners lists the registered scanner names in ascending order.
func (r *Registry) Scanners() []string {
	names := make([]string, 0, len(r.normalizers))
	for name := range r.normalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForScanner returns the adapter registered under name.
func (r *Registry) ForScanner(name string) (Normalizer, error) {
	n, ok := r.normalizers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, name)
	}
	return n, nil
}

// ForLanguage returns the adapter that scans code written in language.
func (r *Registry) ForLanguage(language string) (Normalizer, error) {
	scanner, ok := languageScanners[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return r.ForScanner(scanner)
}

// Normalize routes raw output through the adapter for language.
func (r *Registry) Normalize(raw []byte, language string) ([]schemas.Finding, error) {
	n, err := r.ForLanguage(language)
	if err != nil {
		return nil, err
	}
	return n.Normalize(raw, language)
}

// relativePath reports p relative to root when p lies under it. Relative
// inputs are cleaned; absolute paths outside root collapse to their base name.
func relativePath(root, p string) string {
	if p == "" {
		return "unknown"
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	if root != "" {
		if absRoot, err := filepath.Abs(root); err == nil {
			if rel, err := filepath.Rel(absRoot, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.Base(p)
}

// cvssFor looks up the base score for cwe, returning nil when unmapped.
func cvssFor(p providers.CWEProvider, cwe string) *float64 {
	if p == nil || cwe == "" {
		return nil
	}
	score, ok := p.CVSS(cwe)
	if !ok {
		return nil
	}
	return &score
}

func isBlank(raw []byte) bool {
	return len(bytes.TrimSpace(raw)) == 0
}
