// Package study describes the layout of an experiment: which domains,
// languages and prompt variants exist, in what order tables present them,
// and which prompt variants are compared against each other.
package study

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// Prompt variants of the default study, in template declaration order.
const (
	PromptNaive         = "naive"
	PromptStandard      = "standard"
	PromptDomainPersona = "domain_persona"
	PromptSecurityAware = "security_aware"
)

// ComparisonSpec contrasts two prompt variants. Within lists the dimensions
// the comparison is additionally partitioned by; an empty list compares the
// variants across the whole study.
type ComparisonSpec struct {
	Baseline  string              `yaml:"baseline"`
	Treatment string              `yaml:"treatment"`
	Within    []schemas.Dimension `yaml:"within"`
}

// Manifest declares presentation order and comparisons. Values missing from
// an order list are still reported, after the declared ones.
type Manifest struct {
	Name        string           `yaml:"name"`
	Domains     []string         `yaml:"domains"`
	Languages   []string         `yaml:"languages"`
	PromptTypes []string         `yaml:"prompt_types"`
	Comparisons []ComparisonSpec `yaml:"comparisons"`
}

// Default returns the manifest of the published study.
func Default() *Manifest {
	return &Manifest{
		Name:        "llm-code-security",
		Domains:     []string{"aiml_ds", "auth_crypto", "file_system", "web_api"},
		PromptTypes: []string{PromptNaive, PromptStandard, PromptDomainPersona, PromptSecurityAware},
		Comparisons: []ComparisonSpec{
			{Baseline: PromptNaive, Treatment: PromptSecurityAware},
			{Baseline: PromptNaive, Treatment: PromptSecurityAware, Within: []schemas.Dimension{schemas.DimensionDomain}},
			{Baseline: PromptNaive, Treatment: PromptSecurityAware, Within: []schemas.Dimension{schemas.DimensionLanguage}},
		},
	}
}

// Load reads a manifest from a YAML file. An empty path yields Default.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return Default(), nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand manifest path %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", expanded, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", expanded, err)
	}
	return m, nil
}

// Parse decodes and validates a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate rejects duplicate order entries and malformed comparisons.
func (m *Manifest) Validate() error {
	for name, list := range map[string][]string{
		"domains":      m.Domains,
		"languages":    m.Languages,
		"prompt_types": m.PromptTypes,
	} {
		seen := make(map[string]bool, len(list))
		for _, v := range list {
			if v == "" {
				return fmt.Errorf("%s contains an empty value", name)
			}
			if seen[v] {
				return fmt.Errorf("%s lists %q twice", name, v)
			}
			seen[v] = true
		}
	}

	for i, c := range m.Comparisons {
		if c.Baseline == "" || c.Treatment == "" {
			return fmt.Errorf("comparison %d needs both a baseline and a treatment", i)
		}
		if c.Baseline == c.Treatment {
			return fmt.Errorf("comparison %d compares %q with itself", i, c.Baseline)
		}
		for _, d := range c.Within {
			switch d {
			case schemas.DimensionTask, schemas.DimensionDomain, schemas.DimensionLanguage:
			case schemas.DimensionPromptType:
				return fmt.Errorf("comparison %d cannot partition by %s", i, d)
			default:
				return fmt.Errorf("comparison %d has unknown dimension %q", i, d)
			}
		}
	}
	return nil
}

// Order returns the declared order for dimension d, or nil when none is
// declared and values should sort ascending.
func (m *Manifest) Order(d schemas.Dimension) []string {
	switch d {
	case schemas.DimensionDomain:
		return m.Domains
	case schemas.DimensionLanguage:
		return m.Languages
	case schemas.DimensionPromptType:
		return m.PromptTypes
	default:
		return nil
	}
}
