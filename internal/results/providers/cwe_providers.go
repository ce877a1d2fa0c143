// internal/results/providers/cwe_providers.go
package providers

import (
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
)

// CWEEntry holds catalogue details about a specific CWE.
type CWEEntry struct {
	ID   string
	Name string
	// CVSS is the mean base score observed for the weakness, nil when unknown.
	CVSS *float64
}

// CWEProvider defines the interface for retrieving CWE information.
type CWEProvider interface {
	GetCWE(id string) (*CWEEntry, error)
	// CVSS returns the base score mapped to a weakness.
	CVSS(id string) (float64, bool)
}

// InMemoryCWEProvider serves CWE names and CVSS scores from memory.
type InMemoryCWEProvider struct {
	data map[string]CWEEntry
}

// builtinNames covers every weakness the scanner rule tables can produce.
var builtinNames = map[string]string{
	"CWE-22":   "Improper Limitation of a Pathname to a Restricted Directory ('Path Traversal')",
	"CWE-78":   "Improper Neutralization of Special Elements used in an OS Command ('OS Command Injection')",
	"CWE-79":   "Improper Neutralization of Input During Web Page Generation ('Cross-site Scripting')",
	"CWE-89":   "Improper Neutralization of Special Elements used in an SQL Command ('SQL Injection')",
	"CWE-94":   "Improper Control of Generation of Code ('Code Injection')",
	"CWE-119":  "Improper Restriction of Operations within the Bounds of a Memory Buffer",
	"CWE-134":  "Use of Externally-Controlled Format String",
	"CWE-200":  "Exposure of Sensitive Information to an Unauthorized Actor",
	"CWE-209":  "Generation of Error Message Containing Sensitive Information",
	"CWE-215":  "Insertion of Sensitive Information Into Debugging Code",
	"CWE-252":  "Unchecked Return Value",
	"CWE-259":  "Use of Hard-coded Password",
	"CWE-295":  "Improper Certificate Validation",
	"CWE-327":  "Use of a Broken or Risky Cryptographic Algorithm",
	"CWE-329":  "Generation of Predictable IV with CBC Mode",
	"CWE-330":  "Use of Insufficiently Random Values",
	"CWE-352":  "Cross-Site Request Forgery (CSRF)",
	"CWE-377":  "Insecure Temporary File",
	"CWE-400":  "Uncontrolled Resource Consumption",
	"CWE-457":  "Use of Uninitialized Variable",
	"CWE-494":  "Download of Code Without Integrity Check",
	"CWE-502":  "Deserialization of Untrusted Data",
	"CWE-597":  "Use of Wrong Operator in String Comparison",
	"CWE-614":  "Sensitive Cookie in HTTPS Session Without 'Secure' Attribute",
	"CWE-703":  "Improper Check or Handling of Exceptional Conditions",
	"CWE-704":  "Incorrect Type Conversion or Cast",
	"CWE-710":  "Improper Adherence to Coding Standards",
	"CWE-732":  "Incorrect Permission Assignment for Critical Resource",
	"CWE-798":  "Use of Hard-coded Credentials",
	"CWE-942":  "Permissive Cross-domain Policy with Untrusted Domains",
	"CWE-1004": "Sensitive Cookie Without 'HttpOnly' Flag",
	"CWE-1333": "Inefficient Regular Expression Complexity",
}

// NewInMemoryCWEProvider creates a provider preloaded with weakness names
// and no CVSS scores.
func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	data := make(map[string]CWEEntry, len(builtinNames))
	for id, name := range builtinNames {
		data[id] = CWEEntry{ID: id, Name: name}
	}
	return &InMemoryCWEProvider{data: data}
}

// SetCVSS attaches base scores to weaknesses. Keys are upper-cased so
// "cwe-79" and "CWE-79" land on the same entry.
func (p *InMemoryCWEProvider) SetCVSS(scores map[string]float64) {
	for id, score := range scores {
		id = strings.ToUpper(strings.TrimSpace(id))
		s := score
		entry, ok := p.data[id]
		if !ok {
			entry = CWEEntry{ID: id}
		}
		entry.CVSS = &s
		p.data[id] = entry
	}
}

// LoadCVSSMapping reads a flat JSON object of CWE id to base score, as
// produced from NVD data. Null scores are skipped.
func (p *InMemoryCWEProvider) LoadCVSSMapping(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read CVSS mapping %s: %w", path, err)
	}

	var mapping map[string]*float64
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return 0, fmt.Errorf("failed to decode CVSS mapping %s: %w", path, err)
	}

	scores := make(map[string]float64, len(mapping))
	for id, score := range mapping {
		if score != nil {
			scores[id] = *score
		}
	}
	p.SetCVSS(scores)
	return len(scores), nil
}

// GetCWE retrieves CWE details by ID.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("empty CWE id")
	}
	entry, exists := p.data[id]
	if !exists || entry.Name == "" {
		// Unknown weaknesses still get an entry so reports can render them.
		e := CWEEntry{ID: id, Name: fmt.Sprintf("%s (Details Not Found)", id)}
		if exists {
			e.CVSS = entry.CVSS
		}
		return &e, nil
	}
	return &entry, nil
}

// CVSS returns the base score mapped to id.
func (p *InMemoryCWEProvider) CVSS(id string) (float64, bool) {
	entry, ok := p.data[id]
	if !ok || entry.CVSS == nil {
		return 0, false
	}
	return *entry.CVSS, true
}
