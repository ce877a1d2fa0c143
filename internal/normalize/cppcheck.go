package normalize

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// Cppcheck normalizes C++ findings from `cppcheck --xml --xml-version=2`.
type Cppcheck struct {
	opts Options
}

// NewCppcheck creates the cppcheck adapter.
func NewCppcheck(opts Options) *Cppcheck {
	return &Cppcheck{opts: opts}
}

func (c *Cppcheck) Scanner() string { return ScannerCppcheck }

// Normalize parses the XML report cppcheck writes to stderr. Progress lines
// before the XML declaration are discarded. Errors that carry no file, such
// as checker limits, are skipped.
func (c *Cppcheck) Normalize(raw []byte, _ string) ([]schemas.Finding, error) {
	if isBlank(raw) {
		return nil, nil
	}

	if start := bytes.Index(raw, []byte("<?xml")); start > 0 {
		raw = raw[start:]
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, parseError(ScannerCppcheck, "invalid XML", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "results" {
		return nil, parseError(ScannerCppcheck, "missing <results> root element", nil)
	}

	var findings []schemas.Finding
	for _, e := range root.FindElements(".//error") {
		file, line := "", 0
		if locations := e.SelectElements("location"); len(locations) > 0 {
			file = locations[0].SelectAttrValue("file", "")
			line, _ = strconv.Atoi(locations[0].SelectAttrValue("line", "0"))
		}
		if file == "" {
			file = e.SelectAttrValue("file0", "")
		}
		if file == "" {
			continue
		}

		ruleID := e.SelectAttrValue("id", "unknown")
		cwe := ResolveCWE(ScannerCppcheck, ruleID, e.SelectAttrValue("cwe", ""))

		findings = append(findings, schemas.Finding{
			Scanner:    ScannerCppcheck,
			RuleID:     ruleID,
			Severity:   cppcheckSeverity(e.SelectAttrValue("severity", "style")),
			Message:    e.SelectAttrValue("msg", ""),
			CWE:        cwe,
			CVSSScore:  cvssFor(c.opts.CWE, cwe),
			FilePath:   relativePath(c.opts.CodeRoot, file),
			LineNumber: line,
			EndLine:    line,
		})
	}
	return findings, nil
}

func cppcheckSeverity(raw string) schemas.Severity {
	switch strings.ToUpper(raw) {
	case "ERROR", "CRITICAL":
		return schemas.SeverityError
	case "WARNING", "WARN":
		return schemas.SeverityWarning
	default:
		return schemas.SeverityInfo
	}
}
