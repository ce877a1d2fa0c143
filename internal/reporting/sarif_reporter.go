// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "LLMVulnBench"
	ToolInfoURI  = "https://github.com/Aadvait-Hirde/LLMVulnBench"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer allows alphanumerics, underscore and dot. Everything else
// collapses into a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by its content.
type RuleFingerprint string

// calculateFingerprint hashes the characteristics that define a scanner rule.
func calculateFingerprint(finding schemas.Finding) RuleFingerprint {
	data := struct {
		Scanner string
		RuleID  string
		CWE     string
	}{
		Scanner: finding.Scanner,
		RuleID:  finding.RuleID,
		CWE:     finding.CWE,
	}

	h := sha1.New()
	_ = json.NewEncoder(h).Encode(data)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// SARIFReporter renders the deduplicated findings of every scored prompt as
// a SARIF 2.1.0 log. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu                 sync.Mutex
	rulesByFingerprint map[RuleFingerprint]string
	// ruleIDUsage counts base rule IDs so colliding definitions get a suffix.
	ruleIDUsage map[string]int
}

// NewSARIFReporter creates a reporter that writes SARIF output on Close.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Empty, not nil, so they marshal as [].
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             observability.GetLogger().Named("sarif_reporter"),
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write adds one SARIF result per deduplicated finding of each scored record.
func (r *SARIFReporter) Write(report *schemas.StudyReport) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	findingsCount := 0

	for _, rec := range report.Scored {
		for _, finding := range rec.Findings {
			ruleID := r.ensureRule(finding)

			messageText := finding.Message
			if messageText == "" {
				messageText = finding.RuleID
			}

			run.Results = append(run.Results, &sarif.Result{
				RuleID:    ruleID,
				Message:   &sarif.Message{Text: pString(messageText)},
				Level:     mapSeverityToSARIFLevel(finding.Severity),
				Locations: createLocations(rec.GroupKey, finding),
				PartialFingerprints: map[string]string{
					"promptFinding/v1": promptFindingFingerprint(rec.GroupKey, finding),
				},
				Properties: &sarif.PropertyBag{
					"task_id":     rec.TaskID,
					"domain":      rec.Domain,
					"language":    rec.Language,
					"prompt_type": rec.PromptType,
				},
			})
			findingsCount++
		}
	}

	r.logger.Debug("Wrote findings to SARIF buffer",
		zap.Int("findings_count", findingsCount),
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}

// Close encodes the SARIF log to the writer and closes it.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func sanitizeRuleName(name string) string {
	sanitized := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if sanitized == "" {
		return "UNKNOWN-RULE"
	}
	return sanitized
}

// ensureRule registers the finding's rule on first sight and returns its ID.
// Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(finding schemas.Finding) string {
	fingerprint := calculateFingerprint(finding)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	baseRuleID := sanitizeRuleName(finding.Scanner) + "." + sanitizeRuleName(finding.RuleID)
	usageCount := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		// Same scanner rule reported under a different CWE.
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", finalRuleID),
		)
	}

	properties := sarif.PropertyBag{
		"tags":    []string{"security", finding.Scanner},
		"scanner": finding.Scanner,
	}
	if finding.HasCWE() {
		properties["CWE"] = finding.CWE
	}

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(finding.RuleID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(fmt.Sprintf("%s %s", finding.Scanner, finding.RuleID))},
		Properties:       &properties,
	})
	r.rulesByFingerprint[fingerprint] = finalRuleID
	return finalRuleID
}

// createLocations points at the finding's file inside the generated code of
// its prompt configuration.
func createLocations(key schemas.GroupKey, finding schemas.Finding) []*sarif.Location {
	physical := &sarif.PhysicalLocation{
		ArtifactLocation: &sarif.ArtifactLocation{URI: pString(finding.FilePath)},
	}
	if finding.LineNumber > 0 {
		physical.Region = &sarif.Region{StartLine: finding.LineNumber}
		if finding.EndLine >= finding.LineNumber {
			physical.Region.EndLine = finding.EndLine
		}
	}
	return []*sarif.Location{{
		PhysicalLocation: physical,
		Message:          &sarif.Message{Text: pString(fmt.Sprintf("Generated for %s", key))},
	}}
}

func promptFindingFingerprint(key schemas.GroupKey, finding schemas.Finding) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", key, finding.RuleID, finding.FilePath, finding.LineNumber)
	return hex.EncodeToString(h.Sum(nil))
}

// mapSeverityToSARIFLevel converts a normalized severity to the SARIF level.
func mapSeverityToSARIFLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityError:
		return sarif.LevelError
	case schemas.SeverityWarning:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
