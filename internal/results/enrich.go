// internal/results/enrich.go
package results

import (
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
)

// Enricher attaches catalogue details to report entries.
type Enricher struct {
	cweProvider providers.CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates a new Enricher instance.
func NewEnricher(cweProvider providers.CWEProvider, logger *zap.Logger) *Enricher {
	return &Enricher{
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// EnrichCWEs fills in the weakness names of a frequency table.
func (e *Enricher) EnrichCWEs(freqs []schemas.CWEFrequency) {
	if e.cweProvider == nil {
		return
	}
	for i := range freqs {
		entry, err := e.cweProvider.GetCWE(freqs[i].CWE)
		if err != nil {
			e.logger.Debug("Could not retrieve CWE details", zap.String("cwe_id", freqs[i].CWE), zap.Error(err))
			continue
		}
		freqs[i].Name = entry.Name
	}
}
