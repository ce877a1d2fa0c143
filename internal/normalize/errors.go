package normalize

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage is returned when no scanner is registered for a language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrUnknownScanner is returned when a scanner name has no adapter.
	ErrUnknownScanner = errors.New("unknown scanner")
)

// ScanParseError reports scanner output that is structurally invalid.
// Callers record the run as unparseable rather than as a clean run.
type ScanParseError struct {
	Scanner string
	Reason  string
	Err     error
}

func (e *ScanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s output could not be parsed: %s: %v", e.Scanner, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s output could not be parsed: %s", e.Scanner, e.Reason)
}

func (e *ScanParseError) Unwrap() error { return e.Err }

func parseError(scanner, reason string, err error) error {
	return &ScanParseError{Scanner: scanner, Reason: reason, Err: err}
}

// IsScanParseError reports whether err wraps a ScanParseError.
func IsScanParseError(err error) bool {
	var pe *ScanParseError
	return errors.As(err, &pe)
}
