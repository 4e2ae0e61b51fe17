package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy. Per-item problems
// (unmatched factor, one broken product) never surface as errors; they are
// carried as Diagnostics next to a successful result. Only structurally
// invalid input and dependency timeouts abort a call.
var (
	// ErrInvalidInput marks structurally invalid input the operation cannot
	// proceed with, e.g. a negative packaging weight.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDependencyTimeout marks a repository or factor-provider call that
	// exceeded its deadline. Fatal: no partial result is returned.
	ErrDependencyTimeout = errors.New("dependency timeout")
)

// Diagnostic codes.
const (
	DiagMissingFactor = "missing_factor"
	DiagUnknownUnit   = "unknown_unit"
	DiagUnscaled      = "unscaled"
	DiagSkippedItem   = "skipped_item"
)

// Diagnostic is a non-fatal finding recorded during a computation so that
// zero-contribution items remain visible in the audit trail.
type Diagnostic struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s: %s", d.Code, d.Subject)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Code, d.Subject, d.Detail)
}
