// Package errclass defines the stable, machine-readable error classes
// surfaced by fingerprinting, ledger backends and their collaborators.
package errclass

import "fmt"

// LedgerError is a stable, machine-readable error class.
type LedgerError struct {
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any LedgerError carrying the same Code, so callers can test
// against the base classes below with errors.Is.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new LedgerError with the same Code but a specific message.
func (e *LedgerError) WithMessage(msg string) *LedgerError {
	return &LedgerError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new LedgerError with a formatted message.
func (e *LedgerError) WithMessagef(format string, args ...any) *LedgerError {
	return &LedgerError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Core taxonomy. Networked backends surface only these kinds.
var (
	ErrUnsupportedAlgorithm = &LedgerError{Code: "E_UNSUPPORTED_ALGORITHM"}
	ErrSourceUnavailable    = &LedgerError{Code: "E_SOURCE_UNAVAILABLE"}
	ErrSubmissionFailed     = &LedgerError{Code: "E_SUBMISSION_FAILED"}
	ErrLookupFailed         = &LedgerError{Code: "E_LOOKUP_FAILED"}
	ErrUnknownBackend       = &LedgerError{Code: "E_UNKNOWN_BACKEND"}
	ErrMissingConfiguration = &LedgerError{Code: "E_MISSING_CONFIGURATION"}
)

// Classes raised outside the backend contract: factory option parsing,
// caller-side record validation, sidecars and the local journal.
var (
	ErrInvalidConfiguration = &LedgerError{Code: "E_INVALID_CONFIGURATION"}
	ErrInvalidRecord        = &LedgerError{Code: "E_INVALID_RECORD"}
	ErrSidecarCorrupt       = &LedgerError{Code: "E_SIDECAR_CORRUPT"}
	ErrJournalChainBroken   = &LedgerError{Code: "E_JOURNAL_CHAIN_BROKEN"}
)
