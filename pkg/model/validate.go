package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

const maxSubmitterIDLen = 256

// NormalizeSubmitterID NFC-normalizes and trims a submitter id so the same
// device token typed on different platforms compares equal.
func NormalizeSubmitterID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// ValidateSubmitterID checks a (normalized) submitter id. Ids are opaque
// tokens; only emptiness, length and control characters are rejected.
func ValidateSubmitterID(id string) error {
	if id == "" {
		return errclass.ErrInvalidRecord.WithMessage("submitter id must not be empty")
	}
	if len(id) > maxSubmitterIDLen {
		return errclass.ErrInvalidRecord.WithMessagef("submitter id longer than %d bytes", maxSubmitterIDLen)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrInvalidRecord.WithMessagef("submitter id must not contain control characters: %q", id)
		}
	}
	return nil
}

// Validate checks the coordinate ranges.
func (g Geolocation) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return errclass.ErrInvalidRecord.WithMessagef("latitude out of range: %v", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return errclass.ErrInvalidRecord.WithMessagef("longitude out of range: %v", g.Longitude)
	}
	return nil
}

// Validate is the caller-side check run before a submission leaves the
// process. Backends themselves accept whatever they are given.
func (s Submission) Validate() error {
	if s.Fingerprint == "" {
		return errclass.ErrInvalidRecord.WithMessage("fingerprint must not be empty")
	}
	if s.CapturedAt.IsZero() {
		return errclass.ErrInvalidRecord.WithMessage("captured_at must be set")
	}
	if err := ValidateSubmitterID(s.SubmitterID); err != nil {
		return err
	}
	if s.Geolocation != nil {
		return s.Geolocation.Validate()
	}
	return nil
}
