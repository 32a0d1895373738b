// Package uuidutil generates the random ids that tag HTTP requests and
// webhook deliveries.
package uuidutil

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

var v4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// NewV4 returns a random RFC 4122 version 4 UUID in lowercase hex.
// It panics if the system random source fails.
func NewV4() string {
	var u [16]byte
	if _, err := rand.Read(u[:]); err != nil {
		panic("birthmark: crypto/rand failed: " + err.Error())
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// IsV4 reports whether s is a lowercase version 4 UUID as NewV4 produces.
func IsV4(s string) bool {
	return v4Pattern.MatchString(s)
}
