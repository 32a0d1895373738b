//go:build windows

package audit

import "os"

// Windows has no flock; the appender mutex covers a single process.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
