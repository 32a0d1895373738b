// Package color provides terminal color output for the birthmark CLI.
// It respects NO_COLOR (https://no-color.org/) and only colors terminals.
package color

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	enabled bool
	once    sync.Once
)

// Init decides whether to color output. Colors are off when NO_COLOR is
// set, TERM is "dumb", noColorFlag is true, or stdout is not a terminal.
func Init(noColorFlag bool) {
	once.Do(func() {
		on := !noColorFlag
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			on = false
		}
		if os.Getenv("TERM") == "dumb" {
			on = false
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			on = false
		}
		mu.Lock()
		enabled = on
		mu.Unlock()
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Disable turns off color output.
func Disable() {
	Init(false)
	mu.Lock()
	enabled = false
	mu.Unlock()
}

// Enable turns on color output.
func Enable() {
	Init(false)
	mu.Lock()
	enabled = true
	mu.Unlock()
}

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + reset
}

// Success formats a success message in green.
func Success(s string) string { return wrap(green, s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return Success(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return wrap(red, s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return wrap(yellow, s) }

// Fingerprint formats a digest or transaction id in cyan.
func Fingerprint(s string) string { return wrap(cyan, s) }

// Header formats a header in bold.
func Header(s string) string { return wrap(bold, s) }

// Dim formats secondary information.
func Dim(s string) string { return wrap(dim, s) }
