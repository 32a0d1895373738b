// Package progress reports per-item progress for batch fingerprinting.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Callback receives one update per completed step.
type Callback func(op string, current, total int, message string)

// Noop discards updates.
func Noop(op string, current, total int, message string) {}

// Progress counts completed steps of one operation. Safe for concurrent
// use.
type Progress struct {
	Op    string
	Total int

	mu      sync.Mutex
	current int
	cb      Callback
}

// New creates a tracker. A nil cb is Noop.
func New(op string, total int, cb Callback) *Progress {
	if cb == nil {
		cb = Noop
	}
	return &Progress{Op: op, Total: total, cb: cb}
}

// Step marks one more item done.
func (p *Progress) Step(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.cb(p.Op, p.current, p.Total, message)
}

// Done jumps to Total.
func (p *Progress) Done(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.Total
	p.cb(p.Op, p.current, p.Total, message)
}

// Current returns the number of steps reported so far.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

const barWidth = 30

// Bar renders updates as a single redrawn line, typically on stderr.
type Bar struct {
	mu      sync.Mutex
	w       io.Writer
	lastLen int
	open    bool
}

// NewBar draws on w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

// Callback adapts the bar to a progress Callback. The line is closed with
// a newline once current reaches total.
func (b *Bar) Callback() Callback {
	return func(op string, current, total int, message string) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.render(op, current, total, message)
		if current >= total {
			fmt.Fprintln(b.w)
			b.lastLen = 0
			b.open = false
		}
	}
}

// Finish terminates a line left open by an aborted operation.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		fmt.Fprintln(b.w)
		b.lastLen = 0
		b.open = false
	}
}

func (b *Bar) render(op string, current, total int, message string) {
	if total <= 0 {
		total = 1
	}
	if current > total {
		current = total
	}
	filled := barWidth * current / total
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d (%.0f%%)", op, bar, current, total,
		float64(current)/float64(total)*100)
	if message != "" {
		line += " " + message
	}

	pad := ""
	if n := b.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(b.w, "\r"+line+pad)
	b.lastLen = len(line)
	b.open = true
}
