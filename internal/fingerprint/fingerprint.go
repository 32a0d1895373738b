// Package fingerprint computes content fingerprints: lower-case hex digests
// of raw media bytes, stamped with the time they were computed.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// ChunkSize bounds the bytes held in memory while streaming.
const ChunkSize = 8 * 1024

// Result is one computed fingerprint. CapturedAt is the engine's clock at
// call time and has no cryptographic binding to the digest.
type Result struct {
	Digest     string          `json:"fingerprint"`
	Algorithm  model.Algorithm `json:"algorithm"`
	CapturedAt time.Time       `json:"captured_at"`
	Size       int64           `json:"size"`
}

// Engine computes fingerprints. The zero value is not usable; use New.
type Engine struct {
	now     func() time.Time
	metrics *metrics.Registry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the capture clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics counts hashed bytes per algorithm on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = reg }
}

// New returns an Engine using the wall clock.
func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fingerprint hashes an in-memory byte slice.
func (e *Engine) Fingerprint(data []byte, alg model.Algorithm) (Result, error) {
	h, a, err := newHasher(alg)
	if err != nil {
		return Result{}, err
	}
	h.Write(data)
	return e.result(h.Sum(nil), a, int64(len(data))), nil
}

// FingerprintReader hashes r in ChunkSize pieces so peak memory stays
// bounded for large RAW files. Read failures surface as SourceUnavailable.
func (e *Engine) FingerprintReader(r io.Reader, alg model.Algorithm) (Result, error) {
	h, a, err := newHasher(alg)
	if err != nil {
		return Result{}, err
	}

	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return Result{}, errclass.ErrSourceUnavailable.WithMessagef("read after %d bytes: %v", total, readErr)
		}
	}
	return e.result(h.Sum(nil), a, total), nil
}

// FingerprintFile streams the file at path. The algorithm is checked before
// the file is opened.
func (e *Engine) FingerprintFile(path string, alg model.Algorithm) (Result, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errclass.ErrSourceUnavailable.WithMessagef("open %s: %v", path, err)
	}
	defer f.Close()

	res, err := e.FingerprintReader(f, alg)
	if err != nil {
		return Result{}, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return res, nil
}

func (e *Engine) result(sum []byte, alg model.Algorithm, size int64) Result {
	if e.metrics != nil {
		e.metrics.AddFingerprintBytes(string(alg), size)
	}
	return Result{
		Digest:     hex.EncodeToString(sum),
		Algorithm:  alg,
		CapturedAt: e.now().UTC(),
		Size:       size,
	}
}

// Verify recomputes the digest of data and compares it to expected with
// an exact, case-sensitive string comparison. Content hashes are not
// secrets, so no constant-time comparison is used.
func (e *Engine) Verify(data []byte, expected string, alg model.Algorithm) (bool, error) {
	res, err := e.Fingerprint(data, alg)
	if err != nil {
		return false, err
	}
	return res.Digest == expected, nil
}

// VerifyReader is Verify for streamed content.
func (e *Engine) VerifyReader(r io.Reader, expected string, alg model.Algorithm) (bool, error) {
	res, err := e.FingerprintReader(r, alg)
	if err != nil {
		return false, err
	}
	return res.Digest == expected, nil
}

var std = New()

// Fingerprint hashes data with the default engine.
func Fingerprint(data []byte, alg model.Algorithm) (Result, error) {
	return std.Fingerprint(data, alg)
}

// Verify checks data against expected with the default engine.
func Verify(data []byte, expected string, alg model.Algorithm) (bool, error) {
	return std.Verify(data, expected, alg)
}
