// Package doctor diagnoses a birthmark installation: backend reachability,
// journal integrity and the sidecars under scanned directories.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/sidecar"
	"github.com/birthmark-protocol/birthmark/pkg/fsutil"
)

// Severity levels. Critical findings make the result unhealthy.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// zeroFingerprint is looked up when the backend has no stats endpoint.
var zeroFingerprint = strings.Repeat("0", 64)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
	Sidecars int       `json:"sidecars_checked"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical {
		r.Healthy = false
	}
}

// Options selects what Check inspects beyond the backend.
type Options struct {
	JournalPath string
	ScanDirs    []string
	Engine      *fingerprint.Engine
}

// Doctor performs health checks.
type Doctor struct {
	backend ledger.Backend
	opts    Options
}

// New creates a doctor for b.
func New(b ledger.Backend, opts Options) *Doctor {
	if opts.Engine == nil {
		opts.Engine = fingerprint.New()
	}
	return &Doctor{backend: b, opts: opts}
}

// Check runs all diagnostic checks. strict re-fingerprints every media
// file that has a sidecar and confirms its record is on the ledger.
func (d *Doctor) Check(ctx context.Context, strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkBackend(ctx, result)
	d.checkJournal(result)
	for _, dir := range d.opts.ScanDirs {
		if err := d.scan(ctx, dir, strict, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (d *Doctor) checkBackend(ctx context.Context, result *Result) {
	var err error
	if sr, ok := d.backend.(ledger.StatsReporter); ok {
		_, err = sr.Stats(ctx)
	} else {
		_, err = d.backend.Lookup(ctx, zeroFingerprint)
	}
	if err != nil {
		result.add(Finding{
			Category:    "backend",
			Description: fmt.Sprintf("backend unreachable: %v", err),
			Severity:    SeverityCritical,
		})
	}
}

func (d *Doctor) checkJournal(result *Result) {
	path := d.opts.JournalPath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		result.add(Finding{
			Category:    "journal",
			Description: "journal has no entries yet",
			Severity:    SeverityInfo,
			Path:        path,
		})
		return
	}
	if _, err := audit.VerifyChain(path); err != nil {
		result.add(Finding{
			Category:    "journal",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        path,
		})
	}
}

func (d *Doctor) scan(ctx context.Context, root string, strict bool, result *Result) error {
	media := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, fsutil.TempPrefix) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", name),
				Severity:    SeverityInfo,
				Path:        path,
			})
			return nil
		}
		if m, _, ok := sidecar.MediaPathFor(path); ok {
			media[m] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	paths := make([]string, 0, len(media))
	for m := range media {
		paths = append(paths, m)
	}
	sort.Strings(paths)
	for _, m := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.checkSidecar(ctx, m, strict, result)
	}
	return nil
}

func (d *Doctor) checkSidecar(ctx context.Context, media string, strict bool, result *Result) {
	result.Sidecars++
	env, format, err := sidecar.Read(media)
	if err != nil {
		result.add(Finding{
			Category:    "sidecar",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        media,
		})
		return
	}
	sidecarPath := sidecar.PathFor(media, format)

	if _, err := os.Stat(media); errors.Is(err, fs.ErrNotExist) {
		result.add(Finding{
			Category:    "sidecar",
			Description: "sidecar without media file",
			Severity:    SeverityWarning,
			Path:        sidecarPath,
		})
		return
	}
	if !strict {
		return
	}

	res, err := d.opts.Engine.FingerprintFile(media, env.Algorithm)
	if err != nil {
		result.add(Finding{
			Category:    "media",
			Description: err.Error(),
			Severity:    SeverityWarning,
			Path:        media,
		})
		return
	}
	if res.Digest != env.Record.Fingerprint {
		result.add(Finding{
			Category:    "media",
			Description: "media no longer matches its sidecar fingerprint",
			Severity:    SeverityCritical,
			Path:        media,
		})
		return
	}
	rec, err := d.backend.Lookup(ctx, res.Digest)
	if err != nil {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("lookup failed: %v", err),
			Severity:    SeverityWarning,
			Path:        media,
		})
		return
	}
	if !env.Record.Accepted() {
		desc := "captured without ledger submission"
		if rec != nil {
			desc = fmt.Sprintf("ledger holds transaction %s the sidecar does not carry", rec.TxID())
		}
		result.add(Finding{
			Category:    "ledger",
			Description: desc,
			Severity:    SeverityInfo,
			Path:        media,
		})
		return
	}
	if rec == nil {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("fingerprint %s not found on ledger", res.Digest),
			Severity:    SeverityCritical,
			Path:        media,
		})
	}
}
