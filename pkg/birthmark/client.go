package birthmark

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/batch"
	"github.com/birthmark-protocol/birthmark/internal/capture"
	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/sidecar"
	"github.com/birthmark-protocol/birthmark/pkg/config"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// Result types returned by Client methods.
type (
	Fingerprint   = fingerprint.Result
	CaptureResult = capture.CaptureResult
	Verification  = capture.Verification
	BatchResult   = batch.Result
)

// verifierID stands in for the submitter when a Client only verifies.
const verifierID = "verifier"

// Options configures a Client. Zero fields take config.Default values.
type Options struct {
	SubmitterID    string
	Backend        string            // "memory", "mock" or "gateway"
	BackendOptions map[string]string // passed to the backend factory
	Algorithm      string            // digest name, e.g. sha256 or blake3
	SidecarFormat  string            // json, cbor, none
	JournalPath    string            // empty disables the journal
	// Registry receives backend and fingerprint metrics when set.
	Registry *metrics.Registry
}

// Client records and verifies media on one ledger backend.
type Client struct {
	cfg       config.Config
	backend   ledger.Backend
	engine    *fingerprint.Engine
	session   *capture.Session
	submitter bool
	journal   *audit.FileAppender
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	cfg := config.Default()
	if opts.Backend != "" {
		cfg.Backend.Name = opts.Backend
	}
	if opts.BackendOptions != nil {
		cfg.Backend.Options = maps.Clone(opts.BackendOptions)
	}
	if opts.Algorithm != "" {
		cfg.Fingerprint.Algorithm = opts.Algorithm
	}
	if opts.SidecarFormat != "" {
		cfg.Sidecar.Format = opts.SidecarFormat
	}
	cfg.Submitter.ID = opts.SubmitterID
	cfg.Journal.Path = opts.JournalPath
	return build(cfg, opts.Registry)
}

// Open builds a Client from a config file with BIRTHMARK_* overrides. An
// empty path uses config.DefaultPath.
func Open(configPath string) (*Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return build(cfg, nil)
}

func build(cfg *config.Config, reg *metrics.Registry) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alg, err := fingerprint.ParseAlgorithm(cfg.Fingerprint.Algorithm)
	if err != nil {
		return nil, err
	}
	format, err := sidecar.ParseFormat(cfg.Sidecar.Format)
	if err != nil {
		return nil, err
	}
	b, err := ledger.Resolve(cfg.Backend.Name, ledger.Config(cfg.Backend.Options))
	if err != nil {
		return nil, fmt.Errorf("birthmark: %w", err)
	}

	engineOpts := []fingerprint.Option{}
	if reg != nil {
		b = ledger.Instrument(b, strings.ToLower(strings.TrimSpace(cfg.Backend.Name)), reg)
		engineOpts = append(engineOpts, fingerprint.WithMetrics(reg))
	}
	c := &Client{
		cfg:       *cfg,
		backend:   b,
		engine:    fingerprint.New(engineOpts...),
		submitter: cfg.Submitter.ID != "",
	}

	sessionOpts := []capture.Option{capture.WithEngine(c.engine)}
	if cfg.Journal.Path != "" {
		c.journal = audit.NewFileAppender(cfg.Journal.Path)
		sessionOpts = append(sessionOpts, capture.WithJournal(c.journal))
	}
	id := cfg.Submitter.ID
	if !c.submitter {
		id = verifierID
	}
	c.session, err = capture.NewSession(id, b, sessionOpts...)
	if err != nil {
		return nil, err
	}
	c.session.Algorithm = alg
	c.session.SidecarFormat = format
	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() config.Config {
	cfg := c.cfg
	cfg.Backend.Options = maps.Clone(c.cfg.Backend.Options)
	return cfg
}

// SubmitterID returns the normalized submitter id, "" for a verify-only
// Client.
func (c *Client) SubmitterID() string {
	if !c.submitter {
		return ""
	}
	return c.session.SubmitterID
}

func (c *Client) requireSubmitter() error {
	if !c.submitter {
		return errclass.ErrMissingConfiguration.WithMessage("submitter id required to record")
	}
	return nil
}

// FingerprintFile hashes the file at path with the configured algorithm.
func (c *Client) FingerprintFile(path string) (Fingerprint, error) {
	return c.engine.FingerprintFile(path, c.session.Algorithm)
}

// Capture stores data at outputPath, records it and writes its sidecar.
// Nothing is written when the ledger rejects the submission.
func (c *Client) Capture(ctx context.Context, data []byte, outputPath string, geo *model.Geolocation) (*CaptureResult, error) {
	if err := c.requireSubmitter(); err != nil {
		return nil, err
	}
	return c.session.CaptureAuthenticated(ctx, capture.BytesSource(data), outputPath, geo)
}

// Record submits media that already exists at path and writes its
// sidecar.
func (c *Client) Record(ctx context.Context, path string, geo *model.Geolocation) (*CaptureResult, error) {
	if err := c.requireSubmitter(); err != nil {
		return nil, err
	}
	return c.session.RecordFile(ctx, path, geo)
}

// RecordFiles fingerprints every path, then submits them in one batch. On
// a partial failure the committed prefix is returned with the error.
func (c *Client) RecordFiles(ctx context.Context, paths []string) ([]BatchResult, error) {
	if err := c.requireSubmitter(); err != nil {
		return nil, err
	}
	items := make([]batch.Item, len(paths))
	for i, p := range paths {
		items[i] = batch.Item{Path: p, SubmitterID: c.session.SubmitterID}
	}
	sub := batch.New(c.engine, c.backend, c.session.Algorithm)
	if c.journal != nil {
		sub.WithJournal(c.journal)
	}
	return sub.Submit(ctx, items)
}

// Verify fingerprints path and reports whether the ledger holds it, along
// with how its sidecar compares.
func (c *Client) Verify(ctx context.Context, path string) (*Verification, error) {
	return c.session.VerifyFile(ctx, path)
}

// Lookup returns the record for a fingerprint, nil when absent.
func (c *Client) Lookup(ctx context.Context, fp string) (*model.Record, error) {
	return c.backend.Lookup(ctx, fp)
}

// Stats returns backend counters. Backends without stats return
// ErrLookupFailed.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	sr, ok := c.backend.(ledger.StatsReporter)
	if !ok {
		return model.Stats{}, errclass.ErrLookupFailed.WithMessagef("backend %s does not report stats", c.cfg.Backend.Name)
	}
	return sr.Stats(ctx)
}
