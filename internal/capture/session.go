// Package capture runs the authenticated capture workflow: take raw bytes
// from a source, fingerprint them before anything else touches them,
// record the fingerprint, then store the media with its sidecar.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/sidecar"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/fsutil"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// Journal receives one entry per accepted capture. audit.FileAppender
// implements it.
type Journal interface {
	Append(eventType model.JournalEventType, fingerprint, txID, network string, details map[string]any) error
}

// Session holds the per-device capture settings.
type Session struct {
	SubmitterID   string
	Algorithm     model.Algorithm
	AutoRecord    bool
	SidecarFormat model.SidecarFormat

	engine  *fingerprint.Engine
	backend ledger.Backend
	journal Journal
}

// Option configures a Session.
type Option func(*Session)

// WithEngine replaces the default fingerprint engine.
func WithEngine(e *fingerprint.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithJournal records accepted captures in j.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

// NewSession creates a session that records to backend. AutoRecord is on
// and sidecars are JSON unless changed afterwards.
func NewSession(submitterID string, backend ledger.Backend, opts ...Option) (*Session, error) {
	id := model.NormalizeSubmitterID(submitterID)
	if err := model.ValidateSubmitterID(id); err != nil {
		return nil, err
	}
	s := &Session{
		SubmitterID:   id,
		Algorithm:     model.DefaultAlgorithm,
		AutoRecord:    true,
		SidecarFormat: model.SidecarJSON,
		backend:       backend,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = fingerprint.New()
	}
	return s, nil
}

// CaptureResult describes one completed capture.
type CaptureResult struct {
	MediaPath   string          `json:"media_path"`
	SidecarPath string          `json:"sidecar_path,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Algorithm   model.Algorithm `json:"algorithm"`
	CapturedAt  time.Time       `json:"captured_at"`
	Size        int64           `json:"size"`
	SubmitterID string          `json:"submitter_id"`
	// TransactionID is set whenever the ledger accepted the submission,
	// even if the record could not be read back.
	TransactionID string `json:"transaction_id,omitempty"`
	// Record is the accepted ledger record. It is unaccepted, without a
	// transaction id or block, when AutoRecord is off or the ledger could
	// not return the record it accepted.
	Record *model.Record `json:"record"`
}

// CaptureAuthenticated runs one capture from src into outputPath. When
// submission fails nothing is written to disk.
func (s *Session) CaptureAuthenticated(ctx context.Context, src Source, outputPath string, geo *model.Geolocation) (*CaptureResult, error) {
	data, err := src.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	fp, err := s.engine.Fingerprint(data, s.Algorithm)
	if err != nil {
		return nil, err
	}

	sub := model.Submission{
		Fingerprint: fp.Digest,
		CapturedAt:  fp.CapturedAt,
		SubmitterID: s.SubmitterID,
		Geolocation: geo,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	rec := unaccepted(sub)
	var txID string
	if s.AutoRecord {
		rec, txID, err = s.submit(ctx, sub, model.EventTypeCapture)
		if err != nil {
			return nil, err
		}
	}

	if err := fsutil.AtomicWrite(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}

	result := &CaptureResult{
		MediaPath:     outputPath,
		Fingerprint:   fp.Digest,
		Algorithm:     fp.Algorithm,
		CapturedAt:    fp.CapturedAt,
		Size:          fp.Size,
		SubmitterID:   s.SubmitterID,
		TransactionID: txID,
		Record:        rec,
	}

	env, err := sidecar.Seal(rec, fp.Algorithm)
	if err != nil {
		return nil, err
	}
	result.SidecarPath, err = sidecar.Write(outputPath, env, s.SidecarFormat)
	if err != nil {
		return nil, err
	}

	logging.Info("capture stored", map[string]any{
		"fingerprint": fp.Digest, "path": outputPath, "recorded": txID != "",
	})
	return result, nil
}

// RecordFile fingerprints media that already exists at path, submits it
// and writes its sidecar. AutoRecord is ignored.
func (s *Session) RecordFile(ctx context.Context, path string, geo *model.Geolocation) (*CaptureResult, error) {
	fp, err := s.engine.FingerprintFile(path, s.Algorithm)
	if err != nil {
		return nil, err
	}
	sub := model.Submission{
		Fingerprint: fp.Digest,
		CapturedAt:  fp.CapturedAt,
		SubmitterID: s.SubmitterID,
		Geolocation: geo,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	rec, txID, err := s.submit(ctx, sub, model.EventTypeSubmit)
	if err != nil {
		return nil, err
	}
	result := &CaptureResult{
		MediaPath:     path,
		Fingerprint:   fp.Digest,
		Algorithm:     fp.Algorithm,
		CapturedAt:    fp.CapturedAt,
		Size:          fp.Size,
		SubmitterID:   s.SubmitterID,
		TransactionID: txID,
		Record:        rec,
	}

	env, err := sidecar.Seal(rec, fp.Algorithm)
	if err != nil {
		return nil, err
	}
	result.SidecarPath, err = sidecar.Write(path, env, s.SidecarFormat)
	if err != nil {
		return result, err
	}
	return result, nil
}

func unaccepted(sub model.Submission) *model.Record {
	return &model.Record{
		Fingerprint: sub.Fingerprint,
		CapturedAt:  sub.CapturedAt,
		SubmitterID: sub.SubmitterID,
		Geolocation: sub.Geolocation,
	}
}

// submit records sub and returns the record as the ledger holds it with
// its transaction id. When the ledger accepts but cannot return that
// record, the record comes back unaccepted and only txID carries the
// acceptance.
func (s *Session) submit(ctx context.Context, sub model.Submission, event model.JournalEventType) (*model.Record, string, error) {
	txID, err := s.backend.Submit(ctx, sub)
	if err != nil {
		return nil, "", err
	}

	rec, err := s.backend.Lookup(ctx, sub.Fingerprint)
	if err != nil || rec == nil || !rec.Accepted() || rec.TxID() != txID {
		fields := map[string]any{"fingerprint": sub.Fingerprint, "transaction_id": txID}
		if err != nil {
			fields["error"] = err.Error()
		}
		logging.Warn("accepted record not readable, sidecar left unaccepted", fields)
		rec = unaccepted(sub)
	}

	if s.journal != nil {
		if err := s.journal.Append(event, sub.Fingerprint, txID, rec.NetworkTag, map[string]any{
			"submitter_id": sub.SubmitterID,
		}); err != nil {
			logging.ErrorErr("journal append failed", err, map[string]any{"fingerprint": sub.Fingerprint})
		}
	}
	return rec, txID, nil
}

// Sidecar comparison outcomes.
const (
	SidecarAbsent   = "absent"
	SidecarMatch    = "match"
	SidecarMismatch = "mismatch"
	SidecarCorrupt  = "corrupt"
)

// Verification is the outcome of VerifyFile.
type Verification struct {
	Path        string          `json:"path"`
	Fingerprint string          `json:"fingerprint"`
	Algorithm   model.Algorithm `json:"algorithm"`
	// Authentic is true iff the ledger holds the fingerprint.
	Authentic     bool          `json:"authentic"`
	Record        *model.Record `json:"record,omitempty"`
	SidecarStatus string        `json:"sidecar_status"`
	SidecarDetail string        `json:"sidecar_detail,omitempty"`
}

// VerifyFile fingerprints path with the algorithm named by its sidecar,
// falling back to the session algorithm, and looks the result up.
func (s *Session) VerifyFile(ctx context.Context, path string) (*Verification, error) {
	v := &Verification{Path: path, SidecarStatus: SidecarAbsent}

	alg := s.Algorithm
	env, _, serr := sidecar.Read(path)
	switch {
	case serr == nil:
		if env.Algorithm != "" {
			alg = env.Algorithm
		}
	case errors.Is(serr, fs.ErrNotExist):
	case errors.Is(serr, errclass.ErrSidecarCorrupt):
		v.SidecarStatus = SidecarCorrupt
		v.SidecarDetail = serr.Error()
	default:
		return nil, serr
	}

	fp, err := s.engine.FingerprintFile(path, alg)
	if err != nil {
		return nil, err
	}
	v.Fingerprint = fp.Digest
	v.Algorithm = fp.Algorithm

	rec, err := s.backend.Lookup(ctx, fp.Digest)
	if err != nil {
		return nil, err
	}
	v.Authentic = rec != nil
	v.Record = rec

	if env != nil {
		v.SidecarStatus, v.SidecarDetail = compareSidecar(env, fp.Digest, rec)
	}
	return v, nil
}

func compareSidecar(env *sidecar.Envelope, digest string, rec *model.Record) (string, string) {
	if env.Record.Fingerprint != digest {
		return SidecarMismatch, "media bytes differ from the fingerprint in the sidecar"
	}
	if rec != nil && env.Record.Accepted() && env.Record.TxID() != rec.TxID() {
		return SidecarMismatch, fmt.Sprintf("sidecar transaction %s, ledger holds %s", env.Record.TxID(), rec.TxID())
	}
	return SidecarMatch, ""
}
