// Package batch fingerprints many items and submits them in one ledger
// batch call.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/model"
	"github.com/birthmark-protocol/birthmark/pkg/progress"
)

// Item is one piece of content to record. Exactly one of Data or Path is
// used; Path is streamed from disk.
type Item struct {
	Data        []byte
	Path        string
	SubmitterID string
	Geolocation *model.Geolocation
}

// Result reports one submitted item, in input order.
type Result struct {
	Path          string    `json:"path,omitempty"`
	Fingerprint   string    `json:"fingerprint"`
	CapturedAt    time.Time `json:"captured_at"`
	TransactionID string    `json:"transaction_id"`
}

// Submitter couples a fingerprint engine with a backend.
type Submitter struct {
	engine    *fingerprint.Engine
	backend   ledger.Backend
	algorithm model.Algorithm
	progress  progress.Callback
	journal   Journal
}

// Journal receives one entry per committed item. audit.FileAppender
// implements it.
type Journal interface {
	Append(eventType model.JournalEventType, fingerprint, txID, network string, details map[string]any) error
}

// New creates a Submitter. A nil engine uses fingerprint.New().
func New(engine *fingerprint.Engine, backend ledger.Backend, alg model.Algorithm) *Submitter {
	if engine == nil {
		engine = fingerprint.New()
	}
	if alg == "" {
		alg = model.DefaultAlgorithm
	}
	return &Submitter{engine: engine, backend: backend, algorithm: alg}
}

// WithJournal appends a batch_submit entry for every committed item.
// Journal failures are logged; the ledger already holds the records.
func (s *Submitter) WithJournal(j Journal) *Submitter {
	s.journal = j
	return s
}

// WithProgress reports one "fingerprint" step per item.
func (s *Submitter) WithProgress(cb progress.Callback) *Submitter {
	s.progress = cb
	return s
}

// Submit fingerprints every item, then issues a single SubmitBatch. Any
// fingerprinting or validation failure aborts before the ledger is
// touched. On a partial ledger failure the results for the committed
// prefix are returned with the error.
func (s *Submitter) Submit(ctx context.Context, items []Item) ([]Result, error) {
	subs := make([]model.Submission, len(items))
	results := make([]Result, len(items))
	p := progress.New("fingerprint", len(items), s.progress)
	for i, item := range items {
		res, err := s.fingerprint(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		sub := model.Submission{
			Fingerprint: res.Digest,
			CapturedAt:  res.CapturedAt,
			SubmitterID: model.NormalizeSubmitterID(item.SubmitterID),
			Geolocation: item.Geolocation,
		}
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		subs[i] = sub
		results[i] = Result{Path: item.Path, Fingerprint: res.Digest, CapturedAt: res.CapturedAt}
		p.Step(item.Path)
	}

	ids, err := s.SubmitSubmissions(ctx, subs)
	for i, id := range ids {
		results[i].TransactionID = id
	}
	s.record(results[:len(ids)])
	if err != nil {
		return results[:len(ids)], err
	}
	return results, nil
}

// SubmitSubmissions submits already fingerprinted tuples.
func (s *Submitter) SubmitSubmissions(ctx context.Context, subs []model.Submission) ([]string, error) {
	if len(subs) == 0 {
		return []string{}, nil
	}
	ids, err := s.backend.SubmitBatch(ctx, subs)
	ids, err = ledger.CommittedPrefix(ids, len(subs), err)
	if err != nil {
		logging.Warn("batch partially committed", map[string]any{
			"size": len(subs), "committed": len(ids), "error": err.Error(),
		})
		return ids, err
	}
	logging.Debug("batch submitted", map[string]any{"size": len(subs)})
	return ids, nil
}

func (s *Submitter) record(results []Result) {
	if s.journal == nil {
		return
	}
	for i, r := range results {
		if err := s.journal.Append(model.EventTypeBatchSubmit, r.Fingerprint, r.TransactionID, "", map[string]any{
			"index": i, "path": r.Path,
		}); err != nil {
			logging.ErrorErr("journal append failed", err, map[string]any{"fingerprint": r.Fingerprint})
			return
		}
	}
}

func (s *Submitter) fingerprint(item Item) (fingerprint.Result, error) {
	switch {
	case item.Path != "" && item.Data != nil:
		return fingerprint.Result{}, errclass.ErrInvalidRecord.WithMessage("item has both data and path")
	case item.Path != "":
		return s.engine.FingerprintFile(item.Path, s.algorithm)
	default:
		return s.engine.Fingerprint(item.Data, s.algorithm)
	}
}
