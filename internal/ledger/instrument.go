package ledger

import (
	"context"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// Instrument wraps b so every operation is counted, timed and, on
// failure, logged. Behavior is otherwise unchanged. The wrapper
// implements StatsReporter only when b does.
func Instrument(b Backend, name string, reg *metrics.Registry) Backend {
	ib := &instrumented{
		next: b,
		name: name,
		reg:  reg,
		log:  logging.WithFields(map[string]any{"backend": name}),
	}
	if sr, ok := b.(StatsReporter); ok {
		return &instrumentedStats{instrumented: ib, stats: sr}
	}
	return ib
}

type instrumented struct {
	next Backend
	name string
	reg  *metrics.Registry
	log  *logging.Logger
}

func (i *instrumented) Submit(ctx context.Context, s model.Submission) (string, error) {
	start := time.Now()
	id, err := i.next.Submit(ctx, s)
	i.observe(metrics.OpSubmit, err, start)
	if err != nil {
		i.log.ErrorErr("submit failed", err, map[string]any{"fingerprint": s.Fingerprint})
	}
	return id, err
}

func (i *instrumented) Lookup(ctx context.Context, fingerprint string) (*model.Record, error) {
	start := time.Now()
	rec, err := i.next.Lookup(ctx, fingerprint)
	switch {
	case err != nil:
		i.observe(metrics.OpLookup, err, start)
		i.log.ErrorErr("lookup failed", err, map[string]any{"fingerprint": fingerprint})
	case rec == nil:
		i.reg.ObserveOperation(i.name, metrics.OpLookup, "absent", time.Since(start))
	default:
		i.observe(metrics.OpLookup, nil, start)
	}
	return rec, err
}

func (i *instrumented) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	start := time.Now()
	ids, err := i.next.SubmitBatch(ctx, subs)
	i.observe(metrics.OpSubmitBatch, err, start)
	i.reg.ObserveBatch(len(subs))
	if err != nil {
		i.log.ErrorErr("batch submit failed", err, map[string]any{"size": len(subs), "committed": len(ids)})
	}
	return ids, err
}

func (i *instrumented) observe(op string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.reg.ObserveOperation(i.name, op, status, time.Since(start))
}

type instrumentedStats struct {
	*instrumented
	stats StatsReporter
}

func (i *instrumentedStats) Stats(ctx context.Context) (model.Stats, error) {
	return i.stats.Stats(ctx)
}
