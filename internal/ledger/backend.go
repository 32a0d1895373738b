// Package ledger defines the backend contract for recording and looking up
// content fingerprints, and the backends that implement it.
package ledger

import (
	"context"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// Backend is the contract every ledger implementation offers.
//
// Submit accepts one submission and returns its transaction id. It fails
// with errclass.ErrSubmissionFailed when the write cannot be accepted.
//
// Lookup returns the stored record for a fingerprint, or (nil, nil) when
// the fingerprint is unknown. It fails with errclass.ErrLookupFailed only
// on backend faults.
//
// SubmitBatch submits in input order and returns one id per submission in
// the same order. Batches are not atomic: on failure it returns the ids of
// the submissions accepted so far together with the error, and those stay
// committed.
type Backend interface {
	Submit(ctx context.Context, s model.Submission) (string, error)
	Lookup(ctx context.Context, fingerprint string) (*model.Record, error)
	SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error)
}

// StatsReporter is implemented by backends that expose diagnostic counts.
// It is not part of the portable contract.
type StatsReporter interface {
	Stats(ctx context.Context) (model.Stats, error)
}

// submitEach is the sequential batch strategy shared by backends without a
// native batch call.
func submitEach(ctx context.Context, b Backend, subs []model.Submission) ([]string, error) {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		id, err := b.Submit(ctx, s)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CommittedPrefix checks ids returned by SubmitBatch for n submissions. It
// drops ids past n and turns a count mismatch on success into
// errclass.ErrSubmissionFailed, so ids[i] always belongs to submission i.
func CommittedPrefix(ids []string, n int, err error) ([]string, error) {
	got := len(ids)
	ids = ids[:min(got, n)]
	if err == nil && got != n {
		err = errclass.ErrSubmissionFailed.WithMessagef("backend returned %d ids for %d submissions", got, n)
	}
	return ids, err
}
