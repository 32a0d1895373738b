package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birthmark-protocol/birthmark/internal/batch"
	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

var fixed = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newSubmitter(b ledger.Backend) *batch.Submitter {
	return batch.New(fingerprint.New(fingerprint.WithClock(func() time.Time { return fixed })), b, model.AlgorithmSHA256)
}

func TestSubmit_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.raw")
	require.NoError(t, os.WriteFile(path, []byte("raw sensor bytes"), 0644))

	items := []batch.Item{
		{Data: []byte("one"), SubmitterID: "camera_001"},
		{Path: path, SubmitterID: "camera_001", Geolocation: model.NewGeolocation(45.5, -122.6)},
		{Data: []byte("three"), SubmitterID: "camera_002"},
	}
	results, err := newSubmitter(mem).Submit(ctx, items)
	require.NoError(t, err)
	require.Len(t, results, 3)

	want, err := fingerprint.Fingerprint([]byte("raw sensor bytes"), model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, want.Digest, results[1].Fingerprint)
	assert.Equal(t, path, results[1].Path)

	for i, r := range results {
		assert.Equal(t, fixed, r.CapturedAt)
		rec, err := mem.Lookup(ctx, r.Fingerprint)
		require.NoError(t, err)
		require.NotNil(t, rec, "item %d", i)
		assert.Equal(t, r.TransactionID, rec.TxID())
	}
	assert.Equal(t, "mock_tx_00000001", results[0].TransactionID)
	assert.Equal(t, "mock_tx_00000003", results[2].TransactionID)
}

func TestSubmit_FingerprintFailureSubmitsNothing(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	items := []batch.Item{
		{Data: []byte("ok"), SubmitterID: "c"},
		{Path: filepath.Join(t.TempDir(), "missing.raw"), SubmitterID: "c"},
	}

	_, err := newSubmitter(mem).Submit(ctx, items)
	require.ErrorIs(t, err, errclass.ErrSourceUnavailable)

	st, err := mem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.TotalTransactions)
}

func TestSubmit_InvalidSubmitter(t *testing.T) {
	_, err := newSubmitter(ledger.NewMemoryLedger(ledger.MemoryOptions{})).Submit(context.Background(),
		[]batch.Item{{Data: []byte("x"), SubmitterID: "  "}})
	require.ErrorIs(t, err, errclass.ErrInvalidRecord)
}

func TestSubmit_DataAndPath(t *testing.T) {
	_, err := newSubmitter(ledger.NewMemoryLedger(ledger.MemoryOptions{})).Submit(context.Background(),
		[]batch.Item{{Data: []byte("x"), Path: "y", SubmitterID: "c"}})
	require.ErrorIs(t, err, errclass.ErrInvalidRecord)
}

func TestSubmit_Empty(t *testing.T) {
	results, err := newSubmitter(ledger.NewMemoryLedger(ledger.MemoryOptions{})).Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

type flakyBackend struct {
	*ledger.MemoryLedger
	failAt int
}

func (f *flakyBackend) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	var ids []string
	for i, s := range subs {
		if i == f.failAt {
			return ids, errclass.ErrSubmissionFailed.WithMessage("ledger unavailable")
		}
		id, err := f.Submit(ctx, s)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func TestSubmit_PartialFailure(t *testing.T) {
	ctx := context.Background()
	fb := &flakyBackend{MemoryLedger: ledger.NewMemoryLedger(ledger.MemoryOptions{}), failAt: 2}
	items := []batch.Item{
		{Data: []byte("a"), SubmitterID: "c"},
		{Data: []byte("b"), SubmitterID: "c"},
		{Data: []byte("c"), SubmitterID: "c"},
	}

	results, err := newSubmitter(fb).Submit(ctx, items)
	require.ErrorIs(t, err, errclass.ErrSubmissionFailed)
	require.Len(t, results, 2)
	for _, r := range results {
		rec, err := fb.Lookup(ctx, r.Fingerprint)
		require.NoError(t, err)
		assert.NotNil(t, rec)
	}
}

type extraIDsBackend struct {
	*ledger.MemoryLedger
}

func (e *extraIDsBackend) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	ids, err := e.MemoryLedger.SubmitBatch(ctx, subs)
	return append(ids, "stray_1", "stray_2"), err
}

func TestSubmit_BackendReturnsExtraIDs(t *testing.T) {
	b := &extraIDsBackend{MemoryLedger: ledger.NewMemoryLedger(ledger.MemoryOptions{})}

	var results []batch.Result
	var err error
	require.NotPanics(t, func() {
		results, err = newSubmitter(b).Submit(context.Background(), []batch.Item{{Data: []byte("a"), SubmitterID: "c"}})
	})
	require.ErrorIs(t, err, errclass.ErrSubmissionFailed)
	require.Len(t, results, 1)
	assert.Equal(t, "mock_tx_00000001", results[0].TransactionID)
}

func TestSubmitSubmissions(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	subs := []model.Submission{
		{Fingerprint: "hash1", CapturedAt: fixed, SubmitterID: "camera_001"},
		{Fingerprint: "hash2", CapturedAt: fixed, SubmitterID: "camera_001"},
	}

	ids, err := newSubmitter(mem).SubmitSubmissions(ctx, subs)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock_tx_00000001", "mock_tx_00000002"}, ids)
}

func TestSubmit_ReportsProgress(t *testing.T) {
	var steps []string
	cb := func(op string, current, total int, message string) {
		assert.Equal(t, "fingerprint", op)
		assert.Equal(t, 2, total)
		steps = append(steps, message)
	}
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0644))

	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	_, err := newSubmitter(mem).WithProgress(cb).Submit(context.Background(), []batch.Item{
		{Path: a, SubmitterID: "camera_001"},
		{Path: b, SubmitterID: "camera_001"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, steps)
}

type memJournal struct {
	entries []string
	fail    bool
}

func (j *memJournal) Append(eventType model.JournalEventType, fp, txID, _ string, details map[string]any) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.entries = append(j.entries, string(eventType)+" "+fp[:8]+" "+txID)
	return nil
}

func TestSubmit_JournalsCommittedPrefix(t *testing.T) {
	ctx := context.Background()
	fb := &flakyBackend{MemoryLedger: ledger.NewMemoryLedger(ledger.MemoryOptions{}), failAt: 1}
	j := &memJournal{}

	_, err := newSubmitter(fb).WithJournal(j).Submit(ctx, []batch.Item{
		{Data: []byte("a"), SubmitterID: "c"},
		{Data: []byte("b"), SubmitterID: "c"},
	})
	require.Error(t, err)
	require.Len(t, j.entries, 1)
	assert.Contains(t, j.entries[0], "batch_submit")
	assert.Contains(t, j.entries[0], "mock_tx_00000001")
}

func TestSubmit_JournalFailureIsNotFatal(t *testing.T) {
	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	results, err := newSubmitter(mem).WithJournal(&memJournal{fail: true}).Submit(context.Background(), []batch.Item{
		{Data: []byte("a"), SubmitterID: "c"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
