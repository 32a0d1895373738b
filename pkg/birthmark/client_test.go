package birthmark_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/capture"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/server"
	"github.com/birthmark-protocol/birthmark/pkg/birthmark"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

func startLedger(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(server.New(ledger.NewMemoryLedger(ledger.MemoryOptions{}), server.Options{Registry: metrics.NewRegistry()}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestNew_Defaults(t *testing.T) {
	c, err := birthmark.New(birthmark.Options{SubmitterID: "  Camera_001 "})
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, "memory", cfg.Backend.Name)
	assert.Equal(t, "sha256", cfg.Fingerprint.Algorithm)
	assert.Equal(t, "json", cfg.Sidecar.Format)
	assert.Equal(t, "Camera_001", c.SubmitterID())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts birthmark.Options
		want error
	}{
		{"unknown backend", birthmark.Options{Backend: "ethereum"}, errclass.ErrUnknownBackend},
		{"gateway without endpoint", birthmark.Options{Backend: "gateway"}, errclass.ErrMissingConfiguration},
		{"algorithm", birthmark.Options{Algorithm: "md5"}, errclass.ErrUnsupportedAlgorithm},
		{"sidecar", birthmark.Options{SidecarFormat: "xml"}, errclass.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := birthmark.New(tt.opts)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCaptureAndVerify_SharedGateway(t *testing.T) {
	ctx := context.Background()
	endpoint := startLedger(t)
	gateway := map[string]string{"endpoint": endpoint}
	out := filepath.Join(t.TempDir(), "IMG_0001.raw")

	camera, err := birthmark.New(birthmark.Options{SubmitterID: "camera_001", Backend: "gateway", BackendOptions: gateway, SidecarFormat: "cbor"})
	require.NoError(t, err)
	res, err := camera.Capture(ctx, []byte("raw sensor frame"), out, model.NewGeolocation(45.5, -122.6))
	require.NoError(t, err)
	assert.Equal(t, "mock_tx_00000001", res.Record.TxID())
	assert.FileExists(t, out+".birthmark.cbor")

	verifier, err := birthmark.New(birthmark.Options{Backend: "gateway", BackendOptions: gateway})
	require.NoError(t, err)
	assert.Empty(t, verifier.SubmitterID())

	v, err := verifier.Verify(ctx, out)
	require.NoError(t, err)
	assert.True(t, v.Authentic)
	assert.Equal(t, capture.SidecarMatch, v.SidecarStatus)

	rec, err := verifier.Lookup(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "camera_001", rec.SubmitterID)

	st, err := verifier.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalRecords)
}

func TestVerifyOnlyClientCannotRecord(t *testing.T) {
	c, err := birthmark.New(birthmark.Options{})
	require.NoError(t, err)

	_, err = c.Capture(context.Background(), []byte("x"), filepath.Join(t.TempDir(), "x.raw"), nil)
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
	_, err = c.Record(context.Background(), "x.raw", nil)
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
	_, err = c.RecordFiles(context.Background(), []string{"x.raw"})
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
}

func TestRecordAndRecordFiles_Journal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	journal := filepath.Join(dir, "journal.jsonl")
	paths := make([]string, 3)
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte(name), 0644))
	}

	reg := metrics.NewRegistry()
	c, err := birthmark.New(birthmark.Options{SubmitterID: "camera_001", Algorithm: "blake3", JournalPath: journal, Registry: reg})
	require.NoError(t, err)

	res, err := c.Record(ctx, paths[0], nil)
	require.NoError(t, err)
	assert.Equal(t, model.AlgorithmBLAKE3, res.Algorithm)

	results, err := c.RecordFiles(ctx, paths[1:])
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mock_tx_00000003", results[1].TransactionID)

	report, err := audit.VerifyChain(journal)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Entries)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Operations.WithLabelValues("memory", metrics.OpSubmit, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Operations.WithLabelValues("memory", metrics.OpSubmitBatch, "ok")))
}

func TestFingerprintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	c, err := birthmark.New(birthmark.Options{})
	require.NoError(t, err)
	fp, err := c.FingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fp.Digest)
}

func TestOpen_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("submitter:\n  id: studio_cam\nfingerprint:\n  algorithm: sha512\n"), 0644))

	c, err := birthmark.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "studio_cam", c.SubmitterID())
	assert.Equal(t, "sha512", c.Config().Fingerprint.Algorithm)

	_, err = birthmark.Open(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
