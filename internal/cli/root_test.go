package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/server"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func executeCommand(root *cobra.Command, args ...string) (stdout string, err error) {
	// Capture os.Stdout since commands print with fmt.Printf directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	root.SetArgs(args)
	err = root.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

// createTestRootCmd resets every flag left over from earlier executions and
// points config discovery at an empty temp dir.
func createTestRootCmd(t *testing.T) *cobra.Command {
	t.Helper()
	t.Setenv("BIRTHMARK_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	jsonOutput, noColor = false, false
	configPath, backendName, backendOpts = "", "", map[string]string{}
	hashAlgorithm, checkAlgorithm = "", ""
	recordFlags, captureFlags, verifyFlags = sessionFlags{}, sessionFlags{}, sessionFlags{}
	captureSource, captureOut, captureNoRecord = "", "", false
	batchSubmitter, batchAlgorithm = "", ""
	batchNoProgress = false
	doctorStrict, doctorScan = false, nil
	serveAddr, journalPath = "", ""

	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		unset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(unset)
		c.PersistentFlags().VisitAll(unset)
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
	return rootCmd
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// startLedger serves a memory ledger and returns its endpoint.
func startLedger(t *testing.T) (string, *ledger.MemoryLedger) {
	t.Helper()
	mem := ledger.NewMemoryLedger(ledger.MemoryOptions{})
	srv := httptest.NewServer(server.New(mem, server.Options{Registry: metrics.NewRegistry()}))
	t.Cleanup(srv.Close)
	return srv.URL, mem
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand(createTestRootCmd(t), "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fingerprints media")
}

func TestRootCommand_JSONFlag(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)
}

func TestHashCommand(t *testing.T) {
	path := writeFile(t, "abc.txt", "abc")

	stdout, err := executeCommand(createTestRootCmd(t), "hash", path)
	require.NoError(t, err)
	assert.Equal(t, abcSHA256+"  "+path+"\n", stdout)
}

func TestHashCommand_JSON(t *testing.T) {
	path := writeFile(t, "empty.raw", "")

	stdout, err := executeCommand(createTestRootCmd(t), "--json", "hash", "--algorithm", "BLAKE3", path)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", out[0]["fingerprint"])
	assert.Equal(t, "blake3", out[0]["algorithm"])
	assert.Equal(t, float64(0), out[0]["size"])
}

func TestHashCommand_UnsupportedAlgorithm(t *testing.T) {
	path := writeFile(t, "a", "a")
	_, err := executeCommand(createTestRootCmd(t), "hash", "--algorithm", "md5", path)
	require.ErrorIs(t, err, errclass.ErrUnsupportedAlgorithm)
	assert.Contains(t, suggestionFor(err), "sha256")
}

func TestHashCommand_MissingFile(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "hash", filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, errclass.ErrSourceUnavailable)
}

func TestCheckCommand(t *testing.T) {
	path := writeFile(t, "abc.txt", "abc")

	stdout, err := executeCommand(createTestRootCmd(t), "check", path, abcSHA256)
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK")

	_, err = executeCommand(createTestRootCmd(t), "check", path, strings.ToUpper(abcSHA256))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestRecordCommand_Memory(t *testing.T) {
	path := writeFile(t, "photo.jpg", "jpeg bytes")

	stdout, err := executeCommand(createTestRootCmd(t), "record", "--submitter", "camera_001", "--lat", "45.5231", "--lon", "-122.6765", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "mock_tx_00000001")
	assert.Contains(t, stdout, "block:       1000")
	assert.FileExists(t, path+".birthmark.json")
}

func TestRecordCommand_RequiresSubmitter(t *testing.T) {
	path := writeFile(t, "photo.jpg", "jpeg bytes")
	_, err := executeCommand(createTestRootCmd(t), "record", path)
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
}

func TestRecordCommand_HalfGeolocation(t *testing.T) {
	path := writeFile(t, "photo.jpg", "jpeg bytes")
	_, err := executeCommand(createTestRootCmd(t), "record", "--submitter", "c", "--lat", "10", path)
	require.ErrorIs(t, err, errclass.ErrInvalidRecord)
}

func TestLookupCommand_NotFound(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "lookup", "zzz999")
	require.ErrorIs(t, err, errNotFound)
	assert.NotEmpty(t, suggestionFor(err))
}

func TestLookupCommand_NotFoundJSON(t *testing.T) {
	stdout, err := executeCommand(createTestRootCmd(t), "--json", "lookup", "zzz999")
	require.ErrorIs(t, err, errNotFound)
	assert.Contains(t, stdout, `"found": false`)
}

func TestLookupCommand_NotFoundJSONWriteError(t *testing.T) {
	root := createTestRootCmd(t)
	closed, err := os.CreateTemp(t.TempDir(), "stdout")
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	oldStdout := os.Stdout
	os.Stdout = closed
	root.SetArgs([]string{"--json", "lookup", "zzz999"})
	err = root.Execute()
	os.Stdout = oldStdout

	require.ErrorIs(t, err, errNotFound)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestUnknownBackend(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "--backend", "mem", "lookup", "abc")
	require.ErrorIs(t, err, errclass.ErrUnknownBackend)
	assert.Contains(t, suggestionFor(err), "Did you mean: memory?")
}

func TestGatewayMissingEndpoint(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "--backend", "gateway", "lookup", "abc")
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
	assert.Contains(t, suggestionFor(err), "endpoint")
}

func TestRecordLookupVerify_Gateway(t *testing.T) {
	endpoint, mem := startLedger(t)
	path := writeFile(t, "IMG_0001.raw", "raw sensor bytes")
	gw := []string{"--backend", "gateway", "--backend-opt", "endpoint=" + endpoint}

	stdout, err := executeCommand(createTestRootCmd(t), append(gw, "--json", "record", "--submitter", "camera_001", "--sidecar", "cbor", path)...)
	require.NoError(t, err)
	var recorded map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &recorded))
	fp := recorded["fingerprint"].(string)
	assert.FileExists(t, path+".birthmark.cbor")

	stdout, err = executeCommand(createTestRootCmd(t), append(gw, "lookup", fp)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "camera_001")
	assert.Contains(t, stdout, "mock_tx_00000001")

	stdout, err = executeCommand(createTestRootCmd(t), append(gw, "verify", path)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Authentic:")
	assert.Contains(t, stdout, "match")

	require.NoError(t, os.WriteFile(path, []byte("edited"), 0644))
	_, err = executeCommand(createTestRootCmd(t), append(gw, "verify", path)...)
	require.ErrorIs(t, err, errNotAuthentic)

	st, err := mem.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalRecords)
}

func TestBatchCommand_Gateway(t *testing.T) {
	endpoint, mem := startLedger(t)
	a := writeFile(t, "a.raw", "a")
	b := writeFile(t, "b.raw", "b")
	journal := filepath.Join(t.TempDir(), "journal.jsonl")
	t.Setenv("BIRTHMARK_JOURNAL_PATH", journal)

	stdout, err := executeCommand(createTestRootCmd(t), "--backend", "gateway", "--backend-opt", "endpoint="+endpoint,
		"batch", "--submitter", "camera_001", a, b)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Submitted 2 files")
	assert.Contains(t, stdout, "mock_tx_00000002")

	st, err := mem.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalRecords)

	report, err := audit.VerifyChain(journal)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Entries)

	stdout, err = executeCommand(createTestRootCmd(t), "journal", "verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 entries")
}

func TestBatchCommand_MissingFileSubmitsNothing(t *testing.T) {
	endpoint, mem := startLedger(t)
	a := writeFile(t, "a.raw", "a")

	_, err := executeCommand(createTestRootCmd(t), "--backend", "gateway", "--backend-opt", "endpoint="+endpoint,
		"batch", "--submitter", "c", a, filepath.Join(t.TempDir(), "missing.raw"))
	require.ErrorIs(t, err, errclass.ErrSourceUnavailable)

	st, err := mem.Stats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, st.TotalTransactions)
}

func TestCaptureCommand(t *testing.T) {
	src := writeFile(t, "sensor.raw", "raw bayer data")
	out := filepath.Join(t.TempDir(), "IMG_0002.raw")

	stdout, err := executeCommand(createTestRootCmd(t), "--json", "capture", "--submitter", "camera_001",
		"--source", src, "--out", out, "--lat", "1", "--lon", "2")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, out, res["media_path"])
	record := res["record"].(map[string]any)
	assert.Equal(t, "mock_tx_00000001", record["transaction_id"])
	assert.Equal(t, []any{1.0, 2.0}, record["geolocation"])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "raw bayer data", string(data))
}

func TestCaptureCommand_RequiresPaths(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "capture", "--submitter", "c")
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
}

func TestStatsCommand(t *testing.T) {
	stdout, err := executeCommand(createTestRootCmd(t), "--json", "--backend-opt", "network=studio", "stats")
	require.NoError(t, err)

	var st model.Stats
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.Equal(t, "studio", st.NetworkTag)
	assert.Equal(t, int64(1000), st.CurrentBlock)
}

func TestJournalVerify_Broken(t *testing.T) {
	path := writeFile(t, "journal.jsonl", `{"event_type":"submit","prev_hash":"x","record_hash":"y"}`+"\n")
	_, err := executeCommand(createTestRootCmd(t), "journal", "verify", "--path", path)
	require.ErrorIs(t, err, errclass.ErrJournalChainBroken)
}

func TestJournalVerify_NotConfigured(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "journal", "verify")
	require.ErrorIs(t, err, errclass.ErrMissingConfiguration)
}

func TestConfigShow(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "submitter:\n  id: camera_001\nfingerprint:\n  algorithm: sha3-256\n")

	stdout, err := executeCommand(createTestRootCmd(t), "--config", cfgPath, "--backend", "gateway", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "id: camera_001")
	assert.Contains(t, stdout, "algorithm: sha3-256")
	assert.Contains(t, stdout, "name: gateway")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birthmark", "config.yaml")
	_, err := executeCommand(createTestRootCmd(t), "config", "init", path)
	require.NoError(t, err)

	stdout, err := executeCommand(createTestRootCmd(t), "--json", "--config", path, "config", "show")
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	assert.Equal(t, "memory", cfg["backend"].(map[string]any)["name"])
}

func TestCompletionCommand(t *testing.T) {
	stdout, err := executeCommand(createTestRootCmd(t), "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "birthmark")
}

func TestDoctorCommand(t *testing.T) {
	endpoint, _ := startLedger(t)
	gateway := []string{"--backend", "gateway", "--backend-opt", "endpoint=" + endpoint}
	src := writeFile(t, "sensor.raw", "raw bayer data")
	dir := t.TempDir()
	out := filepath.Join(dir, "IMG_0003.raw")

	_, err := executeCommand(createTestRootCmd(t), append(gateway, "capture", "--submitter", "camera_001",
		"--source", src, "--out", out)...)
	require.NoError(t, err)

	stdout, err := executeCommand(createTestRootCmd(t), append(gateway, "doctor", "--scan", dir, "--strict")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Healthy (1 sidecars checked)")

	require.NoError(t, os.WriteFile(out, []byte("retouched"), 0644))
	stdout, err = executeCommand(createTestRootCmd(t), append(gateway, "--json", "doctor", "--scan", dir, "--strict")...)
	require.ErrorIs(t, err, errUnhealthy)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, false, res["healthy"])
	findings := res["findings"].([]any)
	require.Len(t, findings, 1)
	assert.Equal(t, "media", findings[0].(map[string]any)["category"])
}

func TestDoctorCommand_BackendDown(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(t), "--backend", "gateway", "--backend-opt", "endpoint=http://127.0.0.1:1",
		"doctor")
	require.ErrorIs(t, err, errUnhealthy)
}
