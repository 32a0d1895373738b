package fingerprint_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

const (
	emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	emptySHA512 = "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce" +
		"47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"
	emptySHA3256 = "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"
	emptyBLAKE3  = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	abcSHA256    = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
)

func TestFingerprint_EmptyInputKnownDigests(t *testing.T) {
	tests := []struct {
		alg  model.Algorithm
		want string
	}{
		{model.AlgorithmSHA256, emptySHA256},
		{model.AlgorithmSHA512, emptySHA512},
		{model.AlgorithmSHA3_256, emptySHA3256},
		{model.AlgorithmBLAKE3, emptyBLAKE3},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			res, err := fingerprint.Fingerprint(nil, tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Digest)
			assert.Equal(t, int64(0), res.Size)
		})
	}
}

func TestFingerprint_KnownVector(t *testing.T) {
	res, err := fingerprint.Fingerprint([]byte("abc"), model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, abcSHA256, res.Digest)
	assert.Equal(t, model.AlgorithmSHA256, res.Algorithm)
}

func TestFingerprint_DigestLengthsAndCase(t *testing.T) {
	data := []byte("raw sensor bytes")
	for _, name := range fingerprint.Supported() {
		alg := model.Algorithm(name)
		t.Run(name, func(t *testing.T) {
			res, err := fingerprint.Fingerprint(data, alg)
			require.NoError(t, err)
			assert.Len(t, res.Digest, 2*fingerprint.DigestSize(alg))
			assert.Equal(t, strings.ToLower(res.Digest), res.Digest)
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1000)
	first, err := fingerprint.Fingerprint(data, model.AlgorithmSHA512)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := fingerprint.Fingerprint(data, model.AlgorithmSHA512)
		require.NoError(t, err)
		assert.Equal(t, first.Digest, again.Digest)
	}
}

func TestFingerprint_UnsupportedAlgorithm(t *testing.T) {
	_, err := fingerprint.Fingerprint([]byte("x"), "md5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrUnsupportedAlgorithm))
	assert.Contains(t, err.Error(), "sha256")
}

type countingReader struct{ reads int }

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return 0, io.EOF
}

func TestFingerprintReader_UnsupportedAlgorithmReadsNothing(t *testing.T) {
	r := &countingReader{}
	_, err := fingerprint.New().FingerprintReader(r, "crc32")
	require.True(t, errors.Is(err, errclass.ErrUnsupportedAlgorithm))
	assert.Equal(t, 0, r.reads)
}

func TestFingerprintReader_MatchesInMemoryAcrossChunks(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 3*fingerprint.ChunkSize/16)
	data = append(data, []byte("tail bytes")...)

	eng := fingerprint.New()
	want, err := eng.Fingerprint(data, model.AlgorithmBLAKE3)
	require.NoError(t, err)

	got, err := eng.FingerprintReader(bytes.NewReader(data), model.AlgorithmBLAKE3)
	require.NoError(t, err)
	assert.Equal(t, want.Digest, got.Digest)
	assert.Equal(t, int64(len(data)), got.Size)

	oneByte, err := eng.FingerprintReader(iotest.OneByteReader(bytes.NewReader(data)), model.AlgorithmBLAKE3)
	require.NoError(t, err)
	assert.Equal(t, want.Digest, oneByte.Digest)
}

func TestFingerprintReader_ReadErrorIsSourceUnavailable(t *testing.T) {
	r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("device unplugged")))
	_, err := fingerprint.New().FingerprintReader(r, model.AlgorithmSHA256)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestFingerprintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.raw")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	res, err := fingerprint.New().FingerprintFile(path, model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, abcSHA256, res.Digest)
	assert.Equal(t, int64(3), res.Size)
}

func TestFingerprintFile_Missing(t *testing.T) {
	_, err := fingerprint.New().FingerprintFile(filepath.Join(t.TempDir(), "nope.raw"), model.AlgorithmSHA256)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrSourceUnavailable))
}

func TestFingerprintFile_UnsupportedBeforeOpen(t *testing.T) {
	_, err := fingerprint.New().FingerprintFile("/does/not/exist", "whirlpool")
	assert.True(t, errors.Is(err, errclass.ErrUnsupportedAlgorithm))
}

func TestFingerprint_CapturedAtFromEngineClock(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 8, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	eng := fingerprint.New(fingerprint.WithClock(func() time.Time { return fixed }))

	a, err := eng.Fingerprint([]byte("one"), model.AlgorithmSHA256)
	require.NoError(t, err)
	b, err := eng.Fingerprint([]byte("two"), model.AlgorithmSHA256)
	require.NoError(t, err)

	assert.True(t, fixed.Equal(a.CapturedAt))
	assert.Equal(t, time.UTC, a.CapturedAt.Location())
	assert.Equal(t, a.CapturedAt, b.CapturedAt, "timestamp is independent of content")
}

func TestVerify(t *testing.T) {
	data := []byte("original capture")
	res, err := fingerprint.Fingerprint(data, model.AlgorithmSHA256)
	require.NoError(t, err)

	ok, err := fingerprint.Verify(data, res.Digest, model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fingerprint.Verify([]byte("edited capture"), res.Digest, model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fingerprint.Verify(data, strings.ToUpper(res.Digest), model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.False(t, ok, "comparison is case-sensitive")

	_, err = fingerprint.Verify(data, res.Digest, "md4")
	assert.True(t, errors.Is(err, errclass.ErrUnsupportedAlgorithm))
}

func TestVerifyReader(t *testing.T) {
	eng := fingerprint.New()
	ok, err := eng.VerifyReader(strings.NewReader("abc"), abcSHA256, model.AlgorithmSHA256)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := fingerprint.ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAlgorithm, a)

	a, err = fingerprint.ParseAlgorithm(" SHA3-512 ")
	require.NoError(t, err)
	assert.Equal(t, model.AlgorithmSHA3_512, a)

	_, err = fingerprint.ParseAlgorithm("sha1")
	assert.True(t, errors.Is(err, errclass.ErrUnsupportedAlgorithm))
	assert.Equal(t, 0, fingerprint.DigestSize("sha1"))
}

func TestEngine_MetricsCountBytes(t *testing.T) {
	reg := metrics.NewRegistry()
	eng := fingerprint.New(fingerprint.WithMetrics(reg))

	_, err := eng.Fingerprint(make([]byte, 100), model.AlgorithmSHA256)
	require.NoError(t, err)
	_, err = eng.FingerprintReader(bytes.NewReader(make([]byte, 50)), model.AlgorithmSHA256)
	require.NoError(t, err)

	assert.Equal(t, 150.0, testutil.ToFloat64(reg.FingerprintBytes.WithLabelValues("sha256")))
}
