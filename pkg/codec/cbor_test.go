package codec_test

import (
	"testing"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/codec"
	"github.com/birthmark-protocol/birthmark/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_RecordKeepsNanoseconds(t *testing.T) {
	captured := time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC)
	rec := model.Submission{
		Fingerprint: "abc123",
		CapturedAt:  captured,
		SubmitterID: "camera_001",
		Geolocation: model.NewGeolocation(45.5231, -122.6765),
	}.Accept("mock_tx_00000001", 1000, "local")

	data, err := codec.Marshal(rec)
	require.NoError(t, err)

	var back model.Record
	require.NoError(t, codec.Unmarshal(data, &back))
	assert.True(t, captured.Equal(back.CapturedAt))
	assert.Equal(t, "camera_001", back.SubmitterID)
	require.NotNil(t, back.Geolocation)
	assert.Equal(t, 45.5231, back.Geolocation.Latitude)
	assert.Equal(t, -122.6765, back.Geolocation.Longitude)
	assert.Equal(t, "mock_tx_00000001", back.TxID())
	assert.Equal(t, int64(1000), *back.BlockNumber)
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]any{"z": 1, "a": "x", "m": []any{true, nil}}
	a, err := codec.Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		b, err := codec.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestMarshal_GeolocationIsPair(t *testing.T) {
	data, err := codec.Marshal(model.NewGeolocation(1.5, 2.5))
	require.NoError(t, err)

	var pair []float64
	require.NoError(t, codec.Unmarshal(data, &pair))
	assert.Equal(t, []float64{1.5, 2.5}, pair)
}
