package decoder

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-audio/seiscope/internal/catalog"
)

func gzipInt32LE(samples []int32) []byte {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(s))
	}
	_, _ = gw.Write(raw)
	_ = gw.Close()
	return buf.Bytes()
}

func TestDecode_NormalizationFormula(t *testing.T) {
	compressed := gzipInt32LE([]int32{-500})
	seg, err := Decode(Input{
		Compressed:       compressed,
		Codec:            catalog.CodecGzip,
		SampleCount:       1,
		NormalizationMin:  -1000,
		NormalizationMax:  3000,
		SourceSampleRate:  100,
		PlaybackSampleRate: 100,
	})
	require.NoError(t, err)
	require.Len(t, seg.Normalized, 1)
	require.InDelta(t, -0.75, seg.Normalized[0], 1e-6)
}

func TestDecode_MinEqualsMaxYieldsZeros(t *testing.T) {
	compressed := gzipInt32LE([]int32{10, 20, 30})
	seg, err := Decode(Input{
		Compressed:       compressed,
		Codec:            catalog.CodecGzip,
		NormalizationMin: 5,
		NormalizationMax: 5,
	})
	require.NoError(t, err)
	for _, v := range seg.Normalized {
		require.EqualValues(t, 0, v)
	}
}

func TestDecode_UnexpectedLength(t *testing.T) {
	compressed := gzipInt32LE([]int32{1, 2, 3, 4, 5})
	_, err := Decode(Input{
		Compressed:       compressed,
		Codec:            catalog.CodecGzip,
		SampleCount:      1,
		NormalizationMin: 0,
		NormalizationMax: 10,
	})
	require.Error(t, err)
}

func TestDecode_ClampsOutOfRangeToUnitInterval(t *testing.T) {
	// A sample above the declared max must clamp to +1, not overflow.
	compressed := gzipInt32LE([]int32{5000})
	seg, err := Decode(Input{
		Compressed:       compressed,
		Codec:            catalog.CodecGzip,
		NormalizationMin: -1000,
		NormalizationMax: 3000,
	})
	require.NoError(t, err)
	require.InDelta(t, 1.0, seg.Normalized[0], 1e-6)
}

func TestPlaybackIndex_RoundTrip(t *testing.T) {
	idx := PlaybackIndex(100, 100, 44100)
	require.Equal(t, 44100, idx)

	back := OriginalIndex(idx, 100, 44100)
	require.Equal(t, 100, back)
}

func TestResampleLinear_PreservesEndpoints(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	out := resampleLinear(in, 2.0)
	require.Len(t, out, 8)
	require.InDelta(t, 0, out[0], 1e-6)
}
