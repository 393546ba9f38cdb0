// Package decoder decompresses a fetched chunk and rescales its samples
// into a unit-range float stream (spec.md §4.4), generalizing the shape of
// cog.decompressDeflate/decompressLZW (pspoerri/geotiff2pmtiles) from image
// pixels to PCM samples.
package decoder

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/strata-audio/seiscope/internal/catalog"
	"github.com/strata-audio/seiscope/internal/rendererr"
)

// Segment is a decoded chunk (spec.md §3): ordered normalized samples in
// [-1,1], and samples in the original raw units (needed by the waveform
// builder for DC removal). When Decode resamples, both streams are
// resampled to the playback rate.
type Segment struct {
	PlanIndex  int
	Normalized []float32
	Raw        []float32
}

// Input bundles what the decoder needs to process one fetched chunk.
type Input struct {
	PlanIndex          int
	Compressed         []byte
	Codec              catalog.Codec
	SampleCount        int // manifest's declared count, for UnexpectedLength checking
	NormalizationMin   int32
	NormalizationMax   int32
	SourceSampleRate   int
	PlaybackSampleRate int
}

// Decode performs the full pipeline: decompress, interpret as little-endian
// int32 samples, normalize, resample to the playback rate.
func Decode(in Input) (Segment, error) {
	raw, err := decompress(in.Codec, in.Compressed)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %v", rendererr.ErrDecodeFailed, err)
	}

	samples, err := interpretInt32LE(raw)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %v", rendererr.ErrDecodeFailed, err)
	}

	if in.SampleCount > 0 {
		delta := len(samples) - in.SampleCount
		if delta < -1 || delta > 1 {
			return Segment{}, fmt.Errorf("%w: got %d samples, manifest declared %d",
				rendererr.ErrUnexpectedLength, len(samples), in.SampleCount)
		}
	}

	rawUnits := make([]float32, len(samples))
	normalized := make([]float32, len(samples))
	normalize(samples, in.NormalizationMin, in.NormalizationMax, rawUnits, normalized)

	if in.SourceSampleRate > 0 && in.PlaybackSampleRate > 0 && in.SourceSampleRate != in.PlaybackSampleRate {
		ratio := float64(in.PlaybackSampleRate) / float64(in.SourceSampleRate)
		normalized = resampleLinear(normalized, ratio)
		rawUnits = resampleLinear(rawUnits, ratio)
	}

	return Segment{
		PlanIndex:  in.PlanIndex,
		Normalized: normalized,
		Raw:        rawUnits,
	}, nil
}

func decompress(codec catalog.Codec, compressed []byte) ([]byte, error) {
	switch codec {
	case catalog.CodecGzip:
		r, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("decoder: opening gzip stream: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decoder: reading gzip stream: %w", err)
		}
		return out, nil
	default: // CodecZstd
		r, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("decoder: opening zstd stream: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decoder: reading zstd stream: %w", err)
		}
		return out, nil
	}
}

// interpretInt32LE views raw as a sequence of little-endian 32-bit signed
// integer samples (spec.md §6: "no framing inside the chunk; the boundary
// is the HTTP body boundary").
func interpretInt32LE(raw []byte) ([]int32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("decoder: byte length %d is not a multiple of 4", len(raw))
	}
	n := len(raw) / 4
	samples := make([]int32, n)
	for i := 0; i < n; i++ {
		samples[i] = int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
	}
	return samples, nil
}

// normalize applies y = 2*(x-min)/(max-min) - 1, clamped to [-1,1]. If
// max == min, the chunk is silent (spec.md §4.4 step 3).
func normalize(samples []int32, min, max int32, rawOut, normOut []float32) {
	span := float64(max) - float64(min)
	for i, x := range samples {
		rawOut[i] = float32(x)
		if span == 0 {
			normOut[i] = 0
			continue
		}
		y := 2*(float64(x)-float64(min))/span - 1
		if y < -1 {
			y = -1
		}
		if y > 1 {
			y = 1
		}
		normOut[i] = float32(y)
	}
}

// resampleLinear resamples in to a new length scaled by ratio using linear
// interpolation. The ratio must be identical across all segments of one
// plan so segment boundaries land on integer playback indices (spec.md
// §4.4 step 4).
func resampleLinear(in []float32, ratio float64) []float32 {
	if len(in) == 0 {
		return in
	}
	outLen := int(float64(len(in)) * ratio)
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = float32((1-frac)*float64(in[idx]) + frac*float64(in[idx+1]))
	}
	return out
}

// PlaybackIndex maps the k-th original sample (at rate r0) to its playback
// index at rate rp (spec.md §3 audio buffer indexing contract).
func PlaybackIndex(k int, r0, rp int) int {
	if r0 == 0 {
		return k
	}
	return int(roundFloat(float64(k) * float64(rp) / float64(r0)))
}

// OriginalIndex is the inverse of PlaybackIndex: given a playback-rate
// index, returns the nearest original-rate sample index.
func OriginalIndex(playbackIdx int, r0, rp int) int {
	if rp == 0 {
		return playbackIdx
	}
	return int(roundFloat(float64(playbackIdx) * float64(r0) / float64(rp)))
}

func roundFloat(f float64) float64 {
	if f < 0 {
		return -roundFloat(-f)
	}
	i := float64(int64(f))
	if f-i >= 0.5 {
		return i + 1
	}
	return i
}
