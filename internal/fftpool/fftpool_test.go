package fftpool

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWave(freqHz float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freqHz * float64(i) / float64(sampleRate)))
	}
	return out
}

func TestQuantize_FloorAndCeiling(t *testing.T) {
	require.EqualValues(t, 0, quantize(-100))
	require.EqualValues(t, 0, quantize(-500))
	require.EqualValues(t, 255, quantize(0))
	require.EqualValues(t, 255, quantize(50))
}

func TestNewHannWindow_ZeroAtEdges(t *testing.T) {
	w := NewHannWindow(8)
	require.InDelta(t, 0, w.taps[0], 1e-9)
	require.InDelta(t, 0, w.taps[len(w.taps)-1], 1e-9)
}

func TestProcessBatches_InvokesCallbackForEveryBatch(t *testing.T) {
	p := New(context.Background(), 0)
	defer p.Terminate()

	audio := sineWave(440, 8000, 4096)
	window := NewHannWindow(256)

	batches := []Batch{
		{BatchIndex: 0, Audio: audio[:2048], FFTSize: 256, HopSize: 128, NumWindows: 8, Window: window},
		{BatchIndex: 1, Audio: audio[2048:], FFTSize: 256, HopSize: 128, NumWindows: 8, Window: window},
	}

	var mu sync.Mutex
	seen := map[int]Result{}
	p.ProcessBatches(batches, 64, func(r Result) {
		mu.Lock()
		seen[r.BatchIndex] = r
		mu.Unlock()
	})

	require.Len(t, seen, 2)
	for _, r := range seen {
		require.Len(t, r.Magnitudes, 8*64)
	}
}
