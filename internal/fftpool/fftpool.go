// Package fftpool computes magnitude spectra for batches of audio windows
// on a work-stealing pool (spec.md §4.7). FFT math (Hann window, gonum's
// fourier.FFT, dB-to-uint8 quantization) is grounded on the ka9q_ubersdr
// ft8/waterfall.go Monitor; the pool shape replaces the teacher's
// hand-rolled sync.WaitGroup+channel pool (tile.Generate) with alitto/pond,
// the way sixy6e-go-gsf's cmd/main.go spins up a fixed pool via
// pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx)).
package fftpool

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/alitto/pond"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	dBFloor = -100.0
	dBRange = 100.0
)

// Window is a precomputed Hann window of a given FFT size.
type Window struct {
	size int
	taps []float64
}

// NewHannWindow builds a Hann window of the given size.
func NewHannWindow(size int) Window {
	taps := make([]float64, size)
	for i := 0; i < size; i++ {
		taps[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return Window{size: size, taps: taps}
}

// Batch is one unit of work: a contiguous run of FFT windows to compute
// over a slice of the audio buffer, identified by BatchIndex for the
// caller's own bookkeeping (e.g. matching a tile pyramid batch to a level).
type Batch struct {
	BatchIndex int
	Audio      []float32 // ownership transferred to the worker
	FFTSize    int
	HopSize    int
	NumWindows int
	Window     Window
}

// Result is one completed batch's output: NumWindows rows of FreqBins
// quantized 8-bit dB magnitudes, row-major.
type Result struct {
	BatchIndex int
	FreqBins   int
	Magnitudes []uint8 // len == NumWindows*FreqBins, or nil if cancelled
	Cancelled  bool
}

// Pool computes magnitude spectra across a fixed set of workers.
type Pool struct {
	pool *pond.WorkerPool
}

// New creates a pool bound to ctx (the pool stops submitting once ctx is
// cancelled). workers sizes the pool directly; 0 or negative falls back
// to max(1, NumCPU-1) (spec.md §4.7: "max(1, cpu_count-1) workers"),
// initialized lazily — pond defers goroutine creation until the first
// Submit.
func New(ctx context.Context, workers int) *Pool {
	n := workers
	if n <= 0 {
		n = runtime.NumCPU() - 1
		if n < 1 {
			n = 1
		}
	}
	return &Pool{pool: pond.New(n, 0, pond.Context(ctx))}
}

// ProcessBatches submits every batch to the pool and invokes onResult as
// each completes, in arbitrary order; it returns once every batch has
// resolved (spec.md §4.7 contract). onResult must be safe to call
// concurrently from multiple workers. If the pool's bound context is
// cancelled mid-flight, pond stops dispatching and Submit becomes a no-op
// for remaining batches, so this drains via the WaitGroup regardless.
func (p *Pool) ProcessBatches(batches []Batch, freqBins int, onResult func(Result)) {
	var wg sync.WaitGroup
	wg.Add(len(batches))
	for _, b := range batches {
		b := b
		submitted := p.pool.TrySubmit(func() {
			defer wg.Done()
			onResult(computeBatch(b, freqBins))
		})
		if !submitted {
			wg.Done()
			onResult(Result{BatchIndex: b.BatchIndex, Cancelled: true})
		}
	}
	wg.Wait()
}

// Terminate detaches all pending callbacks and releases workers without
// waiting for in-flight batches to finish (spec.md §4.7 cancellation).
func (p *Pool) Terminate() {
	p.pool.Stop()
}

func computeBatch(b Batch, freqBins int) Result {
	fft := fourier.NewFFT(b.FFTSize)
	mags := make([]uint8, b.NumWindows*freqBins)
	windowed := make([]float64, b.FFTSize)

	for w := 0; w < b.NumWindows; w++ {
		off := w * b.HopSize
		end := off + b.FFTSize
		if end > len(b.Audio) {
			break
		}
		for i := 0; i < b.FFTSize; i++ {
			windowed[i] = float64(b.Audio[off+i]) * b.Window.taps[i]
		}
		coeffs := fft.Coefficients(nil, windowed)

		n := freqBins
		if n > len(coeffs) {
			n = len(coeffs)
		}
		for bin := 0; bin < n; bin++ {
			re := real(coeffs[bin])
			im := imag(coeffs[bin])
			mag2 := re*re + im*im
			magDB := 10.0 * math.Log10(1e-12+mag2)
			mags[w*freqBins+bin] = quantize(magDB)
		}
	}

	return Result{BatchIndex: b.BatchIndex, FreqBins: freqBins, Magnitudes: mags}
}

// Quantize maps a dB magnitude to an 8-bit value: dBFloor -> 0, dBFloor +
// dBRange -> 255 (spec.md §4.7: "floor -100 dB, range 100 dB"). Exported
// so the tile pyramid can quantize in the same units when it computes
// base-tile FFTs through this pool.
func Quantize(db float64) uint8 {
	return quantize(db)
}

func quantize(db float64) uint8 {
	scaled := (db - dBFloor) / dBRange * 255.0
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
