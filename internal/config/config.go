// Package config holds the flat configuration struct shared by a
// RendererCore session, mirroring the teacher's tile.Config shape (a plain
// struct with sane defaults, no external config-file format — loading
// config files/env vars is a concern of the out-of-scope session host).
package config

import "time"

// FrequencyScale selects the vertical axis transform for the spectrogram.
type FrequencyScale int

const (
	FrequencyScaleLinear FrequencyScale = iota
	FrequencyScaleSqrt
	FrequencyScaleLog
)

// Config holds tunables for one RendererCore session.
type Config struct {
	// PlaybackSampleRate is Rₚ, the fixed rate the audio sink expects.
	PlaybackSampleRate int

	// FrameSize is the fixed frame length the assembler pushes to the sink.
	FrameSize int

	// TTFARampDuration is the amplitude ramp applied to the first emitted
	// frame to avoid a click (spec.md §4.5, ≈50ms).
	TTFARampDuration time.Duration

	// FetchTimeout is the per-chunk wall-clock limit (spec.md §7, default 30s).
	FetchTimeout time.Duration

	// FetchMaxRetries bounds the exponential backoff for transient fetch
	// errors before a chunk is reported missing.
	FetchMaxRetries int

	// BaseTileDuration is the L0 tile span in seconds (spec.md §4.8 default 15 min).
	BaseTileDuration time.Duration

	// TileColumns is the fixed column count per tile (spec.md §4.8 default 1024).
	TileColumns int

	// FreqBins is the number of frequency bins retained per FFT window.
	FreqBins int

	// FFTWorkers is the worker pool size; 0 means max(1, NumCPU-1).
	FFTWorkers int

	// TextureCacheTier selects the adaptive max texture count (spec.md §4.8:
	// "tiers keyed to device memory, e.g. 16/32/64").
	TextureCacheTier int

	// ManifestCacheSize bounds the number of cached day manifests (C1 supplement).
	ManifestCacheSize int

	// DCRemovalAlpha is the IIR filter coefficient for waveform DC removal
	// (spec.md §4.6, user-selectable in [0.9, 0.999]).
	DCRemovalAlpha float64

	// DCRemovalEnabled toggles the DC-removal stage.
	DCRemovalEnabled bool

	// ZoomDuration is the fixed animation length for a zoom transition.
	ZoomDuration time.Duration

	// Verbose enables debug-level logging.
	Verbose bool
}

// Default returns a Config with the defaults named throughout spec.md.
func Default() Config {
	return Config{
		PlaybackSampleRate: 44100,
		FrameSize:          1024,
		TTFARampDuration:   50 * time.Millisecond,
		FetchTimeout:       30 * time.Second,
		FetchMaxRetries:    3,
		BaseTileDuration:   15 * time.Minute,
		TileColumns:        1024,
		FreqBins:           256,
		FFTWorkers:         0,
		TextureCacheTier:   32,
		ManifestCacheSize:  64,
		DCRemovalAlpha:     0.995,
		DCRemovalEnabled:   true,
		ZoomDuration:       500 * time.Millisecond,
	}
}
