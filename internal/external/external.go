// Package external defines the small trait-shaped interfaces seiscope
// depends on but does not implement (spec.md §6, §9): the audio sink, the
// chunk/manifest fetcher, and the GPU raster surface. Each is kept to
// 3-5 operations per the design notes.
package external

import "context"

// BufferStatus reports the audio sink's internal buffer state.
type BufferStatus struct {
	SamplesInBuffer     int
	TotalSamplesWritten int
}

// AudioSink is the write-only external playback device (spec.md §6).
type AudioSink interface {
	// StartImmediately signals the sink to begin consuming frames now.
	StartImmediately(ctx context.Context) error
	// PushFrame delivers one fixed-length frame of normalized samples.
	PushFrame(ctx context.Context, frame []float32) error
	// DataComplete signals no more frames will arrive; totalSamples is the
	// final stream length.
	DataComplete(ctx context.Context, totalSamples int) error
	// BufferStatus answers how much of the pushed stream has been absorbed.
	BufferStatus(ctx context.Context) (BufferStatus, error)
}

// Fetcher is the read-only object-store contract (spec.md §6): HEAD/GET for
// chunk bytes and manifests.
type Fetcher interface {
	// HeadChunk reports whether a chunk exists without fetching its bytes.
	HeadChunk(ctx context.Context, storageKey string) (bool, error)
	// GetChunk fetches a chunk's compressed bytes.
	GetChunk(ctx context.Context, storageKey string) ([]byte, error)
	// GetManifest fetches a day manifest's raw JSON bytes.
	GetManifest(ctx context.Context, station, date string) ([]byte, error)
}

// RasterSurface is the simple GPU/canvas raster interface the viewport and
// compositor draw through (spec.md §6). No shader programming is
// prescribed.
type RasterSurface interface {
	// UploadTexture creates or replaces a 2-D 8-bit texture, returning an
	// opaque handle.
	UploadTexture(width, height int, data []byte) (TextureHandle, error)
	// DrawTexturedQuad draws texture's srcRect region into dstRect.
	DrawTexturedQuad(tex TextureHandle, srcRect, dstRect Rect)
	// FillRect fills dstRect with a solid RGBA color.
	FillRect(dstRect Rect, r, g, b, a uint8)
	// Clear clears the entire surface to a solid color.
	Clear(r, g, b, a uint8)
}

// TextureHandle is an opaque reference to an uploaded GPU texture.
type TextureHandle uint64

// Rect is an axis-aligned rectangle in either texture UV space ([0,1]) or
// screen pixel space, depending on call site.
type Rect struct {
	X0, Y0, X1, Y1 float64
}
