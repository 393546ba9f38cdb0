package session

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strata-audio/seiscope/internal/compositor"
	"github.com/strata-audio/seiscope/internal/config"
	"github.com/strata-audio/seiscope/internal/external"
)

const testSampleRate = 10 // samples/sec, kept low so test chunks stay small

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

func sineInt32(n int, min, max int32) []int32 {
	out := make([]int32, n)
	mid := (float64(min) + float64(max)) / 2
	amp := (float64(max) - float64(min)) / 2
	for i := range out {
		out[i] = int32(mid + amp*math.Sin(2*math.Pi*float64(i)/37))
	}
	return out
}

type wireManifestDoc struct {
	Date       string                  `json:"date"`
	SampleRate int                     `json:"sample_rate"`
	Chunks     map[string][]wireChunkDoc `json:"chunks"`
}

type wireChunkDoc struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Samples int    `json:"samples"`
	Min     int32  `json:"min"`
	Max     int32  `json:"max"`
	Key     string `json:"storage_key"`
	Codec   string `json:"codec"`
}

// buildTestManifest builds a day manifest with two consecutive 10-minute
// chunks starting at 00:00, and returns the manifest JSON plus a map of
// storage key -> compressed chunk bytes.
func buildTestManifest(station, date string) ([]byte, map[string][]byte) {
	chunkBytes := map[string][]byte{}
	var chunks []wireChunkDoc
	for i := 0; i < 2; i++ {
		startSec := i * 600
		n := 600 * testSampleRate
		samples := sineInt32(n, -1000, 1000)
		key := fmt.Sprintf("%s/%s/10m/%d", station, date, i)
		chunkBytes[key] = gzipInt32LE(samples)

		chunks = append(chunks, wireChunkDoc{
			Start:   secToHMS(startSec),
			End:     secToHMS(startSec + 600),
			Samples: n,
			Min:     -1000,
			Max:     1000,
			Key:     key,
			Codec:   "gzip",
		})
	}

	doc := wireManifestDoc{
		Date:       date,
		SampleRate: testSampleRate,
		Chunks:     map[string][]wireChunkDoc{"10m": chunks},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw, chunkBytes
}

func secToHMS(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

type fakeFetcher struct {
	manifests map[string][]byte
	chunks    map[string][]byte
}

func (f *fakeFetcher) HeadChunk(ctx context.Context, storageKey string) (bool, error) {
	_, ok := f.chunks[storageKey]
	return ok, nil
}

func (f *fakeFetcher) GetChunk(ctx context.Context, storageKey string) ([]byte, error) {
	b, ok := f.chunks[storageKey]
	if !ok {
		return nil, fmt.Errorf("fake fetcher: no chunk %q", storageKey)
	}
	return b, nil
}

func (f *fakeFetcher) GetManifest(ctx context.Context, station, date string) ([]byte, error) {
	b, ok := f.manifests[station+"/"+date]
	if !ok {
		return nil, fmt.Errorf("fake fetcher: no manifest for %s/%s", station, date)
	}
	return b, nil
}

type fakeSink struct {
	mu          sync.Mutex
	started     bool
	written     int
	completeLen int
}

func (s *fakeSink) StartImmediately(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSink) PushFrame(ctx context.Context, frame []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(frame)
	return nil
}

func (s *fakeSink) DataComplete(ctx context.Context, totalSamples int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeLen = totalSamples
	return nil
}

func (s *fakeSink) BufferStatus(ctx context.Context) (external.BufferStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return external.BufferStatus{TotalSamplesWritten: s.written}, nil
}

type fakeSurface struct {
	mu   sync.Mutex
	next uint64
}

func (s *fakeSurface) UploadTexture(width, height int, data []byte) (external.TextureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return external.TextureHandle(s.next), nil
}

func (s *fakeSurface) DrawTexturedQuad(tex external.TextureHandle, srcRect, dstRect external.Rect) {}
func (s *fakeSurface) FillRect(dstRect external.Rect, r, g, b, a uint8)                            {}
func (s *fakeSurface) Clear(r, g, b, a uint8)                                                      {}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.PlaybackSampleRate = testSampleRate
	cfg.FrameSize = 64
	cfg.BaseTileDuration = 10 * time.Minute
	cfg.TileColumns = 64
	cfg.FreqBins = 8
	cfg.FetchMaxRetries = 1
	cfg.FetchTimeout = time.Second
	return cfg
}

func TestRequestWindow_AssemblesFullWindowInOrder(t *testing.T) {
	station, date := "TST", "2026-07-29"
	manifestJSON, chunkBytes := buildTestManifest(station, date)

	fetcher := &fakeFetcher{
		manifests: map[string][]byte{station + "/" + date: manifestJSON},
		chunks:    chunkBytes,
	}
	sink := &fakeSink{}
	surface := &fakeSurface{}

	ctx := context.Background()
	core, err := New(ctx, testConfig(), fetcher, sink, surface)
	require.NoError(t, err)
	defer core.Close()

	start := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	err = core.RequestWindow(ctx, station, start, 20*time.Minute)
	require.NoError(t, err)

	require.True(t, sink.started)
	wantSamples := 2 * 600 * testSampleRate
	require.Equal(t, wantSamples, sink.completeLen)
	require.Equal(t, wantSamples, sink.written)

	env := core.Envelope()
	require.NotNil(t, env)
	require.NotEmpty(t, env.Columns())
}

func TestBuildPyramid_TopLevelBecomesReadyAfterRequestWindow(t *testing.T) {
	station, date := "TST", "2026-07-29"
	manifestJSON, chunkBytes := buildTestManifest(station, date)

	fetcher := &fakeFetcher{
		manifests: map[string][]byte{station + "/" + date: manifestJSON},
		chunks:    chunkBytes,
	}
	sink := &fakeSink{}
	surface := &fakeSurface{}

	ctx := context.Background()
	core, err := New(ctx, testConfig(), fetcher, sink, surface)
	require.NoError(t, err)
	defer core.Close()

	start := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	require.NoError(t, core.RequestWindow(ctx, station, start, 20*time.Minute))

	require.NoError(t, core.BuildPyramid(20*time.Minute))

	py := core.Pyramid()
	require.NotNil(t, py)
	top := py.TopLevel()
	levels := py.Levels()
	require.Len(t, levels[top], 1)
	require.True(t, levels[top][0].Ready, "cascade should make the single top tile ready once all L0 tiles finish")
}

func TestStartZoom_CompletesOnlyAfterBackgroundRerenderResolves(t *testing.T) {
	station, date := "TST", "2026-07-29"
	manifestJSON, chunkBytes := buildTestManifest(station, date)

	fetcher := &fakeFetcher{
		manifests: map[string][]byte{station + "/" + date: manifestJSON},
		chunks:    chunkBytes,
	}
	sink := &fakeSink{}
	surface := &fakeSurface{}

	cfg := testConfig()
	cfg.ZoomDuration = 10 * time.Millisecond

	ctx := context.Background()
	core, err := New(ctx, cfg, fetcher, sink, surface)
	require.NoError(t, err)
	defer core.Close()

	start := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	require.NoError(t, core.RequestWindow(ctx, station, start, 20*time.Minute))
	require.NoError(t, core.BuildPyramid(20*time.Minute))

	core.StartZoom(compositor.TimeRange{Start: 0, End: 1200}, compositor.TimeRange{Start: 0, End: 600}, compositor.DirectionIn, 0)

	require.Eventually(t, func() bool {
		return core.Compositor().Frame(time.Now().Add(time.Hour)).Done
	}, time.Second, time.Millisecond, "zoom should report done once the background re-render resolves")
}
