// Package session wires the ten components into one RendererCore per
// spec.md §9 ("a single RendererCore value instantiated per session"),
// implementing the dataflow: catalog → planner → scheduler → decoder →
// assembler → {audio sink, waveform, pyramid}; pyramid → viewport →
// compositor.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/strata-audio/seiscope/internal/assembler"
	"github.com/strata-audio/seiscope/internal/catalog"
	"github.com/strata-audio/seiscope/internal/compositor"
	"github.com/strata-audio/seiscope/internal/config"
	"github.com/strata-audio/seiscope/internal/decoder"
	"github.com/strata-audio/seiscope/internal/external"
	"github.com/strata-audio/seiscope/internal/fftpool"
	"github.com/strata-audio/seiscope/internal/logging"
	"github.com/strata-audio/seiscope/internal/planner"
	"github.com/strata-audio/seiscope/internal/pyramid"
	"github.com/strata-audio/seiscope/internal/rendererr"
	"github.com/strata-audio/seiscope/internal/scheduler"
	"github.com/strata-audio/seiscope/internal/waveform"
)

// RendererCore owns one session's worth of state across every component.
type RendererCore struct {
	cfg    config.Config
	log    zerolog.Logger
	fetch  external.Fetcher
	sink   external.AudioSink
	surf   external.RasterSurface

	catalog    *catalog.Catalog
	assembler  *assembler.Assembler
	fftPool    *fftpool.Pool
	compositor *compositor.Compositor
	arena      *compositor.Arena

	station string
	plan    *planner.Plan
	envelope *waveform.Envelope
	pyramid  *pyramid.Pyramid

	// currentLevel is the pyramid level currently composited as the full
	// view; StartZoom snapshots it into the elastic cache before moving
	// to the destination level (spec.md §4.10).
	currentLevel int
}

// manifestSourceAdapter binds a station to the catalog so planner.Plan can
// resolve manifests purely by instant, per planner.ManifestSource.
type manifestSourceAdapter struct {
	ctx     context.Context
	cat     *catalog.Catalog
	station string
}

func (a manifestSourceAdapter) ManifestFor(t time.Time) (*catalog.DayManifest, error) {
	return a.cat.LoadManifest(a.ctx, a.station, t.Format("2006-01-02"))
}

// New builds a RendererCore for one session, wiring C1-C10 with cfg's
// tunables. ctx governs the FFT pool's lifetime.
func New(ctx context.Context, cfg config.Config, fetch external.Fetcher, sink external.AudioSink, surf external.RasterSurface) (*RendererCore, error) {
	cat, err := catalog.New(fetch, cfg.ManifestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	log := logging.New(nil, cfg.Verbose)

	return &RendererCore{
		cfg:        cfg,
		log:        log,
		fetch:      fetch,
		sink:       sink,
		surf:       surf,
		catalog:    cat,
		fftPool:    fftpool.New(ctx, cfg.FFTWorkers),
		compositor: compositor.New(cfg.ZoomDuration, compositor.NewArena()),
		arena:      compositor.NewArena(),
	}, nil
}

// RequestWindow plans, schedules, decodes, and assembles audio for
// [start, start+duration) on station, updating the waveform envelope as
// each segment is emitted (spec.md §9 dataflow). The tile pyramid is built
// separately by BuildPyramid.
func (r *RendererCore) RequestWindow(ctx context.Context, station string, start time.Time, duration time.Duration) error {
	correlationID := logging.NewCorrelationID()
	ctx, log := logging.WithCorrelationID(ctx, r.log, correlationID)

	src := manifestSourceAdapter{ctx: ctx, cat: r.catalog, station: station}
	plan, err := planner.Plan(start, duration, src)
	if err != nil {
		return fmt.Errorf("session: planning window: %w", err)
	}
	r.station = station
	r.plan = plan

	batches := scheduler.BuildBatches(plan.Chunks)

	asm := assembler.New(r.sink, r.cfg.FrameSize, len(plan.Chunks), r.cfg.TTFARampDuration, r.cfg.PlaybackSampleRate)
	r.assembler = asm

	envelope := waveform.New(r.estimateTotalSamples(ctx, plan, r.cfg.PlaybackSampleRate), r.cfg.TileColumns)
	r.envelope = envelope

	var rawBuf []float32
	asm.OnSegment(func(seg decoder.Segment) {
		raw := seg.Raw
		if r.cfg.DCRemovalEnabled {
			raw = waveform.RemoveDC(raw, r.cfg.DCRemovalAlpha)
		}
		start := len(rawBuf)
		rawBuf = append(rawBuf, raw...)
		envelope.Update(rawBuf, start, len(rawBuf))
	})

	fetchFn := scheduler.Fetcher[decoder.Segment](func(ctx context.Context, ref planner.ChunkRef) (decoder.Segment, error) {
		return r.fetchAndDecode(ctx, plan, ref)
	})

	onDecoded := scheduler.OnDecoded[decoder.Segment](func(ref planner.ChunkRef, seg decoder.Segment) {
		if err := asm.Submit(ctx, seg); err != nil {
			log.Warn().Err(err).Int("plan_index", seg.PlanIndex).Msg("submitting decoded segment")
		}
	})

	awaitFirst := scheduler.AwaitFirstEmit(func(ctx context.Context) error {
		return nil // the assembler's own buffer-drain gate already back-pressures DataComplete
	})

	if err := scheduler.Run(ctx, batches, fetchFn, onDecoded, awaitFirst); err != nil {
		return fmt.Errorf("session: running schedule: %w", err)
	}

	return nil
}

func (r *RendererCore) estimateTotalSamples(ctx context.Context, plan *planner.Plan, playbackRate int) int {
	total := 0
	for _, c := range plan.Chunks {
		if c.Missing {
			continue
		}
		n := c.SampleCount
		if m, err := r.catalog.LoadManifest(ctx, r.station, c.Date); err == nil && m.SampleRate > 0 && playbackRate > 0 {
			n = int(float64(n) * float64(playbackRate) / float64(m.SampleRate))
		}
		total += n
	}
	return total
}

// fetchAndDecode is plugged into the scheduler as the Fetcher[T] hook: it
// resolves a chunk ref's bytes via the external fetcher (or treats a
// missing ref as silence) and decodes them, retrying transient failures
// up to cfg.FetchMaxRetries (spec.md §7).
func (r *RendererCore) fetchAndDecode(ctx context.Context, plan *planner.Plan, ref planner.ChunkRef) (decoder.Segment, error) {
	planIndex := indexOf(plan, ref)

	if ref.Missing {
		r.log.Warn().Time("start", ref.Start).Str("granularity", ref.Granularity.String()).Msg("chunk missing from manifest, treating as silence")
		return decoder.Segment{PlanIndex: planIndex}, nil
	}

	sourceRate := 0
	if manifest, err := r.catalog.LoadManifest(ctx, r.station, ref.Date); err == nil {
		sourceRate = manifest.SampleRate
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= r.cfg.FetchMaxRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		raw, err := r.fetch.GetChunk(fetchCtx, ref.StorageKey)
		cancel()
		if err == nil {
			seg, decErr := decoder.Decode(decoder.Input{
				PlanIndex:        planIndex,
				Compressed:       raw,
				Codec:            ref.Codec,
				SampleCount:      ref.SampleCount,
				NormalizationMin: plan.NormalizationMin,
				NormalizationMax: plan.NormalizationMax,
				SourceSampleRate:   sourceRate,
				PlaybackSampleRate: r.cfg.PlaybackSampleRate,
			})
			if decErr != nil {
				// Decode failures are treated as silence, not propagated
				// (spec.md §7 propagation policy).
				return decoder.Segment{PlanIndex: planIndex}, nil
			}
			return seg, nil
		}
		lastErr = err
		if attempt < r.cfg.FetchMaxRetries {
			select {
			case <-ctx.Done():
				return decoder.Segment{PlanIndex: planIndex}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	r.log.Warn().Err(lastErr).Str("storage_key", ref.StorageKey).Msg("chunk fetch exhausted retries, treating as silence")
	return decoder.Segment{PlanIndex: planIndex}, nil
}

func indexOf(plan *planner.Plan, ref planner.ChunkRef) int {
	for i, c := range plan.Chunks {
		if c.Start.Equal(ref.Start) && c.Granularity == ref.Granularity {
			return i
		}
	}
	return 0
}

// BuildPyramid constructs the tile pyramid from the session's assembled
// audio buffer and runs the base-tile FFTs (spec.md §4.8).
func (r *RendererCore) BuildPyramid(totalDur time.Duration) error {
	if r.assembler == nil {
		return fmt.Errorf("%w: no window requested yet", rendererr.ErrPlanInconsistent)
	}

	cacheTier := r.cfg.TextureCacheTier
	if cacheTier <= 0 {
		cacheTier = pyramid.AdaptiveCacheTier(r.cfg.Verbose, func(format string, args ...any) {
			r.log.Debug().Msgf(format, args...)
		})
	}

	cfg := pyramid.Config{
		SampleRate:       r.cfg.PlaybackSampleRate,
		BaseTileDuration: r.cfg.BaseTileDuration,
		Cols:             r.cfg.TileColumns,
		FreqBins:         r.cfg.FreqBins,
		FFTSize:          1024,
	}

	py, err := pyramid.New(cfg, totalDur, r.surf, cacheTier)
	if err != nil {
		return fmt.Errorf("session: building pyramid: %w", err)
	}
	r.pyramid = py

	window := fftpool.NewHannWindow(cfg.FFTSize)
	py.RenderBaseTiles(r.fftPool, r.assembler.Buffer(), window)

	r.currentLevel = py.TopLevel()
	r.compositor.SetElasticCache(r.renderLevelBuffer(r.currentLevel))
	return nil
}

// renderLevelBuffer concatenates a pyramid level's tile magnitude buffers,
// left to right, into one compositor.Buffer (spec.md §4.10 elastic cache /
// background re-render composite). Not-ready tiles contribute a zeroed
// span rather than blocking.
func (r *RendererCore) renderLevelBuffer(level int) *compositor.Buffer {
	tiles := r.pyramid.Levels()[level]
	freqBins := r.cfg.FreqBins

	totalCols := 0
	for _, t := range tiles {
		totalCols += t.Cols
	}
	if totalCols == 0 {
		totalCols = 1
	}

	buf := r.arena.Get(totalCols, freqBins)
	col := 0
	for _, t := range tiles {
		if t.Ready && t.Cols > 0 {
			copy(buf.Pix[col*freqBins:(col+t.Cols)*freqBins], t.Magnitudes)
		}
		col += t.Cols
	}
	return buf
}

// StartZoom begins a zoom transition to newLevel: it snapshots the
// currently composited level into the compositor's elastic cache, starts
// the animation, and dispatches a background re-render of newLevel that
// reports back via CompleteBackgroundRender, gating the transition's
// completion signal until that resolves (spec.md §4.10). The background
// re-render here re-renders from the already-cascaded pyramid level
// rather than re-running FFTs at mixed quality tiers per-flank (see
// DESIGN.md for why the quality-zoned variant is out of scope). Returns
// the region id tagging this zoom.
func (r *RendererCore) StartZoom(old, newRange compositor.TimeRange, dir compositor.Direction, newLevel int) int {
	if r.pyramid == nil {
		return r.compositor.StartZoom(old, newRange, dir, time.Now())
	}

	r.compositor.SetElasticCache(r.renderLevelBuffer(r.currentLevel))
	regionID := r.compositor.StartZoom(old, newRange, dir, time.Now())
	r.currentLevel = newLevel

	if !r.compositor.BeginBackgroundRender(regionID) {
		return regionID
	}

	go func() {
		rerendered := r.renderLevelBuffer(newLevel)
		if !r.compositor.CompleteBackgroundRender(regionID, rerendered) {
			r.arena.Put(rerendered)
		}
	}()

	return regionID
}

// Pyramid exposes the built pyramid for the viewport/compositor.
func (r *RendererCore) Pyramid() *pyramid.Pyramid { return r.pyramid }

// Envelope exposes the waveform envelope for UI drawing.
func (r *RendererCore) Envelope() *waveform.Envelope { return r.envelope }

// Compositor exposes the zoom compositor.
func (r *RendererCore) Compositor() *compositor.Compositor { return r.compositor }

// Close releases the FFT worker pool.
func (r *RendererCore) Close() {
	r.fftPool.Terminate()
}
