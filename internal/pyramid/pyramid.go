// Package pyramid builds the level-of-detail spectrogram tile pyramid
// (spec.md §4.8): L0 base tiles rendered from audio via the FFT pool,
// cascaded upward by pairwise column averaging, backed by an LRU texture
// cache with an adaptive capacity tier. The cascade shape is grounded on
// the teacher's tile.Generate zoom-level loop and tile.downsampleTile
// pairwise averaging (pspoerri/geotiff2pmtiles), adapted from 2-D RGBA
// quadrant averaging to 1-D column-pair magnitude averaging; the texture
// cache is grounded on cog.TileCache's LRU shape, reimplemented on
// hashicorp/golang-lru/v2.
package pyramid

import (
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/strata-audio/seiscope/internal/external"
	"github.com/strata-audio/seiscope/internal/fftpool"
)

// Tile is one spectrogram tile descriptor plus its quantized magnitude
// buffer (spec.md §3), column-major: Magnitudes[col*FreqBins+bin].
type Tile struct {
	Level    int
	Index    int
	StartSec float64
	EndSec   float64

	ActualFirstColSec float64
	ActualLastColSec  float64

	Cols     int
	FreqBins int

	Magnitudes []uint8
	Ready      bool
}

// tileKey addresses a tile within the pyramid for cache lookups.
type tileKey struct {
	Level int
	Index int
}

// Config bundles the pyramid's static parameters (spec.md §4.8).
type Config struct {
	SampleRate       int
	BaseTileDuration time.Duration // defaults to 15 min
	Cols             int           // columns per tile, defaults to 1024
	FreqBins         int
	FFTSize          int
}

func (c Config) withDefaults() Config {
	if c.BaseTileDuration <= 0 {
		c.BaseTileDuration = 15 * time.Minute
	}
	if c.Cols <= 0 {
		c.Cols = 1024
	}
	return c
}

// Pyramid owns every level's tiles, the FFT pool used to render them, and
// the LRU texture cache.
type Pyramid struct {
	mu     sync.Mutex
	cfg    Config
	levels [][]*Tile // levels[0] is finest

	surface external.RasterSurface
	cache   *lru.Cache[tileKey, external.TextureHandle]

	onTileReady func(level, index int)
}

// New builds the empty level descriptors for a pyramid covering totalDur
// seconds of audio, and wires the LRU texture cache to cacheCapacity
// entries (see AdaptiveCacheTier).
func New(cfg Config, totalDur time.Duration, surface external.RasterSurface, cacheCapacity int) (*Pyramid, error) {
	cfg = cfg.withDefaults()

	n := int(math.Ceil(totalDur.Seconds() / cfg.BaseTileDuration.Seconds()))
	if n < 1 {
		n = 1
	}

	l0 := make([]*Tile, n)
	for i := 0; i < n; i++ {
		start := float64(i) * cfg.BaseTileDuration.Seconds()
		end := start + cfg.BaseTileDuration.Seconds()
		if end > totalDur.Seconds() {
			end = totalDur.Seconds()
		}
		l0[i] = &Tile{Level: 0, Index: i, StartSec: start, EndSec: end, FreqBins: cfg.FreqBins}
	}

	levels := [][]*Tile{l0}
	cur := l0
	level := 1
	for len(cur) > 1 {
		parentCount := (len(cur) + 1) / 2
		parents := make([]*Tile, parentCount)
		for i := range parents {
			firstChild := cur[i*2]
			var lastChild *Tile
			if i*2+1 < len(cur) {
				lastChild = cur[i*2+1]
			} else {
				lastChild = firstChild
			}
			parents[i] = &Tile{
				Level:    level,
				Index:    i,
				StartSec: firstChild.StartSec,
				EndSec:   lastChild.EndSec,
				FreqBins: cfg.FreqBins,
			}
		}
		levels = append(levels, parents)
		cur = parents
		level++
	}

	cache, err := lru.New[tileKey, external.TextureHandle](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("pyramid: creating texture cache: %w", err)
	}

	return &Pyramid{cfg: cfg, levels: levels, surface: surface, cache: cache}, nil
}

// OnTileReady registers a callback fired (level, index) whenever a tile
// becomes ready, including cascaded parents.
func (p *Pyramid) OnTileReady(fn func(level, index int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTileReady = fn
}

// Levels returns the pyramid's levels, finest first. The returned slices
// are shared with the pyramid; callers must not mutate them.
func (p *Pyramid) Levels() [][]*Tile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels
}

// TopLevel returns the index of the coarsest (top) level.
func (p *Pyramid) TopLevel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.levels) - 1
}

// RenderBaseTiles computes every L0 tile's FFT via pool, then cascades
// every newly-ready tile upward (spec.md §4.8). win must be sized to
// cfg.FFTSize.
func (p *Pyramid) RenderBaseTiles(pool *fftpool.Pool, audio []float32, win fftpool.Window) {
	l0 := p.levels[0]
	batches := make([]fftpool.Batch, len(l0))
	for i, t := range l0 {
		batches[i] = p.buildBaseBatch(t, audio, win)
	}

	pool.ProcessBatches(batches, p.cfg.FreqBins, func(r fftpool.Result) {
		if r.Cancelled {
			return
		}
		p.mu.Lock()
		tile := l0[r.BatchIndex]
		tile.Magnitudes = r.Magnitudes
		tile.Cols = len(r.Magnitudes) / p.cfg.FreqBins
		tile.Ready = true
		cb := p.onTileReady
		p.mu.Unlock()
		if cb != nil {
			cb(0, tile.Index)
		}
		p.cascade(0, tile.Index)
	})
}

func (p *Pyramid) buildBaseBatch(t *Tile, audio []float32, win fftpool.Window) fftpool.Batch {
	fftSize := p.cfg.FFTSize
	sr := p.cfg.SampleRate

	pad := fftSize / 2
	startSample := int(t.StartSec*float64(sr)) - pad
	endSample := int(t.EndSec*float64(sr)) + pad
	if startSample < 0 {
		startSample = 0
	}
	if endSample > len(audio) {
		endSample = len(audio)
	}
	if endSample < startSample {
		endSample = startSample
	}
	slice := audio[startSample:endSample]

	hop, cols := computeHopAndCols(len(slice), fftSize, p.cfg.Cols)

	t.ActualFirstColSec = t.StartSec + float64(pad)/float64(sr)
	if cols > 0 {
		t.ActualLastColSec = t.StartSec + (float64((cols-1)*hop+pad))/float64(sr)
	} else {
		t.ActualLastColSec = t.ActualFirstColSec
	}

	return fftpool.Batch{
		BatchIndex: t.Index,
		Audio:      slice,
		FFTSize:    fftSize,
		HopSize:    hop,
		NumWindows: cols,
		Window:     win,
	}
}

// computeHopAndCols picks a hop so up to targetCols windows span the
// available slice (spec.md §4.8: "num_cols = min(1024, floor((len -
// fft_size)/hop))... a hop chosen so the 1024 columns span the tile").
func computeHopAndCols(sliceLen, fftSize, targetCols int) (hop, cols int) {
	avail := sliceLen - fftSize
	if avail < 0 {
		return 1, 0
	}
	if targetCols < 2 {
		targetCols = 2
	}
	hop = avail / (targetCols - 1)
	if hop < 1 {
		hop = 1
	}
	cols = avail/hop + 1
	if cols > targetCols {
		cols = targetCols
	}
	if cols < 1 {
		cols = 1
	}
	return hop, cols
}

// cascade checks whether the tile at (level,index)'s parent can now be
// built, and recurses upward while parents keep becoming ready (spec.md
// §4.8 upward cascade).
func (p *Pyramid) cascade(level, index int) {
	p.mu.Lock()
	if level+1 >= len(p.levels) {
		p.mu.Unlock()
		return
	}
	children := p.levels[level]
	parentIdx := index / 2
	parent := p.levels[level+1][parentIdx]
	if parent.Ready {
		p.mu.Unlock()
		return
	}

	firstIdx := parentIdx * 2
	childA := children[firstIdx]
	var childB *Tile
	hasSibling := firstIdx+1 < len(children)
	if hasSibling {
		childB = children[firstIdx+1]
	}

	if !childA.Ready || (hasSibling && !childB.Ready) {
		p.mu.Unlock()
		return
	}

	freqBins := p.cfg.FreqBins
	var mags []uint8
	if hasSibling {
		mags = mergeColumns(childA, childB, freqBins)
	} else {
		mags = averageOwnPairs(childA, freqBins)
	}

	parent.Magnitudes = mags
	parent.Cols = len(mags) / freqBins
	parent.ActualFirstColSec = childA.ActualFirstColSec
	if hasSibling {
		parent.ActualLastColSec = childB.ActualLastColSec
	} else {
		parent.ActualLastColSec = childA.ActualLastColSec
	}
	parent.Ready = true
	cb := p.onTileReady
	p.mu.Unlock()

	if cb != nil {
		cb(level+1, parentIdx)
	}
	p.cascade(level+1, parentIdx)
}

// mergeColumns builds a parent's magnitude buffer from two children by
// averaging adjacent column pairs within each child and concatenating
// (spec.md §4.8, §8 "Pyramid downsampling law"):
// parent[bin,c] = round((child[bin,2c] + child[bin,2c+1]) / 2).
func mergeColumns(a, b *Tile, freqBins int) []uint8 {
	aCols := averagedCols(a, freqBins)
	bCols := averagedCols(b, freqBins)
	out := make([]uint8, (aCols+bCols)*freqBins)
	writeAveragedPairs(out, a, freqBins, 0)
	writeAveragedPairs(out, b, freqBins, aCols)
	return out
}

// averageOwnPairs handles the level's last odd tile, which has no
// sibling: its parent is built solely from its own column pairs.
func averageOwnPairs(a *Tile, freqBins int) []uint8 {
	aCols := averagedCols(a, freqBins)
	out := make([]uint8, aCols*freqBins)
	writeAveragedPairs(out, a, freqBins, 0)
	return out
}

func averagedCols(t *Tile, freqBins int) int {
	return t.Cols / 2
}

func writeAveragedPairs(dst []uint8, child *Tile, freqBins, dstColOffset int) {
	cols := averagedCols(child, freqBins)
	for c := 0; c < cols; c++ {
		for bin := 0; bin < freqBins; bin++ {
			left := int(child.Magnitudes[(2*c)*freqBins+bin])
			right := int(child.Magnitudes[(2*c+1)*freqBins+bin])
			avg := roundDiv2(left + right)
			dst[(dstColOffset+c)*freqBins+bin] = uint8(avg)
		}
	}
}

// roundDiv2 implements round(x/2) for non-negative integer sums.
func roundDiv2(sum int) int {
	return (sum + 1) / 2
}

// Texture returns the cached GPU texture for a tile, uploading it on miss
// (spec.md §4.8 texture cache). Getting a texture promotes it to
// most-recently-used.
func (p *Pyramid) Texture(level, index int) (external.TextureHandle, error) {
	key := tileKey{Level: level, Index: index}

	p.mu.Lock()
	tex, ok := p.cache.Get(key)
	p.mu.Unlock()
	if ok {
		return tex, nil
	}

	p.mu.Lock()
	tile := p.levels[level][index]
	p.mu.Unlock()
	if !tile.Ready {
		return 0, fmt.Errorf("pyramid: tile (%d,%d) not ready", level, index)
	}

	tex, err := p.surface.UploadTexture(tile.Cols, tile.FreqBins, tile.Magnitudes)
	if err != nil {
		return 0, fmt.Errorf("pyramid: uploading texture for tile (%d,%d): %w", level, index, err)
	}

	p.mu.Lock()
	p.cache.Add(key, tex)
	p.mu.Unlock()
	return tex, nil
}

// TrimFarTiles drops the CPU-side magnitude array for every ready tile at
// level whose index lies outside [keepFrom,keepTo], relying on the GPU
// texture cache copy as authoritative (spec.md §4.8 memory trim). A
// trimmed tile re-renders its CPU array lazily is not supported: callers
// must re-fetch from storage if a trimmed tile's texture is later evicted.
func (p *Pyramid) TrimFarTiles(level, keepFrom, keepTo int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level < 0 || level >= len(p.levels) {
		return
	}
	for _, t := range p.levels[level] {
		if (t.Index < keepFrom || t.Index > keepTo) && p.cache.Contains(tileKey{Level: level, Index: t.Index}) {
			t.Magnitudes = nil
		}
	}
}
