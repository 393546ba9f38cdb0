// Package compositor drives the zoom animation: interpolating the
// viewport's time range with easing, compositing from an elastic cache to
// avoid re-running FFTs during motion, and crossfading in a background
// re-render once it completes (spec.md §4.10).
package compositor

import (
	"math"
	"sync"
	"time"
)

// Direction is the zoom's motion.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// TimeRange is a [Start,End) window in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpRange(a, b TimeRange, t float64) TimeRange {
	return TimeRange{Start: lerp(a.Start, b.Start, t), End: lerp(a.End, b.End, t)}
}

// ease is a cubic ease-in-out curve applied to raw progress before
// interpolating the time range (spec.md §4.10 "R(p) = lerp(old_range,
// new_range, ease(p))").
func ease(p float64) float64 {
	if p < 0.5 {
		return 4 * p * p * p
	}
	f := -2*p + 2
	return 1 - (f*f*f)/2
}

// activeZoom is the in-flight transition's state.
type activeZoom struct {
	direction Direction
	old, new  TimeRange
	startedAt time.Time
	regionID  int
}

// Compositor owns the elastic cache, the single in-flight background
// re-render slot, and the pixel-buffer arena backing both.
type Compositor struct {
	mu       sync.Mutex
	duration time.Duration
	arena    *Arena

	elastic *Buffer // full-view render kept across a zoom-in

	zoom *activeZoom

	nextRegionID      int
	rerender          *Buffer
	rerenderRegion    int
	rerenderReady     bool
	rerenderPending   bool // a background re-render was dispatched for the active zoom and hasn't resolved
	rerenderCancelled bool
}

// New creates a compositor whose zoom animations run for duration.
func New(duration time.Duration, arena *Arena) *Compositor {
	return &Compositor{duration: duration, arena: arena}
}

// SetElasticCache installs the full-view render kept in memory for the
// duration of a zoom-in (spec.md §4.10).
func (c *Compositor) SetElasticCache(buf *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.elastic != nil {
		c.arena.Put(c.elastic)
	}
	c.elastic = buf
}

// StartZoom begins a new transition from old to new, cancelling any
// background re-render in flight for a previous zoom — the new zoom
// starts from the currently displayed composition, never from a stale
// old_range (spec.md §4.10 Cancellation). Returns the region id the
// caller must tag its background re-render submission with.
func (c *Compositor) StartZoom(old, newRange TimeRange, dir Direction, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextRegionID++
	regionID := c.nextRegionID

	if c.rerender != nil {
		c.arena.Put(c.rerender)
		c.rerender = nil
	}
	c.rerenderReady = false
	c.rerenderRegion = 0
	c.rerenderPending = false
	c.rerenderCancelled = false

	c.zoom = &activeZoom{direction: dir, old: old, new: newRange, startedAt: now, regionID: regionID}
	return regionID
}

// BeginBackgroundRender marks that a background re-render job has been
// dispatched for regionID, so Frame's completion gate waits for it to
// resolve via CompleteBackgroundRender or CancelBackgroundRender (spec.md
// §4.10 completion gate) instead of completing on the timeline alone.
// Returns false if regionID has already been superseded by a newer zoom.
func (c *Compositor) BeginBackgroundRender(regionID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zoom == nil || c.zoom.regionID != regionID {
		return false
	}
	c.rerenderPending = true
	return true
}

// CompleteBackgroundRender supplies the result of a smart background
// re-render (§4.10) tagged with regionID. If the region has since been
// superseded by a newer zoom, the buffer is discarded back to the arena
// and false is returned.
func (c *Compositor) CompleteBackgroundRender(regionID int, buf *Buffer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.zoom == nil || c.zoom.regionID != regionID {
		c.arena.Put(buf)
		return false
	}

	c.rerender = buf
	c.rerenderRegion = regionID
	c.rerenderReady = true
	return true
}

// CancelBackgroundRender reports that the background re-render job
// tagged with regionID failed or was aborted, satisfying the completion
// gate without a render result (spec.md §4.10 "or been cancelled"). A
// no-op if regionID has already been superseded.
func (c *Compositor) CancelBackgroundRender(regionID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zoom == nil || c.zoom.regionID != regionID {
		return
	}
	c.rerenderCancelled = true
}

// Progress returns the raw (un-eased) animation progress in [0,1] at now,
// or 1 if no zoom is active.
func (c *Compositor) Progress(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked(now)
}

func (c *Compositor) progressLocked(now time.Time) float64 {
	if c.zoom == nil {
		return 1
	}
	if c.duration <= 0 {
		return 1
	}
	p := now.Sub(c.zoom.startedAt).Seconds() / c.duration.Seconds()
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// Frame describes how to composite one animation frame (spec.md §4.10).
type Frame struct {
	Range         TimeRange
	Progress      float64 // raw progress, drives crossfade windowing
	EasedProgress float64 // drives R(p) interpolation
	Done          bool

	// Alpha is the crossfade weight for the background re-render
	// composite over the elastic-cache composite, in [0,1]. 0 means draw
	// only the elastic cache; 1 means draw only the re-render.
	Alpha float64
	// HasRerender reports whether a re-render composite is available to
	// blend in at all (Alpha may still be 0 if progress hasn't reached
	// the crossfade window).
	HasRerender bool
}

// crossfadeStart/End bound the progress window over which the background
// re-render is blended in (spec.md §4.10: "progress >= 50% and <= 90%").
const (
	crossfadeStart = 0.5
	crossfadeEnd   = 0.9
)

// Frame computes the current frame's interpolated range and crossfade
// weight at now.
func (c *Compositor) Frame(now time.Time) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.zoom == nil {
		return Frame{Done: true, Progress: 1, EasedProgress: 1}
	}

	p := c.progressLocked(now)
	eased := ease(p)
	r := lerpRange(c.zoom.old, c.zoom.new, eased)

	hasRerender := c.rerenderReady && c.rerenderRegion == c.zoom.regionID
	var alpha float64
	if hasRerender {
		switch {
		case p < crossfadeStart:
			alpha = 0
		case p > crossfadeEnd:
			alpha = 1
		default:
			alpha = (p - crossfadeStart) / (crossfadeEnd - crossfadeStart)
		}
	}

	// Completion gate (spec.md §4.10): the timeline alone isn't enough —
	// a dispatched background re-render must also have resolved, either
	// by completing (rerenderReady) or being cancelled, before the zoom
	// reports done. A zoom with no re-render ever dispatched for it
	// (rerenderPending stays false) completes on the timeline alone.
	gateSatisfied := !c.rerenderPending || hasRerender || c.rerenderCancelled
	done := p >= 1 && gateSatisfied
	if done {
		c.zoom = nil
		c.rerenderPending = false
		c.rerenderCancelled = false
	}

	return Frame{
		Range:         r,
		Progress:      p,
		EasedProgress: eased,
		Done:          done,
		Alpha:         alpha,
		HasRerender:   hasRerender,
	}
}

// Stretch applies the vertical stretch transform by resampling src's
// columns-major magnitude buffer into dst's height, per spec.md §4.9:
// stretch >= 1 grows content beyond the viewport (the bottom
// viewport-height worth of pixels is drawn); stretch < 1 shrinks it (the
// top is filled with zeroColor and the shrunken content sits at the
// bottom).
func Stretch(src *Buffer, dstHeight int, stretch float64, zeroColor uint8, arena *Arena) *Buffer {
	dst := arena.Get(src.W, dstHeight)
	if stretch <= 0 {
		stretch = 1
	}

	// Row 0 is the canvas top (highest frequency); row H-1 is the bottom
	// (DC), which stays anchored regardless of stretch.
	stretchedH := int(math.Round(float64(src.H) * stretch))
	if stretchedH < 1 {
		stretchedH = 1
	}

	for col := 0; col < src.W; col++ {
		for row := 0; row < dstHeight; row++ {
			distFromBottom := dstHeight - 1 - row
			if distFromBottom >= stretchedH {
				// Beyond the grown/shrunk content: only reachable when
				// stretch < 1, leaving empty space at the top.
				dst.Pix[col*dstHeight+row] = zeroColor
				continue
			}
			origDistFromBottom := int(float64(distFromBottom) / stretch)
			if origDistFromBottom >= src.H {
				origDistFromBottom = src.H - 1
			}
			srcRow := src.H - 1 - origDistFromBottom
			dst.Pix[col*dstHeight+row] = src.Pix[col*src.H+srcRow]
		}
	}
	return dst
}
