// Package viewport picks a pyramid level for the current view, enumerates
// the tiles needed to draw it, and computes the playback-rate vertical
// stretch and frequency axis ticks (spec.md §4.9). The level/bounds
// arithmetic generalizes the teacher's tile.AutoZoomRange + coord tile
// bounds style from geographic zoom levels to spectrogram LOD levels.
package viewport

import (
	"fmt"
	"math"

	"github.com/strata-audio/seiscope/internal/config"
	"github.com/strata-audio/seiscope/internal/pyramid"
)

// State is the mutable viewport, owned by the controller thread (spec.md §3).
type State struct {
	ViewStartSec   float64
	ViewEndSec     float64
	CanvasWidthPx  int
	CanvasHeightPx int
	PlaybackRate   float64
	FrequencyScale config.FrequencyScale
}

// SelectLevel picks the coarsest pyramid level whose total visible
// columns over the current view still meet or exceed one column per
// screen pixel, falling back to L0 if none does (spec.md §4.9). topLevel
// is the pyramid's coarsest level index; baseTileDuration/colsPerTile
// describe L0, doubling per level.
func SelectLevel(view State, topLevel int, baseTileDurationSec float64, colsPerTile int) int {
	viewDuration := view.ViewEndSec - view.ViewStartSec
	if viewDuration <= 0 {
		return 0
	}

	for level := topLevel; level >= 0; level-- {
		tileDuration := baseTileDurationSec * math.Pow(2, float64(level))
		visibleColumns := (viewDuration / tileDuration) * float64(colsPerTile)
		if visibleColumns >= float64(view.CanvasWidthPx) {
			return level
		}
	}
	return 0
}

// VisibleTile is one tile's draw instruction: screen-space horizontal
// extent in pixels and the UV range within its texture to sample.
type VisibleTile struct {
	Level     int
	Index     int
	DstX0     float64
	DstX1     float64
	SrcU0     float64
	SrcU1     float64
}

// VisibleTiles enumerates tiles at level overlapping the viewport. Screen
// coordinates are computed against each tile's nominal [start,end); UV
// coordinates against its actual [actual_first_col_sec,
// actual_last_col_sec) — the asymmetry avoids seams (spec.md §4.9).
func VisibleTiles(view State, tiles []*pyramid.Tile) []VisibleTile {
	viewDuration := view.ViewEndSec - view.ViewStartSec
	if viewDuration <= 0 {
		return nil
	}

	var out []VisibleTile
	for _, t := range tiles {
		if t.EndSec <= view.ViewStartSec || t.StartSec >= view.ViewEndSec {
			continue
		}
		clipStart := math.Max(t.StartSec, view.ViewStartSec)
		clipEnd := math.Min(t.EndSec, view.ViewEndSec)
		if clipEnd <= clipStart {
			continue
		}

		dstX0 := (clipStart - view.ViewStartSec) / viewDuration * float64(view.CanvasWidthPx)
		dstX1 := (clipEnd - view.ViewStartSec) / viewDuration * float64(view.CanvasWidthPx)

		actualSpan := t.ActualLastColSec - t.ActualFirstColSec
		var u0, u1 float64
		if actualSpan > 0 {
			u0 = (clipStart - t.ActualFirstColSec) / actualSpan
			u1 = (clipEnd - t.ActualFirstColSec) / actualSpan
		}

		out = append(out, VisibleTile{
			Level: t.Level, Index: t.Index,
			DstX0: dstX0, DstX1: dstX1,
			SrcU0: u0, SrcU1: u1,
		})
	}
	return out
}

// Stretch computes the vertical stretch factor for the current playback
// rate and frequency scale (spec.md §4.9).
func Stretch(scale config.FrequencyScale, rate, nyquist, fMin float64) float64 {
	if fMin <= 0 {
		fMin = 0.1
	}
	switch scale {
	case config.FrequencyScaleSqrt:
		return math.Sqrt(rate)
	case config.FrequencyScaleLog:
		logFullRange := math.Log10(nyquist) - math.Log10(fMin)
		target := math.Max(nyquist/rate, fMin)
		logTargetRange := math.Log10(target) - math.Log10(fMin)
		if logTargetRange <= 0 {
			return 1
		}
		return logFullRange / logTargetRange
	default: // linear
		return rate
	}
}

// FreqToY maps a frequency to a normalized vertical position in [0,1],
// 0 at DC and 1 at nyquist, under the reference (unstretched) mapping for
// the given scale.
func FreqToY(freq float64, scale config.FrequencyScale, nyquist, fMin float64) float64 {
	if fMin <= 0 {
		fMin = 0.1
	}
	if freq < 0 {
		freq = 0
	}
	switch scale {
	case config.FrequencyScaleSqrt:
		if nyquist <= 0 {
			return 0
		}
		return math.Sqrt(freq) / math.Sqrt(nyquist)
	case config.FrequencyScaleLog:
		logFullRange := math.Log10(nyquist) - math.Log10(fMin)
		if logFullRange <= 0 {
			return 0
		}
		f := math.Max(freq, fMin)
		return (math.Log10(f) - math.Log10(fMin)) / logFullRange
	default: // linear
		if nyquist <= 0 {
			return 0
		}
		return freq / nyquist
	}
}

// Tick is one labeled frequency-axis tick, positioned after applying the
// playback-rate stretch (spec.md §4.9 "Frequency axis ticks").
type Tick struct {
	FreqHz float64
	Y      float64 // normalized [0,1] position, 0 at DC
	Label  string
}

// Ticks computes the scale-dependent tick set, then positions each tick
// at rate*FreqHz under the reference mapping (spec.md §4.9).
func Ticks(scale config.FrequencyScale, nyquist, rate, fMin float64) []Tick {
	freqs := referenceTickFrequencies(scale, nyquist)
	ticks := make([]Tick, len(freqs))
	for i, f := range freqs {
		ticks[i] = Tick{
			FreqHz: f,
			Y:      FreqToY(f*rate, scale, nyquist, fMin),
			Label:  formatHz(f),
		}
	}
	return ticks
}

func referenceTickFrequencies(scale config.FrequencyScale, nyquist float64) []float64 {
	const n = 5
	freqs := make([]float64, 0, n+1)
	switch scale {
	case config.FrequencyScaleSqrt:
		// Denser near zero: tick frequencies grow quadratically with k.
		for k := 0; k <= n; k++ {
			frac := float64(k) / float64(n)
			freqs = append(freqs, nyquist*frac*frac)
		}
	case config.FrequencyScaleLog:
		// Decade-based: every power of ten up to nyquist.
		for f := 1.0; f <= nyquist; f *= 10 {
			freqs = append(freqs, f)
		}
		if len(freqs) == 0 {
			freqs = append(freqs, nyquist)
		}
	default: // linear
		for k := 0; k <= n; k++ {
			freqs = append(freqs, nyquist*float64(k)/float64(n))
		}
	}
	return freqs
}

func formatHz(f float64) string {
	if f >= 1000 {
		return fmt.Sprintf("%.1f kHz", f/1000)
	}
	return fmt.Sprintf("%.0f Hz", f)
}
