package viewport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-audio/seiscope/internal/config"
	"github.com/strata-audio/seiscope/internal/pyramid"
)

func TestSelectLevel_WideningViewportNeverSelectsFinerLevel(t *testing.T) {
	base := 900.0 // 15 minutes
	cols := 1024
	top := 4

	narrow := State{ViewStartSec: 0, ViewEndSec: 60, CanvasWidthPx: 1000}
	wide := State{ViewStartSec: 0, ViewEndSec: 3600 * 10, CanvasWidthPx: 1000}

	lNarrow := SelectLevel(narrow, top, base, cols)
	lWide := SelectLevel(wide, top, base, cols)

	require.LessOrEqual(t, lNarrow, lWide, "widening the viewport must never choose a finer (lower-numbered) level")
}

func TestSelectLevel_FallsBackToL0WhenNothingQualifies(t *testing.T) {
	view := State{ViewStartSec: 0, ViewEndSec: 1, CanvasWidthPx: 100000}
	l := SelectLevel(view, 4, 900, 1024)
	require.Equal(t, 0, l)
}

func TestVisibleTiles_UVUsesActualsScreenUsesNominal(t *testing.T) {
	tile := &pyramid.Tile{
		Level: 0, Index: 0,
		StartSec: 0, EndSec: 900,
		ActualFirstColSec: 0, ActualLastColSec: 900,
	}
	view := State{ViewStartSec: 0, ViewEndSec: 1800, CanvasWidthPx: 1024}

	vis := VisibleTiles(view, []*pyramid.Tile{tile})
	require.Len(t, vis, 1)
	// Screen extent reflects the tile's share of the full (wider) viewport.
	require.InDelta(t, 0, vis[0].DstX0, 1e-9)
	require.InDelta(t, 512, vis[0].DstX1, 1e-9)
	// UV still spans the whole texture since the tile is fully visible.
	require.InDelta(t, 0, vis[0].SrcU0, 1e-9)
	require.InDelta(t, 1, vis[0].SrcU1, 1e-9)
}

func TestVisibleTiles_PartialOverlapClipsUVAndScreenIndependently(t *testing.T) {
	tile := &pyramid.Tile{
		StartSec: 0, EndSec: 900,
		ActualFirstColSec: -10, ActualLastColSec: 910, // actual window wider than nominal
	}
	view := State{ViewStartSec: 450, ViewEndSec: 1350, CanvasWidthPx: 900}

	vis := VisibleTiles(view, []*pyramid.Tile{tile})
	require.Len(t, vis, 1)
	// Nominal clip is [450,900) out of a [450,1350) viewport -> screen [0,450).
	require.InDelta(t, 0, vis[0].DstX0, 1e-9)
	require.InDelta(t, 450, vis[0].DstX1, 1e-9)
	// UV maps the same clipped times against the wider actual span [-10,910).
	require.InDelta(t, (450.0+10)/920.0, vis[0].SrcU0, 1e-9)
	require.InDelta(t, (900.0+10)/920.0, vis[0].SrcU1, 1e-9)
}

func TestVisibleTiles_SkipsNonOverlappingTiles(t *testing.T) {
	tile := &pyramid.Tile{StartSec: 1000, EndSec: 1900}
	view := State{ViewStartSec: 0, ViewEndSec: 900, CanvasWidthPx: 100}
	require.Empty(t, VisibleTiles(view, []*pyramid.Tile{tile}))
}

func TestStretch_IdempotentAtRateOne(t *testing.T) {
	require.Equal(t, 1.0, Stretch(config.FrequencyScaleLinear, 1, 22050, 0.1))
	require.InDelta(t, 1.0, Stretch(config.FrequencyScaleSqrt, 1, 22050, 0.1), 1e-9)
	require.InDelta(t, 1.0, Stretch(config.FrequencyScaleLog, 1, 22050, 0.1), 1e-9)
}

func TestStretch_LinearScalesDirectlyWithRate(t *testing.T) {
	require.Equal(t, 2.0, Stretch(config.FrequencyScaleLinear, 2, 22050, 0.1))
	require.Equal(t, 0.5, Stretch(config.FrequencyScaleLinear, 0.5, 22050, 0.1))
}

func TestFreqToY_MonotonicWithinRange(t *testing.T) {
	for _, scale := range []config.FrequencyScale{config.FrequencyScaleLinear, config.FrequencyScaleSqrt, config.FrequencyScaleLog} {
		lo := FreqToY(10, scale, 22050, 0.1)
		hi := FreqToY(5000, scale, 22050, 0.1)
		require.Less(t, lo, hi, "scale %v must be monotonic in frequency", scale)
	}
}

func TestTicks_LogScaleIsDecadeBased(t *testing.T) {
	ticks := Ticks(config.FrequencyScaleLog, 22050, 1, 0.1)
	require.NotEmpty(t, ticks)
	for i := 1; i < len(ticks); i++ {
		require.InDelta(t, 10.0, ticks[i].FreqHz/ticks[i-1].FreqHz, 1e-6)
	}
}
