package pyramid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_BuildsLevelsUntilSingleTile(t *testing.T) {
	cfg := Config{SampleRate: 100, BaseTileDuration: 15 * time.Minute, Cols: 1024, FreqBins: 256, FFTSize: 512}
	py, err := New(cfg, 2*time.Hour, nil, 32)
	require.NoError(t, err)

	levels := py.Levels()
	require.Equal(t, 8, len(levels[0]), "120 minutes / 15 minute base tiles = 8 L0 tiles")
	require.Equal(t, 1, len(levels[len(levels)-1]), "top level must collapse to a single tile")
}

func TestComputeHopAndCols_SpansTileWithTargetColumns(t *testing.T) {
	hop, cols := computeHopAndCols(10000, 512, 1024)
	require.Equal(t, 1024, cols)
	require.Greater(t, hop, 0)

	// A slice too short to reach fftSize has no windows.
	_, cols = computeHopAndCols(100, 512, 1024)
	require.Equal(t, 0, cols)
}

func TestCascade_ParentColumnIsRoundedAverageOfChildPair(t *testing.T) {
	cfg := Config{SampleRate: 100, BaseTileDuration: 15 * time.Minute, Cols: 1024, FreqBins: 256, FFTSize: 512}
	py, err := New(cfg, 2*cfg.BaseTileDuration, nil, 32)
	require.NoError(t, err)

	freqBins := cfg.FreqBins
	l0 := py.Levels()[0]
	require.Len(t, l0, 2)

	a := l0[0]
	a.Cols = 1024
	a.Magnitudes = make([]uint8, a.Cols*freqBins)
	a.Magnitudes[0*freqBins+0] = 10 // L0a[bin=0,col=0]
	a.Magnitudes[1*freqBins+0] = 21 // L0a[bin=0,col=1]
	a.Ready = true
	a.ActualFirstColSec, a.ActualLastColSec = 0.1, 899.9

	b := l0[1]
	b.Cols = 1024
	b.Magnitudes = make([]uint8, b.Cols*freqBins)
	b.Ready = true
	b.ActualFirstColSec, b.ActualLastColSec = 900.1, 1799.9

	py.cascade(0, 0)

	parent := py.Levels()[1][0]
	require.True(t, parent.Ready)
	require.Equal(t, uint8(16), parent.Magnitudes[0*freqBins+0], "round((10+21)/2) = round(15.5) = 16")
	require.Equal(t, 1024, parent.Cols, "512 from each child concatenated")
}

func TestRoundDiv2(t *testing.T) {
	require.Equal(t, 0, roundDiv2(0))
	require.Equal(t, 16, roundDiv2(31))
	require.Equal(t, 16, roundDiv2(32))
	require.Equal(t, 17, roundDiv2(33))
}
