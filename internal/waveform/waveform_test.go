package waveform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_ColumnBoundsPartitionBuffer(t *testing.T) {
	buf := []float32{0, 1, -1, 2, -2, 3, -3, 4}
	e := New(len(buf), 4)
	e.Update(buf, 0, len(buf))

	cols := e.Columns()
	require.Len(t, cols, 4)
	require.Equal(t, Column{Min: 0, Max: 1}, cols[0])
	require.Equal(t, Column{Min: -1, Max: 2}, cols[1])
	require.Equal(t, Column{Min: -2, Max: 3}, cols[2])
	require.Equal(t, Column{Min: -3, Max: 4}, cols[3])
}

func TestEnvelope_IncrementalUpdateOnlyTouchesAffectedColumns(t *testing.T) {
	buf := make([]float32, 8)
	e := New(8, 4)

	e.Update(buf, 0, 2)
	before := e.Columns()
	require.Equal(t, Column{Min: 0, Max: 0}, before[0])
	require.Equal(t, Column{Min: 0, Max: 0}, before[3])

	buf[6] = 5
	buf[7] = -5
	e.Update(buf, 6, 8)
	after := e.Columns()

	require.Equal(t, before[0], after[0], "untouched column must not change")
	require.Equal(t, Column{Min: -5, Max: 5}, after[3])
}

func TestRemoveDC_ConstantInputDecaysTowardZero(t *testing.T) {
	raw := make([]float32, 500)
	for i := range raw {
		raw[i] = 10
	}
	out := RemoveDC(raw, 0.995)

	require.InDelta(t, 10, out[0], 1e-6, "first sample has no history, y[0] = x[0]-0+alpha*0 = x[0]")
	require.Less(t, float64(out[len(out)-1]), 5.0, "a steady DC offset should decay well below its starting amplitude")
}

func TestRemoveDC_ClampsAlpha(t *testing.T) {
	raw := []float32{1, 1, 1}
	lo := RemoveDC(raw, 0.0)
	hi := RemoveDC(raw, 1.0)
	require.Equal(t, RemoveDC(raw, 0.9), lo)
	require.Equal(t, RemoveDC(raw, 0.999), hi)
}
