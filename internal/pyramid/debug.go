package pyramid

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// DumpTilePNG renders a tile's quantized magnitude buffer as a grayscale
// PNG, column-major (Magnitudes[col*FreqBins+bin]) transposed so frequency
// increases upward, matching how a renderer would draw it. Used by tests
// and cmd/seiscopectl's debug output to inspect a tile without a GPU.
func DumpTilePNG(t *Tile) ([]byte, error) {
	if !t.Ready {
		return nil, fmt.Errorf("pyramid: cannot dump tile (%d,%d): not ready", t.Level, t.Index)
	}

	img := image.NewGray(image.Rect(0, 0, t.Cols, t.FreqBins))
	for col := 0; col < t.Cols; col++ {
		for bin := 0; bin < t.FreqBins; bin++ {
			v := t.Magnitudes[col*t.FreqBins+bin]
			row := t.FreqBins - 1 - bin
			img.SetGray(col, row, color.Gray{Y: v})
		}
	}

	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("pyramid: encoding tile png: %w", err)
	}
	return buf.Bytes(), nil
}
