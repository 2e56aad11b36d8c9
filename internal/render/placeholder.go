package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// Placeholder tiles served when a coordinate is outside the data extent
// (empty) or the backend failed (error). Both are valid HTTP 200
// payloads; the distinction is for logs and metrics only.

var (
	placeholderOnce sync.Once
	emptyTile       []byte
	errorTile       []byte
)

func buildPlaceholders() {
	emptyTile = encodeUniform(color.NRGBA{})
	// faint gray wash so broken areas are visible during debugging
	errorTile = encodeUniform(color.NRGBA{R: 128, G: 128, B: 128, A: 24})
}

func encodeUniform(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	if c.A != 0 {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// 256x256 in-memory encode cannot fail
		panic(err)
	}
	return buf.Bytes()
}

// EmptyTilePNG is a fully transparent 256x256 tile.
func EmptyTilePNG() []byte {
	placeholderOnce.Do(buildPlaceholders)
	return emptyTile
}

// ErrorTilePNG is the placeholder served on render failure.
func ErrorTilePNG() []byte {
	placeholderOnce.Do(buildPlaceholders)
	return errorTile
}

// EmptyJSON is the pbf/grid degradation payload.
func EmptyJSON() []byte {
	return []byte("{}")
}
