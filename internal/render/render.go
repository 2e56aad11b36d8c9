// Package render prepares inputs for and invokes the external
// cartographic render backend.
package render

import "context"

type Format string

const (
	FormatPNG  Format = "png"
	FormatPBF  Format = "pbf"
	FormatGrid Format = "grid"
)

// ValidFormat reports whether ext names a servable tile format.
func ValidFormat(ext string) bool {
	switch Format(ext) {
	case FormatPNG, FormatPBF, FormatGrid:
		return true
	}
	return false
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatPBF:
		return "application/x-protobuf"
	default:
		return "application/json"
	}
}

// Request carries everything the backend needs to produce one tile.
type Request struct {
	Format       Format     `json:"format"`
	Z            int        `json:"z"`
	X            int        `json:"x"`
	Y            int        `json:"y"`
	Style        string     `json:"style"`
	StyleVersion string     `json:"style_version,omitempty"`
	Quality      string     `json:"quality,omitempty"`
	Datasource   Datasource `json:"datasource"`
}

type Backend interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}
