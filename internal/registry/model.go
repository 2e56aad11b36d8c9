// Package registry owns the persistent layer and cube records and the
// read-modify-write mutation discipline over the cache store.
package registry

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/geo"
)

// DefaultRasterStyle is applied to cubes and raster layers created
// without an explicit style.
const DefaultRasterStyle = "#layer { raster-opacity: 1; }"

const DefaultQuality = "png32"

// Layer is an immutable render configuration created from a processed
// upstream dataset.
type Layer struct {
	ID              string        `json:"layer_id"`
	FileID          string        `json:"file_id"`
	SQL             string        `json:"sql"`
	CartoCSS        string        `json:"cartocss"`
	CartoCSSVersion string        `json:"cartocss_version"`
	GeomColumn      string        `json:"geom_column"`
	GeomType        string        `json:"geom_type"`
	RasterBand      int           `json:"raster_band"`
	SRID            int           `json:"srid"`
	DataType        string        `json:"data_type"` // vector | raster
	DatabaseName    string        `json:"database_name"`
	TableName       string        `json:"table_name"`
	Metadata        LayerMetadata `json:"metadata"`
	CreatedAt       int64         `json:"created"`
}

type LayerMetadata struct {
	Extent        string          `json:"extent,omitempty"`
	ExtentGeoJSON json.RawMessage `json:"extent_geojson,omitempty"`
}

// Cube is the time-series aggregate layer. Timestamp is the
// last-modified stamp and moves on every structural mutation; the tile
// cache key fingerprint is derived from it.
type Cube struct {
	CubeID    string         `json:"cube_id"`
	CreatedAt int64          `json:"created"`
	CreatedBy string         `json:"createdBy,omitempty"`
	Style     string         `json:"style"`
	Quality   string         `json:"quality"`
	Datasets  []DatasetRef   `json:"datasets"`
	Masks     []Mask         `json:"masks,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// DatasetRef points at an externally-managed dataset. Timestamp orders
// the ref inside the cube and drives year filtering; it is distinct
// from the dataset's own processing time.
type DatasetRef struct {
	ID           string `json:"id"`
	Description  string `json:"description,omitempty"`
	Timestamp    string `json:"timestamp"`
	LastModified int64  `json:"last_modified,omitempty"`
}

// Time parses the ref's ordering timestamp. Zero time on failure so
// unparsable refs sort first instead of erroring the whole cube.
func (d DatasetRef) Time() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, d.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

type MaskType string

const (
	MaskGeoJSON       MaskType = "geojson"
	MaskTopoJSON      MaskType = "topojson"
	MaskPostGISVector MaskType = "postgis-vector"
	MaskPostGISRaster MaskType = "postgis-raster"
)

// Mask is a tagged union over MaskType. Geometry is populated for the
// geojson, topojson and postgis-vector variants; the postgis-raster
// variant is a bare reference to a raster table dataset.
type Mask struct {
	ID          string          `json:"id"`
	Type        MaskType        `json:"type"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	Meta        map[string]any  `json:"meta,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	DatasetID   string          `json:"dataset_id,omitempty"`
	LayerID     string          `json:"layer_id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Extent resolves the mask's geographic bound. The postgis-raster
// variant has no materialized geometry and reports an error; callers
// on the tile path fail open.
func (m *Mask) Extent() (orb.Bound, error) {
	switch m.Type {
	case MaskGeoJSON, MaskPostGISVector:
		return geo.ExtentFromGeoJSON(m.Geometry)
	case MaskTopoJSON:
		if b, err := geo.ExtentFromTopology(m.Geometry); err == nil {
			return b, nil
		}
		return geo.ExtentFromGeoJSON(m.Geometry)
	case MaskPostGISRaster:
		return orb.Bound{}, apperr.Validation(apperr.CodeNoMaskExtent, "raster mask has no materialized extent")
	default:
		return orb.Bound{}, apperr.Validation(apperr.CodeInvalidMaskType, "unsupported mask type")
	}
}
