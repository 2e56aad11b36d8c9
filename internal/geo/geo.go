// Package geo holds the pure tile/extent math: XYZ slippy-map tile
// indexing, tile envelopes, and bounding-box overlap tests.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// LonToTileX returns the XYZ tile column containing lon at zoom.
func LonToTileX(lon float64, zoom int) int {
	return int(math.Floor((lon + 180) / 360 * math.Exp2(float64(zoom))))
}

// LatToTileY returns the XYZ tile row containing lat at zoom.
func LatToTileY(lat float64, zoom int) int {
	rad := lat * math.Pi / 180
	return int(math.Floor((1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * math.Exp2(float64(zoom))))
}

// TileBound returns the geographic (lon/lat) bound of tile z/x/y.
func TileBound(z, x, y int) orb.Bound {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()
}

// ToMercator projects a geographic bound into Web Mercator meters.
func ToMercator(b orb.Bound) orb.Bound {
	return project.Bound(b, project.WGS84.ToMercator)
}

// Overlaps reports whether two bounds share any area. The boxes are
// disjoint iff one is strictly north, east, south or west of the other.
func Overlaps(a, b orb.Bound) bool {
	if a.Max.Y() < b.Min.Y() || a.Max.X() < b.Min.X() || a.Min.Y() > b.Max.Y() || a.Min.X() > b.Max.X() {
		return false
	}
	return true
}

// IsDegenerate reports whether a bound collapses to a single point.
// Degenerate extents are treated as "always inside" by callers so a
// dataset with a point extent is never short-circuited to empty tiles.
func IsDegenerate(b orb.Bound) bool {
	return b.Min == b.Max
}

// Pad grows a bound by d degrees on every side.
func Pad(b orb.Bound, d float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min.X() - d, b.Min.Y() - d},
		Max: orb.Point{b.Max.X() + d, b.Max.Y() + d},
	}
}

// TileRange returns the inclusive XYZ tile index range covering a
// geographic bound at the given zoom.
func TileRange(b orb.Bound, zoom int) (minX, maxX, minY, maxY int) {
	minX = LonToTileX(b.Min.X(), zoom)
	maxX = LonToTileX(b.Max.X(), zoom)
	// north edge maps to the smaller row index
	minY = LatToTileY(b.Max.Y(), zoom)
	maxY = LatToTileY(b.Min.Y(), zoom)

	limit := int(math.Exp2(float64(zoom))) - 1
	minX = clamp(minX, 0, limit)
	maxX = clamp(maxX, 0, limit)
	minY = clamp(minY, 0, limit)
	maxY = clamp(maxY, 0, limit)
	return minX, maxX, minY, maxY
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ExtentFromGeoJSON derives the geographic bound of a raw GeoJSON
// document. Feature collections, single features and bare geometries
// are all accepted.
func ExtentFromGeoJSON(raw []byte) (orb.Bound, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil && len(fc.Features) > 0 {
		b := fc.Features[0].Geometry.Bound()
		for _, f := range fc.Features[1:] {
			b = b.Union(f.Geometry.Bound())
		}
		return b, nil
	}
	if f, err := geojson.UnmarshalFeature(raw); err == nil && f.Geometry != nil {
		return f.Geometry.Bound(), nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("parse geojson extent: %w", err)
	}
	return g.Geometry().Bound(), nil
}

// ExtentFromTopology derives a bound from a topojson-shaped payload by
// reading its bbox member.
func ExtentFromTopology(raw []byte) (orb.Bound, error) {
	var doc struct {
		BBox []float64 `json:"bbox"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return orb.Bound{}, fmt.Errorf("parse topology extent: %w", err)
	}
	if len(doc.BBox) != 4 {
		return orb.Bound{}, fmt.Errorf("topology has no bbox")
	}
	return orb.Bound{
		Min: orb.Point{doc.BBox[0], doc.BBox[1]},
		Max: orb.Point{doc.BBox[2], doc.BBox[3]},
	}, nil
}

// ParseExtent parses a "west south east north" extent string as stored
// in layer metadata.
func ParseExtent(s string) (orb.Bound, error) {
	parts := strings.Fields(s)
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("extent %q: want 4 fields", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("extent %q: %w", s, err)
		}
		vals[i] = v
	}
	return orb.Bound{
		Min: orb.Point{vals[0], vals[1]},
		Max: orb.Point{vals[2], vals[3]},
	}, nil
}
