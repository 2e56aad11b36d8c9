package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/teris-io/shortid"
)

// MaskSpec is the client-supplied mask description before type-specific
// construction.
type MaskSpec struct {
	Type        string          `json:"type"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	Meta        map[string]any  `json:"meta,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	DatasetID   string          `json:"dataset_id,omitempty"`
	LayerID     string          `json:"layer_id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
}

// GeoJSONFetcher pulls a dataset's geometry from the upstream dataset
// service, used to materialize postgis-vector masks.
type GeoJSONFetcher interface {
	GetGeoJSON(ctx context.Context, datasetID, accessToken string) ([]byte, error)
}

func newMaskID() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a broken worker config
		panic(err)
	}
	return "mask-" + id
}

// buildMask runs the type-dispatched construction pipeline.
func buildMask(ctx context.Context, spec MaskSpec, fetcher GeoJSONFetcher, accessToken string) (Mask, error) {
	mask := Mask{
		ID:          newMaskID(),
		Meta:        spec.Meta,
		Data:        spec.Data,
		Title:       spec.Title,
		Description: spec.Description,
	}

	switch MaskType(spec.Type) {
	case MaskGeoJSON:
		mask.Type = MaskGeoJSON
		mask.Geometry = spec.Geometry
		return mask, nil

	case MaskTopoJSON:
		if len(spec.Geometry) == 0 {
			return Mask{}, errInvalidTopology()
		}
		mask.Type = MaskTopoJSON
		mask.Geometry = spec.Geometry
		return mask, nil

	case MaskPostGISVector:
		if len(spec.DatasetID) < 20 || len(spec.DatasetID) > 30 {
			return Mask{}, errInvalidDatasetID(spec.DatasetID)
		}
		raw, err := fetcher.GetGeoJSON(ctx, spec.DatasetID, accessToken)
		if err != nil {
			return Mask{}, err
		}
		geom, err := primeFeatureIDs(raw)
		if err != nil {
			return Mask{}, errInvalidTopology()
		}
		mask.Type = MaskPostGISVector
		mask.Geometry = geom
		mask.DatasetID = spec.DatasetID
		return mask, nil

	case MaskPostGISRaster:
		mask.Type = MaskPostGISRaster
		mask.DatasetID = spec.DatasetID
		mask.LayerID = spec.LayerID
		return mask, nil

	default:
		return Mask{}, errUnsupportedMaskType(spec.Type)
	}
}

// primeFeatureIDs ensures every feature in a fetched collection carries
// an id, copying it from a known property when absent, so clients can
// address individual mask features.
func primeFeatureIDs(raw []byte) ([]byte, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mask geojson: %w", err)
	}
	for _, f := range fc.Features {
		if f.ID != nil {
			continue
		}
		for _, field := range []string{"id", "gid", "name"} {
			if v, ok := f.Properties[field]; ok {
				f.ID = v
				break
			}
		}
	}
	return fc.MarshalJSON()
}
