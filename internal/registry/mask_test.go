package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapic/tilecube/internal/apperr"
)

const polygonGeoJSON = `{"type":"Polygon","coordinates":[[[5,58],[31,58],[31,71],[5,71],[5,58]]]}`

func createCube(t *testing.T, r *Registry) *Cube {
	t.Helper()
	cube, err := r.CreateCube(context.Background(), CreateCubeOptions{})
	require.NoError(t, err)
	return cube
}

func TestAddMaskGeoJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{
		Type:     "geojson",
		Geometry: json.RawMessage(polygonGeoJSON),
		Meta:     map[string]any{"title": "Norway"},
	}, "")
	require.NoError(t, err)
	assert.Contains(t, mask.ID, "mask-")

	got, err := r.GetMask(ctx, cube.CubeID, mask.ID)
	require.NoError(t, err)
	assert.Equal(t, MaskGeoJSON, got.Type)
	assert.JSONEq(t, polygonGeoJSON, string(got.Geometry))
}

func TestAddMaskTopoJSON(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	topo := `{"type":"Topology","bbox":[5,58,31,71],"objects":{}}`
	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{
		Type:     "topojson",
		Geometry: json.RawMessage(topo),
	}, "")
	require.NoError(t, err)

	got, err := r.GetMask(ctx, cube.CubeID, mask.ID)
	require.NoError(t, err)
	assert.Equal(t, MaskTopoJSON, got.Type)
	assert.JSONEq(t, topo, string(got.Geometry))

	b, err := got.Extent()
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.Min.X())
}

func TestAddMaskTopoJSONRequiresGeometry(t *testing.T) {
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	_, err := r.AddMask(context.Background(), cube.CubeID, MaskSpec{Type: "topojson"}, "")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeInvalidTopology, ae.Code)
}

func TestAddMaskUnsupportedType(t *testing.T) {
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	_, err := r.AddMask(context.Background(), cube.CubeID, MaskSpec{Type: "shapefile"}, "")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeInvalidMaskType, ae.Code)
}

func TestAddMaskPostGISVector(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{payload: []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"gid":7},"geometry":` + polygonGeoJSON + `}]}`)}
	r := newTestRegistry(fetcher)
	cube := createCube(t, r)

	// dataset id must look like a real identifier (length 20-30)
	_, err := r.AddMask(ctx, cube.CubeID, MaskSpec{Type: "postgis-vector", DatasetID: "short"}, "")
	assert.Error(t, err)
	assert.Zero(t, fetcher.calls)

	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{
		Type:      "postgis-vector",
		DatasetID: "file_aoeusnth1234567890",
	}, "token")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, MaskPostGISVector, mask.Type)
	assert.NotEmpty(t, mask.Geometry)

	b, err := mask.Extent()
	require.NoError(t, err)
	assert.Equal(t, 31.0, b.Max.X())
}

func TestAddMaskPostGISVectorUpstreamFailure(t *testing.T) {
	fetcher := &stubFetcher{err: apperr.Upstream("unauthorized", nil)}
	r := newTestRegistry(fetcher)
	cube := createCube(t, r)

	_, err := r.AddMask(context.Background(), cube.CubeID, MaskSpec{
		Type:      "postgis-vector",
		DatasetID: "file_aoeusnth1234567890",
	}, "bad")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindUpstream, ae.Kind)
}

func TestAddMaskPostGISRasterPassThrough(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{
		Type:      "postgis-raster",
		DatasetID: "file_rastermask123456789",
		LayerID:   "layer_id-x",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, MaskPostGISRaster, mask.Type)
	assert.Empty(t, mask.Geometry, "raster masks carry no materialized geometry")

	_, err = mask.Extent()
	assert.Error(t, err)
}

func TestAddMaskOverwritesActiveSlot(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	first, err := r.AddMask(ctx, cube.CubeID, MaskSpec{Type: "geojson", Geometry: json.RawMessage(polygonGeoJSON)}, "")
	require.NoError(t, err)
	second, err := r.AddMask(ctx, cube.CubeID, MaskSpec{Type: "geojson", Geometry: json.RawMessage(polygonGeoJSON)}, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := r.GetCube(ctx, cube.CubeID)
	require.NoError(t, err)
	require.Len(t, got.Masks, 1, "only the active slot is written")
	assert.Equal(t, second.ID, got.Masks[0].ID)
	assert.Equal(t, second.ID, r.ActiveMask(got).ID)
}

func TestRemoveMask(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{Type: "geojson", Geometry: json.RawMessage(polygonGeoJSON)}, "")
	require.NoError(t, err)

	updated, err := r.RemoveMask(ctx, cube.CubeID, mask.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Masks)

	_, err = r.RemoveMask(ctx, cube.CubeID, mask.ID)
	assert.Error(t, err, "second removal reports not found")
}

func TestUpdateMaskPartialMerge(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube := createCube(t, r)

	mask, err := r.AddMask(ctx, cube.CubeID, MaskSpec{
		Type:     "geojson",
		Geometry: json.RawMessage(polygonGeoJSON),
		Title:    "before",
	}, "")
	require.NoError(t, err)

	updated, err := r.UpdateMask(ctx, cube.CubeID, mask.ID, map[string]any{"title": "after"})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, mask.ID, updated.ID, "id is immutable")
	assert.JSONEq(t, polygonGeoJSON, string(updated.Geometry), "unsupplied fields survive")

	_, err = r.UpdateMask(ctx, cube.CubeID, "mask-missing", map[string]any{"title": "x"})
	assert.Error(t, err)
}
