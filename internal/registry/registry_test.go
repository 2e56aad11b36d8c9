package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
)

type stubFetcher struct {
	payload []byte
	err     error
	calls   int
}

func (s *stubFetcher) GetGeoJSON(_ context.Context, _, _ string) ([]byte, error) {
	s.calls++
	return s.payload, s.err
}

func newTestRegistry(fetcher GeoJSONFetcher) *Registry {
	if fetcher == nil {
		fetcher = &stubFetcher{}
	}
	return New(store.NewMapStore(), fetcher, 0, "day", logger.Nop())
}

func TestCreateAndGetCube(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)

	cube, err := r.CreateCube(ctx, CreateCubeOptions{CreatedBy: "someone"})
	require.NoError(t, err)
	assert.Contains(t, cube.CubeID, "cube-")
	assert.Equal(t, DefaultRasterStyle, cube.Style)
	assert.Equal(t, DefaultQuality, cube.Quality)
	assert.Empty(t, cube.Datasets)
	assert.NotZero(t, cube.Timestamp)

	got, err := r.GetCube(ctx, cube.CubeID)
	require.NoError(t, err)
	assert.Equal(t, cube.CubeID, got.CubeID)
}

func TestGetCubeNotFound(t *testing.T) {
	r := newTestRegistry(nil)
	_, err := r.GetCube(context.Background(), "cube-missing")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindNotFound, ae.Kind)

	_, err = r.GetCube(context.Background(), "")
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
}

func TestDeleteCube(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{})
	require.NoError(t, err)

	require.NoError(t, r.DeleteCube(ctx, cube.CubeID))
	_, err = r.GetCube(ctx, cube.CubeID)
	assert.Error(t, err)

	assert.Error(t, r.DeleteCube(ctx, cube.CubeID), "second delete reports not found")
}

func TestAddRemoveDatasets(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{})
	require.NoError(t, err)

	_, err = r.AddDatasets(ctx, cube.CubeID, nil)
	assert.Error(t, err, "empty dataset list is a validation error")

	updated, err := r.AddDatasets(ctx, cube.CubeID, []DatasetRef{{ID: "d1", Timestamp: "2025-01-15"}})
	require.NoError(t, err)
	require.Len(t, updated.Datasets, 1)
	assert.Equal(t, "d1", updated.Datasets[0].ID)
	assert.NotZero(t, updated.Datasets[0].LastModified)
	assert.Greater(t, updated.Timestamp, cube.Timestamp)

	updated, err = r.RemoveDatasets(ctx, cube.CubeID, []string{"d1"})
	require.NoError(t, err)
	assert.Empty(t, updated.Datasets)

	// removing an absent id is silent
	updated, err = r.RemoveDatasets(ctx, cube.CubeID, []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, updated.Datasets)
}

func TestReplaceDatasetsBucketIdempotence(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{Datasets: []DatasetRef{
		{ID: "jan", Timestamp: "2025-01-15"},
		{ID: "mar", Timestamp: "2025-03-10"},
	}})
	require.NoError(t, err)

	// same day bucket twice with different payloads
	_, err = r.ReplaceDatasets(ctx, cube.CubeID, []DatasetRef{{ID: "jan-v2", Timestamp: "2025-01-15"}}, "")
	require.NoError(t, err)
	updated, err := r.ReplaceDatasets(ctx, cube.CubeID, []DatasetRef{{ID: "jan-v3", Timestamp: "2025-01-15"}}, "")
	require.NoError(t, err)

	require.Len(t, updated.Datasets, 2, "replacement never duplicates a bucket")
	assert.Equal(t, "jan-v3", updated.Datasets[0].ID, "latest payload wins")
	assert.Equal(t, "mar", updated.Datasets[1].ID)
}

func TestReplaceDatasetsAppendsAndSorts(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{Datasets: []DatasetRef{
		{ID: "mar", Timestamp: "2025-03-10"},
	}})
	require.NoError(t, err)

	updated, err := r.ReplaceDatasets(ctx, cube.CubeID, []DatasetRef{
		{ID: "feb", Timestamp: "2025-02-01"},
		{ID: "jan", Timestamp: "2025-01-01"},
	}, "")
	require.NoError(t, err)

	require.Len(t, updated.Datasets, 3)
	assert.Equal(t, []string{"jan", "feb", "mar"}, []string{
		updated.Datasets[0].ID, updated.Datasets[1].ID, updated.Datasets[2].ID,
	}, "sorted by timestamp ascending")
}

func TestReplaceDatasetsMonthGranularity(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{Datasets: []DatasetRef{
		{ID: "early-jan", Timestamp: "2025-01-02"},
	}})
	require.NoError(t, err)

	updated, err := r.ReplaceDatasets(ctx, cube.CubeID, []DatasetRef{
		{ID: "late-jan", Timestamp: "2025-01-28"},
	}, "month")
	require.NoError(t, err)
	require.Len(t, updated.Datasets, 1, "same month replaces under month granularity")
	assert.Equal(t, "late-jan", updated.Datasets[0].ID)
}

func TestUpdateCubeShallowMergeStripsToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)
	cube, err := r.CreateCube(ctx, CreateCubeOptions{})
	require.NoError(t, err)

	updated, err := r.UpdateCube(ctx, cube.CubeID, map[string]any{
		"style":        "#layer { raster-opacity: 0.5; }",
		"access_token": "secret",
		"options":      map[string]any{"foo": "bar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "#layer { raster-opacity: 0.5; }", updated.Style)
	assert.Equal(t, "bar", updated.Options["foo"])
	assert.NotContains(t, updated.Options, "access_token")
	assert.Greater(t, updated.Timestamp, cube.Timestamp, "last-modified moves on style update")

	// options are replaced wholesale on the next shallow merge
	updated2, err := r.UpdateCube(ctx, cube.CubeID, map[string]any{
		"options": map[string]any{"baz": "qux"},
	})
	require.NoError(t, err)
	assert.NotContains(t, updated2.Options, "foo")
}

func TestLayerRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(nil)

	layer := &Layer{
		ID:        "layer_id-abc",
		SQL:       "(SELECT * FROM file_x) AS sub",
		CartoCSS:  DefaultRasterStyle,
		DataType:  "raster",
		TableName: "file_x",
	}
	require.NoError(t, r.SaveLayer(ctx, layer))

	got, err := r.GetLayer(ctx, "layer_id-abc")
	require.NoError(t, err)
	assert.Equal(t, layer.SQL, got.SQL)

	_, err = r.GetLayer(ctx, "layer_id-missing")
	assert.Error(t, err)
}
