package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/repository/dataset"
	"github.com/mapic/tilecube/internal/repository/spatial"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
)

type stubSpatial struct {
	counts     map[string][]spatial.ValueCount // keyed by table name
	maskCounts map[string][]spatial.ValueCount // keyed by mask geometry, wins over counts
	failing    map[string]bool
	calls      int

	vectorizeStats  []spatial.ColumnStats
	vectorizeErr    error
	vectorizeTarget string
}

func (s *stubSpatial) ValueCounts(_ context.Context, req spatial.ValueCountRequest) ([]spatial.ValueCount, error) {
	s.calls++
	if s.failing[req.TableName] {
		return nil, errors.New("query failed")
	}
	if vcs, ok := s.maskCounts[string(req.MaskGeoJSON)]; ok {
		return vcs, nil
	}
	return s.counts[req.TableName], nil
}

func (s *stubSpatial) Vectorize(_ context.Context, _, _, target string) ([]spatial.ColumnStats, error) {
	s.vectorizeTarget = target
	if s.vectorizeErr != nil {
		return nil, s.vectorizeErr
	}
	return s.vectorizeStats, nil
}

func newQueryFixture(t *testing.T, resolver DatasetResolver, sp spatial.Executor) (*QueryUseCase, *registry.Registry, store.Store) {
	t.Helper()
	s := store.NewMapStore()
	reg := registry.New(s, nopFetcher{}, 0, "day", logger.Nop())
	return NewQueryUseCase(s, reg, resolver, sp, logger.Nop()), reg, s
}

func queryDataset(id, table string) dataset.Dataset {
	return dataset.Dataset{ID: id, TableName: table, DatabaseName: "snow_db"}
}

func TestQueryRejectsUnknownType(t *testing.T) {
	uc, reg, _ := newQueryFixture(t, &stubResolver{}, &stubSpatial{})
	cube, err := reg.CreateCube(context.Background(), registry.CreateCubeOptions{})
	require.NoError(t, err)

	_, err = uc.Query(context.Background(), QueryRequest{QueryType: "histogram", CubeID: cube.CubeID})
	assert.Error(t, err)
}

func TestQuerySCFAveragesCoverageWindow(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-1": queryDataset("ds-1", "t1"),
	}}
	sp := &stubSpatial{counts: map[string][]spatial.ValueCount{
		"t1": {{Value: 150, Count: 10}},
	}}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{{ID: "ds-1", Timestamp: "2023-02-01"}},
	})
	require.NoError(t, err)

	points, err := uc.Query(ctx, QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "2023-02-01", points[0].Date)
	assert.InDelta(t, 50.0, points[0].SCF, 1e-9)
}

func TestQuerySCFExcludesSentinelValues(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-1": queryDataset("ds-1", "t1"),
	}}
	// 0 (nodata) and 250 (cloud class) must not influence the average
	sp := &stubSpatial{counts: map[string][]spatial.ValueCount{
		"t1": {
			{Value: 0, Count: 1000},
			{Value: 100, Count: 5},
			{Value: 200, Count: 5},
			{Value: 250, Count: 1000},
		},
	}}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{{ID: "ds-1", Timestamp: "2023-02-01"}},
	})
	require.NoError(t, err)

	points, err := uc.Query(ctx, QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 50.0, points[0].SCF, 1e-9)
}

func TestQueryYearFilter(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-2022": queryDataset("ds-2022", "t2022"),
		"ds-2023": queryDataset("ds-2023", "t2023"),
	}}
	sp := &stubSpatial{counts: map[string][]spatial.ValueCount{
		"t2022": {{Value: 120, Count: 1}},
		"t2023": {{Value: 180, Count: 1}},
	}}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{
			{ID: "ds-2022", Timestamp: "2022-06-01"},
			{ID: "ds-2023", Timestamp: "2023-06-01"},
		},
	})
	require.NoError(t, err)

	points, err := uc.Query(ctx, QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "2023-06-01", points[0].Date)
	assert.InDelta(t, 80.0, points[0].SCF, 1e-9)
}

func TestQuerySkipsFailingDataset(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-ok":  queryDataset("ds-ok", "t_ok"),
		"ds-bad": queryDataset("ds-bad", "t_bad"),
	}}
	sp := &stubSpatial{
		counts:  map[string][]spatial.ValueCount{"t_ok": {{Value: 110, Count: 1}}},
		failing: map[string]bool{"t_bad": true},
	}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{
			{ID: "ds-ok", Timestamp: "2023-01-01"},
			{ID: "ds-bad", Timestamp: "2023-01-02"},
		},
	})
	require.NoError(t, err)

	points, err := uc.Query(ctx, QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023})
	require.NoError(t, err)
	require.Len(t, points, 1, "failing dataset drops out of the series")
	assert.Equal(t, "2023-01-01", points[0].Date)
}

func TestQueryMultiMaskSumsCountsBeforeRatio(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-1": queryDataset("ds-1", "t1"),
	}}

	geomA := `{"type":"Polygon","coordinates":[[[10,60],[11,60],[11,61],[10,61],[10,60]]]}`
	geomB := `{"type":"Polygon","coordinates":[[[20,60],[21,60],[21,61],[20,61],[20,60]]]}`

	// per-mask SCFs would be 20 and 80; area-weighted sum gives 35
	sp := &stubSpatial{maskCounts: map[string][]spatial.ValueCount{
		geomA: {{Value: 120, Count: 3}},
		geomB: {{Value: 180, Count: 1}},
	}}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{{ID: "ds-1", Timestamp: "2023-03-01"}},
	})
	require.NoError(t, err)

	masks := []map[string]any{
		{"id": "mask-a", "type": "geojson", "geometry": json.RawMessage(geomA)},
		{"id": "mask-b", "type": "geojson", "geometry": json.RawMessage(geomB)},
	}
	_, err = reg.UpdateCube(ctx, cube.CubeID, map[string]any{"masks": masks})
	require.NoError(t, err)

	points, err := uc.Query(ctx, QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023})
	require.NoError(t, err)
	require.Len(t, points, 1)
	// (120*3 + 180*1) / 4 - 100 = 35
	assert.InDelta(t, 35.0, points[0].SCF, 1e-9)
}

func TestQueryCachesResult(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{datasets: map[string]dataset.Dataset{
		"ds-1": queryDataset("ds-1", "t1"),
	}}
	sp := &stubSpatial{counts: map[string][]spatial.ValueCount{
		"t1": {{Value: 150, Count: 2}},
	}}
	uc, reg, _ := newQueryFixture(t, resolver, sp)

	cube, err := reg.CreateCube(ctx, registry.CreateCubeOptions{
		Datasets: []registry.DatasetRef{{ID: "ds-1", Timestamp: "2023-02-01"}},
	})
	require.NoError(t, err)

	req := QueryRequest{QueryType: QueryTypeSCF, CubeID: cube.CubeID, Year: 2023}
	first, err := uc.Query(ctx, req)
	require.NoError(t, err)
	callsAfterFirst := sp.calls

	second, err := uc.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, sp.calls, "second query served from cache")

	req.ForceQuery = true
	_, err = uc.Query(ctx, req)
	require.NoError(t, err)
	assert.Greater(t, sp.calls, callsAfterFirst, "force_query recomputes")
}
