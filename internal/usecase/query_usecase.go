package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/repository/dataset"
	"github.com/mapic/tilecube/internal/repository/spatial"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/metrics"
)

// QueryTypeSCF is the snow-cover-fraction time series, the only
// supported aggregation.
const QueryTypeSCF = "scf"

// Pixel values inside [scfValueMin, scfValueMax] encode coverage as
// 100 + percent; everything outside the window is cloud, nodata or
// other sentinel classes and is excluded from the average.
const (
	scfValueMin = 100
	scfValueMax = 200
)

// QueryUseCase runs masked time-series aggregations over a cube's
// datasets and caches the resulting series.
type QueryUseCase struct {
	store    store.Store
	registry *registry.Registry
	datasets DatasetResolver
	spatial  spatial.Executor
	logger   logger.Logger
}

func NewQueryUseCase(s store.Store, r *registry.Registry, d DatasetResolver, sp spatial.Executor, l logger.Logger) *QueryUseCase {
	return &QueryUseCase{
		store:    s,
		registry: r,
		datasets: d,
		spatial:  sp,
		logger:   l,
	}
}

type QueryRequest struct {
	QueryType   string
	CubeID      string
	Year        int
	MaskID      string
	ForceQuery  bool
	AccessToken string
}

// DatePoint is one sample of the aggregated series.
type DatePoint struct {
	Date string  `json:"date"`
	SCF  float64 `json:"scf"`
}

// Query resolves the SCF series for one cube year, one point per
// dataset date. Results are cached under the query key; force_query
// bypasses the cached copy and recomputes.
func (uc *QueryUseCase) Query(ctx context.Context, req QueryRequest) ([]DatePoint, error) {
	if req.QueryType != QueryTypeSCF {
		return nil, apperr.Validation(apperr.CodeInvalidQueryType, "unsupported query type: "+req.QueryType)
	}

	cube, err := uc.registry.GetCube(ctx, req.CubeID)
	if err != nil {
		return nil, err
	}

	key := store.QueryKey(req.QueryType, req.CubeID, req.Year, req.MaskID)
	if !req.ForceQuery {
		if data, exists, err := uc.store.Get(ctx, key); err == nil && exists {
			var cached []DatePoint
			if err := json.Unmarshal(data, &cached); err == nil {
				uc.logger.Debug("query cache hit", "key", key)
				return cached, nil
			}
		}
	}

	masks, err := uc.resolveMasks(cube, req.MaskID)
	if err != nil {
		return nil, err
	}

	refs := filterByYear(cube.Datasets, req.Year)
	if len(refs) == 0 {
		return []DatePoint{}, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	details, err := uc.datasets.GetDatasets(ctx, ids, req.AccessToken)
	if err != nil {
		return nil, err
	}
	detailByID := make(map[string]*dataset.Dataset, len(details))
	for i := range details {
		detailByID[details[i].ID] = &details[i]
	}

	start := time.Now()
	points := make([]DatePoint, 0, len(refs))
	for _, ref := range refs {
		detail, ok := detailByID[ref.ID]
		if !ok {
			uc.logger.Warn("dataset detail missing, skipping", "dataset_id", ref.ID)
			continue
		}

		counts, ok := uc.datasetCounts(ctx, detail, masks, req.AccessToken)
		if !ok {
			continue
		}
		points = append(points, DatePoint{Date: ref.Timestamp, SCF: calcSCF(counts)})
	}
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	if data, err := json.Marshal(points); err == nil {
		if err := uc.store.Set(ctx, key, data); err != nil {
			uc.logger.Warn("query result cache write failed", "key", key, "error", err)
		}
	}

	return points, nil
}

// resolveMasks picks the query's masks: the named one when mask_id is
// given, every mask on the cube otherwise. A cube without masks queries
// the whole raster.
func (uc *QueryUseCase) resolveMasks(cube *registry.Cube, maskID string) ([]*registry.Mask, error) {
	if maskID != "" {
		m := registry.MaskByID(cube, maskID)
		if m == nil {
			return nil, apperr.NotFound(apperr.CodeNoSuchMask, "no such mask: "+maskID)
		}
		return []*registry.Mask{m}, nil
	}
	masks := make([]*registry.Mask, 0, len(cube.Masks))
	for i := range cube.Masks {
		masks = append(masks, &cube.Masks[i])
	}
	return masks, nil
}

// datasetCounts aggregates pixel-value counts over every mask for one
// dataset date. Counts are summed across masks before the ratio so
// multi-mask series weight regions by area, not per-mask average. Any
// failing dataset is skipped rather than failing the series.
func (uc *QueryUseCase) datasetCounts(ctx context.Context, detail *dataset.Dataset, masks []*registry.Mask, accessToken string) (map[int]int64, bool) {
	counts := make(map[int]int64)

	if len(masks) == 0 {
		vcs, err := uc.spatial.ValueCounts(ctx, spatial.ValueCountRequest{
			DatabaseName: detail.DatabaseName,
			TableName:    detail.TableName,
			MaskKind:     spatial.MaskNone,
		})
		if err != nil {
			uc.logger.Warn("value count query failed, skipping dataset", "dataset_id", detail.ID, "error", err)
			return nil, false
		}
		for _, vc := range vcs {
			counts[vc.Value] += vc.Count
		}
		return counts, true
	}

	for _, mask := range masks {
		req := spatial.ValueCountRequest{
			DatabaseName: detail.DatabaseName,
			TableName:    detail.TableName,
		}
		switch mask.Type {
		case registry.MaskPostGISRaster:
			maskDetail, err := uc.datasets.GetDataset(ctx, mask.DatasetID, accessToken)
			if err != nil {
				uc.logger.Warn("raster mask dataset lookup failed, skipping dataset", "dataset_id", detail.ID, "mask_id", mask.ID, "error", err)
				return nil, false
			}
			req.MaskKind = spatial.MaskRasterTable
			req.MaskTable = maskDetail.TableName
		default:
			req.MaskKind = spatial.MaskGeometry
			req.MaskGeoJSON = mask.Geometry
		}

		vcs, err := uc.spatial.ValueCounts(ctx, req)
		if err != nil {
			uc.logger.Warn("value count query failed, skipping dataset", "dataset_id", detail.ID, "mask_id", mask.ID, "error", err)
			return nil, false
		}
		for _, vc := range vcs {
			counts[vc.Value] += vc.Count
		}
	}
	return counts, true
}

// calcSCF averages the coverage window and rebases to percent.
func calcSCF(counts map[int]int64) float64 {
	var weighted, total int64
	for value, count := range counts {
		if value < scfValueMin || value > scfValueMax {
			continue
		}
		weighted += int64(value) * count
		total += count
	}
	if total == 0 {
		return 0
	}
	return float64(weighted)/float64(total) - 100
}

func filterByYear(refs []registry.DatasetRef, year int) []registry.DatasetRef {
	if year == 0 {
		return refs
	}
	var out []registry.DatasetRef
	for _, ref := range refs {
		if ref.Time().Year() == year {
			out = append(out, ref)
		}
	}
	return out
}
