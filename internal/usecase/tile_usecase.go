package usecase

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/mapic/tilecube/internal/geo"
	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/render"
	"github.com/mapic/tilecube/internal/repository/dataset"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/metrics"
)

// maskExtentPadding widens the mask bound before the overlap test so
// tiles straddling the mask edge still render.
const maskExtentPadding = 0.5

// DatasetResolver is the slice of the upstream dataset client the tile
// and query paths need.
type DatasetResolver interface {
	GetDataset(ctx context.Context, id, accessToken string) (*dataset.Dataset, error)
	GetDatasets(ctx context.Context, ids []string, accessToken string) ([]dataset.Dataset, error)
}

// TileUseCase drives a single tile request: cache check, extent
// applicability, render backend invocation and write-through.
type TileUseCase struct {
	store    store.Store
	registry *registry.Registry
	datasets DatasetResolver
	renderer render.Backend
	logger   logger.Logger
}

func NewTileUseCase(s store.Store, r *registry.Registry, d DatasetResolver, backend render.Backend, l logger.Logger) *TileUseCase {
	return &TileUseCase{
		store:    s,
		registry: r,
		datasets: d,
		renderer: backend,
		logger:   l,
	}
}

type LayerTileRequest struct {
	LayerID     string
	Z, X, Y     int
	Format      render.Format
	ForceRender bool
	AccessToken string
}

type CubeTileRequest struct {
	CubeID      string
	DatasetID   string
	Z, X, Y     int
	Format      render.Format
	MaskID      string
	ApplyMask   bool
	ForceRender bool
	AccessToken string
}

type TileResult struct {
	Data        []byte
	Format      render.Format
	CacheHit    bool
	Placeholder bool
}

func placeholderResult(format render.Format, errored bool) *TileResult {
	var data []byte
	switch {
	case format != render.FormatPNG:
		data = render.EmptyJSON()
	case errored:
		data = render.ErrorTilePNG()
	default:
		data = render.EmptyTilePNG()
	}
	return &TileResult{Data: data, Format: format, Placeholder: true}
}

func layerTileKey(layerID string, format render.Format, z, x, y int) string {
	switch format {
	case render.FormatPBF:
		return store.VectorTileKey(layerID, z, x, y)
	case render.FormatGrid:
		return store.GridTileKey(layerID, z, x, y)
	default:
		return store.RasterTileKey(layerID, z, x, y)
	}
}

func (uc *TileUseCase) GetLayerTile(ctx context.Context, req LayerTileRequest) (*TileResult, error) {
	layer, err := uc.registry.GetLayer(ctx, req.LayerID)
	if err != nil {
		return nil, err
	}

	key := layerTileKey(req.LayerID, req.Format, req.Z, req.X, req.Y)
	if !req.ForceRender {
		if data, hit := uc.cacheRead(ctx, key); hit {
			return &TileResult{Data: data, Format: req.Format, CacheHit: true}, nil
		}
	}

	if outside, checked := uc.outsideLayerExtent(layer, req.Z, req.X, req.Y); checked && outside {
		metrics.EmptyTiles.Inc()
		return placeholderResult(req.Format, false), nil
	}

	var ds render.Datasource
	if layer.DataType == "raster" {
		band := layer.RasterBand
		if band == 0 {
			band = 1
		}
		ds = render.PGRaster(layer.DatabaseName, layer.TableName, band, nil)
	} else {
		ds = render.PostGISVector(layer.DatabaseName, layer.SQL, layer.GeomColumn, layer.SRID)
	}

	data, err := uc.renderer.Render(ctx, render.Request{
		Format:       req.Format,
		Z:            req.Z,
		X:            req.X,
		Y:            req.Y,
		Style:        layer.CartoCSS,
		StyleVersion: layer.CartoCSSVersion,
		Datasource:   ds,
	})
	if err != nil {
		metrics.RenderErrors.Inc()
		uc.logger.Error("layer tile render failed", "layer_id", req.LayerID, "z", req.Z, "x", req.X, "y", req.Y, "error", err)
		return placeholderResult(req.Format, true), nil
	}

	uc.writeThrough(ctx, key, data)

	return &TileResult{Data: data, Format: req.Format}, nil
}

func (uc *TileUseCase) GetCubeTile(ctx context.Context, req CubeTileRequest) (*TileResult, error) {
	cube, err := uc.registry.GetCube(ctx, req.CubeID)
	if err != nil {
		return nil, err
	}

	fingerprint := store.StyleFingerprint(cube.Style, cube.Timestamp)
	key := store.CubeTileKey(req.CubeID, req.DatasetID, fingerprint, req.MaskID, req.Z, req.X, req.Y, string(req.Format))

	if !req.ForceRender {
		if data, hit := uc.cacheRead(ctx, key); hit {
			return &TileResult{Data: data, Format: req.Format, CacheHit: true}, nil
		}
	}

	// extent applicability fails open: a metadata error never blocks serving
	detail, err := uc.datasets.GetDataset(ctx, req.DatasetID, req.AccessToken)
	if err != nil {
		uc.logger.Warn("dataset detail lookup failed, skipping extent check", "dataset_id", req.DatasetID, "error", err)
		detail = nil
	}

	tileBound := geo.TileBound(req.Z, req.X, req.Y)

	if detail != nil {
		if extent, ok := datasetExtent(detail); ok && !geo.IsDegenerate(extent) && !geo.Overlaps(tileBound, extent) {
			metrics.EmptyTiles.Inc()
			return placeholderResult(req.Format, false), nil
		}
	}

	mask := uc.resolveMask(cube, req.MaskID)
	if mask != nil {
		if extent, err := mask.Extent(); err == nil && !geo.IsDegenerate(extent) {
			if !geo.Overlaps(tileBound, geo.Pad(extent, maskExtentPadding)) {
				metrics.EmptyTiles.Inc()
				return placeholderResult(req.Format, false), nil
			}
		}
	}

	if detail == nil {
		// no connection parameters to hand the renderer
		metrics.RenderErrors.Inc()
		return placeholderResult(req.Format, true), nil
	}

	var maskGeom []byte
	if req.ApplyMask && mask != nil && len(mask.Geometry) > 0 {
		maskGeom = mask.Geometry
	}

	data, err := uc.renderer.Render(ctx, render.Request{
		Format:     req.Format,
		Z:          req.Z,
		X:          req.X,
		Y:          req.Y,
		Style:      cube.Style,
		Quality:    cube.Quality,
		Datasource: render.PGRaster(detail.DatabaseName, detail.TableName, 1, maskGeom),
	})
	if err != nil {
		metrics.RenderErrors.Inc()
		uc.logger.Error("cube tile render failed", "cube_id", req.CubeID, "dataset_id", req.DatasetID,
			"z", req.Z, "x", req.X, "y", req.Y, "error", err)
		return placeholderResult(req.Format, true), nil
	}

	uc.writeThrough(ctx, key, data)

	return &TileResult{Data: data, Format: req.Format}, nil
}

func (uc *TileUseCase) cacheRead(ctx context.Context, key string) ([]byte, bool) {
	data, exists, err := uc.store.Get(ctx, key)
	if err != nil {
		uc.logger.Error("tile cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !exists {
		metrics.TileCacheMisses.Inc()
		return nil, false
	}
	metrics.TileCacheHits.Inc()
	return data, true
}

// writeThrough persists rendered bytes under the cache key. A failure
// is logged and the rendered bytes are still served.
func (uc *TileUseCase) writeThrough(ctx context.Context, key string, data []byte) {
	if err := uc.store.Set(ctx, key, data); err != nil {
		uc.logger.Error("tile write-through failed", "key", key, "error", err)
		return
	}
	metrics.TileCacheStores.Inc()
}

func (uc *TileUseCase) resolveMask(cube *registry.Cube, maskID string) *registry.Mask {
	if maskID != "" {
		return registry.MaskByID(cube, maskID)
	}
	return uc.registry.ActiveMask(cube)
}

func (uc *TileUseCase) outsideLayerExtent(layer *registry.Layer, z, x, y int) (outside, checked bool) {
	extent, ok := layerExtent(layer)
	if !ok || geo.IsDegenerate(extent) {
		return false, false
	}
	return !geo.Overlaps(geo.TileBound(z, x, y), extent), true
}

func layerExtent(layer *registry.Layer) (orb.Bound, bool) {
	if len(layer.Metadata.ExtentGeoJSON) > 0 {
		if b, err := geo.ExtentFromGeoJSON(layer.Metadata.ExtentGeoJSON); err == nil {
			return b, true
		}
	}
	if layer.Metadata.Extent != "" {
		if b, err := geo.ParseExtent(layer.Metadata.Extent); err == nil {
			return b, true
		}
	}
	return orb.Bound{}, false
}

func datasetExtent(d *dataset.Dataset) (orb.Bound, bool) {
	if len(d.Metadata.ExtentGeoJSON) > 0 {
		if b, err := geo.ExtentFromGeoJSON(d.Metadata.ExtentGeoJSON); err == nil {
			return b, true
		}
	}
	if d.Metadata.Extent != "" {
		if b, err := geo.ParseExtent(d.Metadata.Extent); err == nil {
			return b, true
		}
	}
	return orb.Bound{}, false
}
