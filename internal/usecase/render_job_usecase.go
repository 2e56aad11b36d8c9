package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/teris-io/shortid"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/geo"
	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/render"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/metrics"
)

// estimate throughput assumption: roughly ten tiles rendered per second
const tilesPerSecondEstimate = 10

// minimum zoom the budget downscale loop will try before giving up
const downscaleFloor = 2

// TileRef is one unit of pre-render work. MaskID and AccessToken ride
// along so the fetch warms the same cache key a masked client request
// would resolve to.
type TileRef struct {
	CubeID      string
	DatasetID   string
	Z, X, Y     int
	MaskID      string
	AccessToken string
}

// TileFetcher executes one tile-render round trip. The HTTP
// implementation calls the service's own public tile endpoint so the
// fan-out exercises the exact path a real client would; the direct
// implementation skips the network hop for single-process deployments.
type TileFetcher interface {
	FetchTile(ctx context.Context, ref TileRef) error
}

type HTTPTileFetcher struct {
	domain     string
	httpClient *http.Client
}

func NewHTTPTileFetcher(domain string, timeout time.Duration) *HTTPTileFetcher {
	return &HTTPTileFetcher{
		domain: domain,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ TileFetcher = (*HTTPTileFetcher)(nil)

func (f *HTTPTileFetcher) FetchTile(ctx context.Context, ref TileRef) error {
	tileURL := fmt.Sprintf("%s/v2/cubes/%s/%s/%d/%d/%d.png", f.domain, ref.CubeID, ref.DatasetID, ref.Z, ref.X, ref.Y)

	params := url.Values{}
	if ref.AccessToken != "" {
		params.Set("access_token", ref.AccessToken)
	}
	if ref.MaskID != "" {
		params.Set("mask_id", ref.MaskID)
	}
	if len(params) > 0 {
		tileURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tile endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

type DirectTileFetcher struct {
	tiles *TileUseCase
}

func NewDirectTileFetcher(tiles *TileUseCase) *DirectTileFetcher {
	return &DirectTileFetcher{tiles: tiles}
}

var _ TileFetcher = (*DirectTileFetcher)(nil)

func (f *DirectTileFetcher) FetchTile(ctx context.Context, ref TileRef) error {
	_, err := f.tiles.GetCubeTile(ctx, CubeTileRequest{
		CubeID:      ref.CubeID,
		DatasetID:   ref.DatasetID,
		Z:           ref.Z,
		X:           ref.X,
		Y:           ref.Y,
		Format:      render.FormatPNG,
		MaskID:      ref.MaskID,
		AccessToken: ref.AccessToken,
	})
	return err
}

// RenderJobUseCase enumerates, budgets and fans out bulk pre-render
// runs, tracking progress in the cache store.
type RenderJobUseCase struct {
	store    store.Store
	registry *registry.Registry
	datasets DatasetResolver
	fetcher  TileFetcher
	cfg      config.PreRender
	logger   logger.Logger
}

func NewRenderJobUseCase(s store.Store, r *registry.Registry, d DatasetResolver, fetcher TileFetcher, cfg config.PreRender, l logger.Logger) *RenderJobUseCase {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.DefaultMaxZoom <= 0 {
		cfg.DefaultMaxZoom = 14
	}
	if cfg.DefaultMaxTiles <= 0 {
		cfg.DefaultMaxTiles = 10000
	}
	return &RenderJobUseCase{
		store:    s,
		registry: r,
		datasets: d,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   l,
	}
}

type EstimateRequest struct {
	CubeID      string
	MaskID      string
	MaxZoom     int
	MaxTiles    int
	AccessToken string
}

type Estimate struct {
	TileCount        int       `json:"num_tiles"`
	EstimatedSeconds float64   `json:"estimated_time"`
	ZoomUsed         int       `json:"zoom"`
	Tiles            []TileRef `json:"-"`
}

// JobStatus is the polled render-job record merged with its counters.
type JobStatus struct {
	JobID             string  `json:"job_id"`
	TotalTiles        int     `json:"total_tiles"`
	TilesProcessed    int64   `json:"tiles_processed"`
	TilesFailed       int64   `json:"tiles_failed"`
	Finished          bool    `json:"finished"`
	EstimatedSeconds  float64 `json:"estimated_time"`
	ZoomUsed          int     `json:"zoom"`
	StartedAt         int64   `json:"started_at"`
	ProcessingSeconds float64 `json:"processing_time,omitempty"`
	TilesPerSecond    float64 `json:"tiles_per_second_avg,omitempty"`
}

// Estimate resolves the cube's extent and enumerates the tile set,
// halving zoom until the count fits the budget.
func (uc *RenderJobUseCase) Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error) {
	cube, err := uc.registry.GetCube(ctx, req.CubeID)
	if err != nil {
		return nil, err
	}
	if req.MaxZoom <= 0 {
		req.MaxZoom = uc.cfg.DefaultMaxZoom
	}
	if req.MaxTiles <= 0 {
		req.MaxTiles = uc.cfg.DefaultMaxTiles
	}

	if len(cube.Datasets) == 0 {
		return &Estimate{ZoomUsed: req.MaxZoom, Tiles: []TileRef{}}, nil
	}

	extent, err := uc.resolveExtent(ctx, cube, req.MaskID, req.AccessToken)
	if err != nil {
		return nil, err
	}

	// explicit bounded loop, not recursion
	zoom := req.MaxZoom
	for {
		tiles := enumerateTiles(cube, extent, zoom, req.MaskID, req.AccessToken)
		if len(tiles) <= req.MaxTiles {
			return &Estimate{
				TileCount:        len(tiles),
				EstimatedSeconds: float64(len(tiles)) / tilesPerSecondEstimate,
				ZoomUsed:         zoom,
				Tiles:            tiles,
			}, nil
		}
		zoom--
		if zoom < downscaleFloor {
			return &Estimate{ZoomUsed: 0, Tiles: []TileRef{}}, nil
		}
	}
}

// resolveExtent prefers the active mask's geometry bound and falls back
// to the first dataset's extent from the upstream service.
func (uc *RenderJobUseCase) resolveExtent(ctx context.Context, cube *registry.Cube, maskID, accessToken string) (orb.Bound, error) {
	var mask *registry.Mask
	if maskID != "" {
		mask = registry.MaskByID(cube, maskID)
	} else {
		mask = uc.registry.ActiveMask(cube)
	}
	if mask != nil {
		if b, err := mask.Extent(); err == nil {
			return b, nil
		}
		uc.logger.Warn("mask extent unavailable, falling back to dataset extent", "cube_id", cube.CubeID, "mask_id", mask.ID)
	}

	if len(cube.Datasets) == 0 {
		if mask != nil {
			return orb.Bound{}, apperr.Validation(apperr.CodeNoMaskExtent, "no mask extent available")
		}
		return orb.Bound{}, apperr.Validation(apperr.CodeNoDatasetExtent, "no dataset extent available")
	}

	detail, err := uc.datasets.GetDataset(ctx, cube.Datasets[0].ID, accessToken)
	if err != nil {
		return orb.Bound{}, err
	}
	if b, ok := datasetExtent(detail); ok {
		return b, nil
	}
	return orb.Bound{}, apperr.Validation(apperr.CodeNoDatasetExtent, "no dataset extent available")
}

// enumerateTiles lists every tile for each dataset within the extent at
// zooms 1..maxZoom, inclusive XYZ ranges.
func enumerateTiles(cube *registry.Cube, extent orb.Bound, maxZoom int, maskID, accessToken string) []TileRef {
	var tiles []TileRef
	for _, ds := range cube.Datasets {
		for z := 1; z <= maxZoom; z++ {
			minX, maxX, minY, maxY := geo.TileRange(extent, z)
			for x := minX; x <= maxX; x++ {
				for y := minY; y <= maxY; y++ {
					tiles = append(tiles, TileRef{
						CubeID:      cube.CubeID,
						DatasetID:   ds.ID,
						Z:           z,
						X:           x,
						Y:           y,
						MaskID:      maskID,
						AccessToken: accessToken,
					})
				}
			}
		}
	}
	return tiles
}

type StartRequest struct {
	EstimateRequest
	DryRun bool
}

type StartResult struct {
	Estimate
	JobID  string `json:"job_id,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// Start estimates and, unless dry-run, kicks off the asynchronous
// fan-out. The estimate is returned immediately; progress is polled via
// Status.
func (uc *RenderJobUseCase) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	estimate, err := uc.Estimate(ctx, req.EstimateRequest)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return &StartResult{Estimate: *estimate, DryRun: true}, nil
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	jobID := "render-job-" + id

	status := JobStatus{
		JobID:            jobID,
		TotalTiles:       estimate.TileCount,
		EstimatedSeconds: estimate.EstimatedSeconds,
		ZoomUsed:         estimate.ZoomUsed,
		StartedAt:        time.Now().UnixMilli(),
	}
	if err := uc.saveStatus(ctx, &status); err != nil {
		return nil, err
	}

	tiles := estimate.Tiles
	go uc.run(jobID, status, tiles)

	result := &StartResult{Estimate: *estimate, JobID: jobID}
	result.Tiles = nil // the full tile list is never echoed back
	return result, nil
}

// run fans the tile list out over a bounded worker pool. Individual
// failures are counted, never retried, and never abort the batch.
func (uc *RenderJobUseCase) run(jobID string, status JobStatus, tiles []TileRef) {
	ctx := context.Background()
	start := time.Now()

	workers := make(chan struct{}, uc.cfg.Workers)
	done := make(chan struct{})
	for _, tile := range tiles {
		workers <- struct{}{}
		go func(t TileRef) {
			defer func() {
				<-workers
				done <- struct{}{}
			}()

			if err := uc.fetcher.FetchTile(ctx, t); err != nil {
				uc.logger.Warn("pre-render tile fetch failed", "job_id", jobID,
					"z", t.Z, "x", t.X, "y", t.Y, "error", err)
				metrics.PreRenderTiles.WithLabelValues("failed").Inc()
				if _, err := uc.store.Incr(ctx, store.JobFailedKey(jobID)); err != nil {
					uc.logger.Error("failed counter increment failed", "job_id", jobID, "error", err)
				}
				return
			}
			metrics.PreRenderTiles.WithLabelValues("ok").Inc()
			if _, err := uc.store.Incr(ctx, store.JobProcessedKey(jobID)); err != nil {
				uc.logger.Error("processed counter increment failed", "job_id", jobID, "error", err)
			}
		}(tile)
	}
	for range tiles {
		<-done
	}

	elapsed := time.Since(start)
	status.Finished = true
	status.ProcessingSeconds = elapsed.Seconds()
	if elapsed > 0 {
		status.TilesPerSecond = float64(len(tiles)) / elapsed.Seconds()
	}
	if err := uc.saveStatus(ctx, &status); err != nil {
		uc.logger.Error("final job status write failed", "job_id", jobID, "error", err)
	}

	uc.logger.Info("pre-render job finished", "job_id", jobID, "tiles", len(tiles),
		"duration", elapsed, "tiles_per_second", status.TilesPerSecond)
}

func (uc *RenderJobUseCase) saveStatus(ctx context.Context, status *JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return uc.store.Set(ctx, store.JobKey(status.JobID), data)
}

// Status merges the job record with the live counters. Finished fires
// once processed+failed covers the total, so a completed-with-failures
// job is distinguishable from a stalled one.
func (uc *RenderJobUseCase) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	if jobID == "" {
		return nil, apperr.MissingInformation()
	}
	data, exists, err := uc.store.Get(ctx, store.JobKey(jobID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound(apperr.CodeNoSuchJob, fmt.Sprintf("no such render job: %s", jobID))
	}

	var status JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}

	status.TilesProcessed = uc.counter(ctx, store.JobProcessedKey(jobID))
	status.TilesFailed = uc.counter(ctx, store.JobFailedKey(jobID))
	if status.TilesProcessed+status.TilesFailed >= int64(status.TotalTiles) {
		status.Finished = true
	}
	return &status, nil
}

func (uc *RenderJobUseCase) counter(ctx context.Context, key string) int64 {
	data, exists, err := uc.store.Get(ctx, key)
	if err != nil || !exists {
		return 0
	}
	n, _ := strconv.ParseInt(string(data), 10, 64)
	return n
}
