package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	TileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	TileCacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_stores_total",
		Help: "Total number of tile write-through operations",
	})

	EmptyTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "empty_tiles_total",
		Help: "Tiles short-circuited to the empty placeholder (outside extent)",
	})

	RenderErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_errors_total",
		Help: "Render backend failures degraded to the error placeholder",
	})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "render_duration_seconds",
		Help:    "Duration of render backend calls in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	PreRenderTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prerender_tiles_total",
		Help: "Pre-render fan-out tile fetches by result",
	}, []string{"result"})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spatial_query_duration_seconds",
		Help:    "Duration of masked spatial aggregation queries in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_duration_seconds",
		Help:    "Duration of cache store operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Total number of cache store errors",
	}, []string{"operation"})
)
