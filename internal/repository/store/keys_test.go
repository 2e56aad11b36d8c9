package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileKeys(t *testing.T) {
	assert.Equal(t, "raster_tile:layer_id-abc:3:4:5.png", RasterTileKey("layer_id-abc", 3, 4, 5))
	assert.Equal(t, "vector_tile:layer_id-abc:3:4:5.pbf", VectorTileKey("layer_id-abc", 3, 4, 5))
	assert.Equal(t, "grid_tile:layer_id-abc:3:4:5", GridTileKey("layer_id-abc", 3, 4, 5))
	assert.Equal(t, "proxy_tile:osm:3:4:5.png", ProxyTileKey("osm", 3, 4, 5))
}

func TestCubeTileKey(t *testing.T) {
	key := CubeTileKey("cube-1", "d1", "ff00", "mask-1", 2, 1, 1, "png")
	assert.Equal(t, "cube_tile:cube-1:d1:ff00:mask-1:2:1:1.png", key)

	noMask := CubeTileKey("cube-1", "d1", "ff00", "", 2, 1, 1, "png")
	assert.Contains(t, noMask, ":no-mask:")
}

func TestStyleFingerprint(t *testing.T) {
	a := StyleFingerprint("#layer { raster-opacity: 1; }", 100)
	assert.Len(t, a, 32)
	assert.Equal(t, a, StyleFingerprint("#layer { raster-opacity: 1; }", 100), "deterministic")

	// fingerprint changes when either the style or the timestamp moves
	assert.NotEqual(t, a, StyleFingerprint("#layer { raster-opacity: 0.5; }", 100))
	assert.NotEqual(t, a, StyleFingerprint("#layer { raster-opacity: 1; }", 101))
}

func TestJobKeys(t *testing.T) {
	assert.Equal(t, "render-job-x", JobKey("render-job-x"))
	assert.Equal(t, "render-job-x_processed_count", JobProcessedKey("render-job-x"))
	assert.Equal(t, "render-job-x_failed_count", JobFailedKey("render-job-x"))
}

func TestQueryKey(t *testing.T) {
	assert.Equal(t, "query:type-scf:cube-1:year-2025:mask_id-mask-9", QueryKey("scf", "cube-1", 2025, "mask-9"))
}
