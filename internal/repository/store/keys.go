package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Key namespaces. Layer and cube records are stored under their own id
// with no prefix.
const (
	rasterTilePrefix = "raster_tile"
	vectorTilePrefix = "vector_tile"
	gridTilePrefix   = "grid_tile"
	proxyTilePrefix  = "proxy_tile"
	cubeTilePrefix   = "cube_tile"
	queryPrefix      = "query"
)

func RasterTileKey(layerID string, z, x, y int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d.png", rasterTilePrefix, layerID, z, x, y)
}

func VectorTileKey(layerID string, z, x, y int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d.pbf", vectorTilePrefix, layerID, z, x, y)
}

func GridTileKey(layerID string, z, x, y int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", gridTilePrefix, layerID, z, x, y)
}

func ProxyTileKey(provider string, z, x, y int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d.png", proxyTilePrefix, provider, z, x, y)
}

// CubeTileKey addresses one rendered cube tile. The style fingerprint
// bakes staleness into the key, so a style or timestamp change makes
// old entries unreachable without an invalidation sweep.
func CubeTileKey(cubeID, datasetID, styleFingerprint, maskID string, z, x, y int, ext string) string {
	if maskID == "" {
		maskID = "no-mask"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d:%d:%d.%s", cubeTilePrefix, cubeID, datasetID, styleFingerprint, maskID, z, x, y, ext)
}

// StyleFingerprint hashes the style source together with the cube's
// last-modified timestamp.
func StyleFingerprint(style string, lastModified int64) string {
	sum := md5.Sum([]byte(style + strconv.FormatInt(lastModified, 10)))
	return hex.EncodeToString(sum[:])
}

// Render job records live under the job id itself; the counters are
// sibling keys so workers can INCR them without rewriting the record.
func JobKey(jobID string) string {
	return jobID
}

func JobProcessedKey(jobID string) string {
	return jobID + "_processed_count"
}

func JobFailedKey(jobID string) string {
	return jobID + "_failed_count"
}

// VectorizeJobKey tracks the background vectorization status of one
// uploaded raster file.
func VectorizeJobKey(fileID string) string {
	return fileID + "_vectorize"
}

func QueryKey(queryType, cubeID string, year int, maskID string) string {
	return fmt.Sprintf("%s:type-%s:%s:year-%d:mask_id-%s", queryPrefix, queryType, cubeID, year, maskID)
}
