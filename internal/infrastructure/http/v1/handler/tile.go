package handler

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/render"
	"github.com/mapic/tilecube/internal/usecase"
)

const tileCacheControl = "private, max-age=3600"

// tileCoords parses the :z/:x/:y route segments. The y segment carries
// the format as its extension, e.g. "341.png".
func tileCoords(c *gin.Context) (z, x, y int, format render.Format, ok bool) {
	strZ := c.Param("z")
	strX := c.Param("x")
	strY, ext, found := strings.Cut(c.Param("y"), ".")
	if !found {
		ext = string(render.FormatPNG)
	}

	format = render.Format(ext)
	if !render.ValidFormat(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported tile format: " + ext})
		return 0, 0, 0, "", false
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		requestLogger(c).Warn("invalid z parameter", "z", strZ, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "z should be integer"})
		return 0, 0, 0, "", false
	}
	x, err = strconv.Atoi(strX)
	if err != nil {
		requestLogger(c).Warn("invalid x parameter", "x", strX, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "x should be integer"})
		return 0, 0, 0, "", false
	}
	y, err = strconv.Atoi(strY)
	if err != nil {
		requestLogger(c).Warn("invalid y parameter", "y", strY, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "y should be integer"})
		return 0, 0, 0, "", false
	}
	return z, x, y, format, true
}

// placeholderBody is what tile endpoints serve instead of an error
// response. A well-formed tile URL always gets a 200 tile body; only
// malformed coordinates are rejected.
func placeholderBody(format render.Format) []byte {
	if format == render.FormatPNG {
		return render.ErrorTilePNG()
	}
	return render.EmptyJSON()
}

// LayerTile serves GET /v2/tiles/:layer/:z/:x/:y.:type
func (h *Handler) LayerTile(c *gin.Context) {
	z, x, y, format, ok := tileCoords(c)
	if !ok {
		return
	}

	res, err := h.tiles.GetLayerTile(c.Request.Context(), usecase.LayerTileRequest{
		LayerID:     c.Param("layer"),
		Z:           z,
		X:           x,
		Y:           y,
		Format:      format,
		ForceRender: c.Query("force_render") == "true",
		AccessToken: accessToken(c),
	})
	if err != nil {
		requestLogger(c).Warn("layer tile failed, serving placeholder",
			"layer_id", c.Param("layer"), "z", z, "x", x, "y", y, "error", err)
		h.writeTile(c, format, placeholderBody(format))
		return
	}

	h.writeTile(c, format, res.Data)
}

// CubeTile serves GET /v2/cubes/:cube/:dataset/:z/:x/:y.:type
func (h *Handler) CubeTile(c *gin.Context) {
	z, x, y, format, ok := tileCoords(c)
	if !ok {
		return
	}

	res, err := h.tiles.GetCubeTile(c.Request.Context(), usecase.CubeTileRequest{
		CubeID:      c.Param("cube"),
		DatasetID:   c.Param("dataset"),
		Z:           z,
		X:           x,
		Y:           y,
		Format:      format,
		MaskID:      c.Query("mask_id"),
		ApplyMask:   c.Query("mask") == "true",
		ForceRender: c.Query("force_render") == "true",
		AccessToken: accessToken(c),
	})
	if err != nil {
		requestLogger(c).Warn("cube tile failed, serving placeholder",
			"cube_id", c.Param("cube"), "z", z, "x", x, "y", y, "error", err)
		h.writeTile(c, format, placeholderBody(format))
		return
	}

	h.writeTile(c, format, res.Data)
}

// ProxyTile serves GET /v2/proxy/:provider/:z/:x/:y.:type
func (h *Handler) ProxyTile(c *gin.Context) {
	z, x, y, _, ok := tileCoords(c)
	if !ok {
		return
	}

	data, err := h.proxy.GetTile(c.Request.Context(), c.Param("provider"), z, x, y)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Cache-Control", tileCacheControl)
	c.Data(http.StatusOK, "image/png", data)
}

// writeTile emits tile bytes with the format's content type. Vector
// tiles are gzip-compressed on the wire.
func (h *Handler) writeTile(c *gin.Context, format render.Format, data []byte) {
	c.Header("Cache-Control", tileCacheControl)

	if format == render.FormatPBF {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err == nil && zw.Close() == nil {
			c.Header("Content-Encoding", "gzip")
			c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
			return
		}
		requestLogger(c).Warn("pbf gzip failed, serving uncompressed")
	}

	c.Data(http.StatusOK, format.ContentType(), data)
}
