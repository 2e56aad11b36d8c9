package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/dto"
	"github.com/mapic/tilecube/internal/usecase"
)

// CreateLayer serves POST /v2/layers/create
func (h *Handler) CreateLayer(c *gin.Context) {
	var req dto.CreateLayerRequest
	if !h.bind(c, &req) {
		return
	}

	layer, err := h.layers.CreateLayer(c.Request.Context(), usecase.CreateLayerRequest{
		FileID:          req.FileID,
		SQL:             req.SQL,
		CartoCSS:        req.CartoCSS,
		CartoCSSVersion: req.CartoCSSVersion,
		GeomColumn:      req.GeomColumn,
		GeomType:        req.GeomType,
		RasterBand:      req.RasterBand,
		SRID:            req.SRID,
		AccessToken:     accessToken(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	requestLogger(c).Info("layer created", "layer_id", layer.ID)
	c.JSON(http.StatusOK, layer)
}

// GetLayer serves GET /v2/layers/get?layer_id=...
func (h *Handler) GetLayer(c *gin.Context) {
	layer, err := h.layers.GetLayer(c.Request.Context(), c.Query("layer_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, layer)
}

// Vectorize serves POST /v2/layers/vectorize
func (h *Handler) Vectorize(c *gin.Context) {
	var req dto.VectorizeRequest
	if !h.bind(c, &req) {
		return
	}

	status, err := h.layers.Vectorize(c.Request.Context(), req.FileID, accessToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// VectorizeStatus serves GET /v2/layers/vectorize/status?file_id=...
func (h *Handler) VectorizeStatus(c *gin.Context) {
	status, err := h.layers.VectorizeJobStatus(c.Request.Context(), c.Query("file_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
