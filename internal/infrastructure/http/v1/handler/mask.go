package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/dto"
	"github.com/mapic/tilecube/internal/registry"
)

// AddMask serves POST /v2/cubes/mask
func (h *Handler) AddMask(c *gin.Context) {
	var req dto.MaskRequest
	if !h.bind(c, &req) {
		return
	}

	var spec registry.MaskSpec
	if err := json.Unmarshal(req.Mask, &spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrFailedToDecodeRequestBody.Error()})
		return
	}

	mask, err := h.registry.AddMask(c.Request.Context(), req.CubeID, spec, accessToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	requestLogger(c).Info("mask added", "cube_id", req.CubeID, "mask_id", mask.ID, "type", mask.Type)
	c.JSON(http.StatusOK, mask)
}

// RemoveMask serves POST /v2/cubes/unmask
func (h *Handler) RemoveMask(c *gin.Context) {
	var req dto.RemoveMaskRequest
	if !h.bind(c, &req) {
		return
	}

	cube, err := h.registry.RemoveMask(c.Request.Context(), req.CubeID, req.MaskID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}

// GetMask serves GET /v2/cubes/getMask?cube_id=...&mask_id=...
func (h *Handler) GetMask(c *gin.Context) {
	mask, err := h.registry.GetMask(c.Request.Context(), c.Query("cube_id"), c.Query("mask_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mask)
}

// UpdateMask serves POST /v2/cubes/updateMask
func (h *Handler) UpdateMask(c *gin.Context) {
	var req dto.UpdateMaskRequest
	if !h.bind(c, &req) {
		return
	}

	mask, err := h.registry.UpdateMask(c.Request.Context(), req.CubeID, req.MaskID, req.Mask)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mask)
}
