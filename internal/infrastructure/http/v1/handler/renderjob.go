package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/dto"
	"github.com/mapic/tilecube/internal/usecase"
)

// EstimateRenderJob serves POST /v2/cubes/render/estimate
func (h *Handler) EstimateRenderJob(c *gin.Context) {
	var req dto.RenderJobRequest
	if !h.bind(c, &req) {
		return
	}

	estimate, err := h.jobs.Estimate(c.Request.Context(), usecase.EstimateRequest{
		CubeID:      req.CubeID,
		MaskID:      req.MaskID,
		MaxZoom:     req.MaxZoom,
		MaxTiles:    req.MaxTiles,
		AccessToken: accessToken(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// StartRenderJob serves POST /v2/cubes/render/start
func (h *Handler) StartRenderJob(c *gin.Context) {
	var req dto.RenderJobRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.jobs.Start(c.Request.Context(), usecase.StartRequest{
		EstimateRequest: usecase.EstimateRequest{
			CubeID:      req.CubeID,
			MaskID:      req.MaskID,
			MaxZoom:     req.MaxZoom,
			MaxTiles:    req.MaxTiles,
			AccessToken: accessToken(c),
		},
		DryRun: req.DryRun,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !result.DryRun {
		requestLogger(c).Info("render job started", "job_id", result.JobID, "tiles", result.TileCount)
	}
	c.JSON(http.StatusOK, result)
}

// RenderJobStatus serves POST /v2/cubes/render/status
func (h *Handler) RenderJobStatus(c *gin.Context) {
	var req dto.RenderJobStatusRequest
	if !h.bind(c, &req) {
		return
	}

	status, err := h.jobs.Status(c.Request.Context(), req.JobID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
