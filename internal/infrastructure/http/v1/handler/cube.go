package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/dto"
	"github.com/mapic/tilecube/internal/registry"
)

func toRegistryRefs(refs []dto.DatasetRef) []registry.DatasetRef {
	out := make([]registry.DatasetRef, len(refs))
	for i, ref := range refs {
		out[i] = registry.DatasetRef{
			ID:          ref.ID,
			Description: ref.Description,
			Timestamp:   ref.Timestamp,
		}
	}
	return out
}

// CreateCube serves POST /v2/cubes/create
func (h *Handler) CreateCube(c *gin.Context) {
	var req dto.CreateCubeRequest
	if !h.bind(c, &req) {
		return
	}

	cube, err := h.registry.CreateCube(c.Request.Context(), registry.CreateCubeOptions{
		Style:    req.Style,
		Quality:  req.Quality,
		Datasets: toRegistryRefs(req.Datasets),
		Options:  req.Options,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	requestLogger(c).Info("cube created", "cube_id", cube.CubeID)
	c.JSON(http.StatusOK, cube)
}

// GetCube serves GET /v2/cubes/get?cube_id=...
func (h *Handler) GetCube(c *gin.Context) {
	cube, err := h.registry.GetCube(c.Request.Context(), c.Query("cube_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}

// DeleteCube serves POST /v2/cubes/delete
func (h *Handler) DeleteCube(c *gin.Context) {
	var req struct {
		CubeID string `json:"cube_id" validate:"required"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.registry.DeleteCube(c.Request.Context(), req.CubeID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cube_id": req.CubeID, "deleted": true})
}

// UpdateCube serves POST /v2/cubes/update with a partial cube document.
func (h *Handler) UpdateCube(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrFailedToDecodeRequestBody.Error()})
		return
	}

	cubeID, _ := partial["cube_id"].(string)
	cube, err := h.registry.UpdateCube(c.Request.Context(), cubeID, partial)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}

// AddDatasets serves POST /v2/cubes/addDataset
func (h *Handler) AddDatasets(c *gin.Context) {
	var req dto.CubeDatasetsRequest
	if !h.bind(c, &req) {
		return
	}

	cube, err := h.registry.AddDatasets(c.Request.Context(), req.CubeID, toRegistryRefs(req.Datasets))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}

// RemoveDatasets serves POST /v2/cubes/deleteDataset
func (h *Handler) RemoveDatasets(c *gin.Context) {
	var req dto.CubeDatasetsRequest
	if !h.bind(c, &req) {
		return
	}

	ids := make([]string, len(req.Datasets))
	for i, ref := range req.Datasets {
		ids[i] = ref.ID
	}

	cube, err := h.registry.RemoveDatasets(c.Request.Context(), req.CubeID, ids)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}

// ReplaceDatasets serves POST /v2/cubes/replaceDataset
func (h *Handler) ReplaceDatasets(c *gin.Context) {
	var req dto.CubeDatasetsRequest
	if !h.bind(c, &req) {
		return
	}

	cube, err := h.registry.ReplaceDatasets(c.Request.Context(), req.CubeID, toRegistryRefs(req.Datasets), c.Query("granularity"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cube)
}
