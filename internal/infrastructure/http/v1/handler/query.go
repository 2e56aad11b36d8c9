package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/dto"
	"github.com/mapic/tilecube/internal/usecase"
)

// Query serves POST /v2/cubes/query
func (h *Handler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if !h.bind(c, &req) {
		return
	}

	points, err := h.queries.Query(c.Request.Context(), usecase.QueryRequest{
		QueryType:   req.QueryType,
		CubeID:      req.CubeID,
		Year:        req.Year,
		MaskID:      req.MaskID,
		ForceQuery:  req.ForceQuery,
		AccessToken: accessToken(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}
