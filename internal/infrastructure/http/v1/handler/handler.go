package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/usecase"
	"github.com/mapic/tilecube/pkg/logger"
)

type Handler struct {
	validate *validator.Validate
	registry *registry.Registry
	tiles    *usecase.TileUseCase
	jobs     *usecase.RenderJobUseCase
	queries  *usecase.QueryUseCase
	layers   *usecase.LayerUseCase
	proxy    *usecase.ProxyUseCase
}

func NewHandler(
	v *validator.Validate,
	reg *registry.Registry,
	tiles *usecase.TileUseCase,
	jobs *usecase.RenderJobUseCase,
	queries *usecase.QueryUseCase,
	layers *usecase.LayerUseCase,
	proxy *usecase.ProxyUseCase,
) *Handler {
	return &Handler{
		validate: v,
		registry: reg,
		tiles:    tiles,
		jobs:     jobs,
		queries:  queries,
		layers:   layers,
		proxy:    proxy,
	}
}

func requestLogger(c *gin.Context) logger.Logger {
	if log, ok := c.Get("logger"); ok {
		if l, ok := log.(logger.Logger); ok {
			return l
		}
	}
	return logger.Nop()
}

// bind decodes and validates a JSON body, responding on failure.
func (h *Handler) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrFailedToDecodeRequestBody.Error()})
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func accessToken(c *gin.Context) string {
	return c.Query("access_token")
}
