package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapic/tilecube/internal/infrastructure/http/v1/handler"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.Default()

	r.Use(gin.Recovery())

	// Add OpenTelemetry middleware if enabled
	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("tilecube"))
	}

	r.Use(ginZapLogger(l))

	v2 := r.Group("/v2")

	v2.GET("/healthz", handler.Healthz)

	cubes := v2.Group("/cubes")
	cubes.POST("/create", handler.CreateCube)
	cubes.GET("/get", handler.GetCube)
	cubes.POST("/update", handler.UpdateCube)
	cubes.POST("/delete", handler.DeleteCube)
	cubes.POST("/addDataset", handler.AddDatasets)
	cubes.POST("/deleteDataset", handler.RemoveDatasets)
	cubes.POST("/replaceDataset", handler.ReplaceDatasets)
	cubes.POST("/mask", handler.AddMask)
	cubes.POST("/unmask", handler.RemoveMask)
	cubes.GET("/getMask", handler.GetMask)
	cubes.POST("/updateMask", handler.UpdateMask)
	cubes.POST("/query", handler.Query)

	render := cubes.Group("/render")
	render.POST("/start", handler.StartRenderJob)
	render.POST("/estimate", handler.EstimateRenderJob)
	render.POST("/status", handler.RenderJobStatus)

	// the :y segment carries the format extension, e.g. 341.png
	cubes.GET("/:cube/:dataset/:z/:x/:y", handler.CubeTile)

	layers := v2.Group("/layers")
	layers.POST("/create", handler.CreateLayer)
	layers.GET("/get", handler.GetLayer)
	layers.POST("/vectorize", handler.Vectorize)
	layers.GET("/vectorize/status", handler.VectorizeStatus)

	v2.GET("/tiles/:layer/:z/:x/:y", handler.LayerTile)
	v2.GET("/proxy/:provider/:z/:x/:y", handler.ProxyTile)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
