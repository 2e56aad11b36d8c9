package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	v1 "github.com/mapic/tilecube/internal/infrastructure/http/v1"
	"github.com/mapic/tilecube/internal/infrastructure/http/v1/handler"
	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/render"
	"github.com/mapic/tilecube/internal/repository/dataset"
	"github.com/mapic/tilecube/internal/repository/spatial"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/internal/usecase"
	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/http_server"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)

	l.Info("starting tilecube service", "config", cfg)

	// Initialize OpenTelemetry if enabled
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	s, err := newStore(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize cache store", "error", err)
	}

	datasets := dataset.NewClient(cfg.Upstream, l)
	pg := spatial.NewPG(cfg.Postgres, l)
	backend := render.NewHTTPBackend(cfg.Render, l)
	reg := registry.New(s, datasets, cfg.Cube.ActiveMaskIndex, cfg.Cube.Granularity, l)

	tiles := usecase.NewTileUseCase(s, reg, datasets, backend, l)

	var fetcher usecase.TileFetcher
	if cfg.PreRender.Mode == "direct" {
		fetcher = usecase.NewDirectTileFetcher(tiles)
	} else {
		fetcher = usecase.NewHTTPTileFetcher(cfg.Tiles.Domain, cfg.PreRender.FetchTimeout)
	}

	jobs := usecase.NewRenderJobUseCase(s, reg, datasets, fetcher, cfg.PreRender, l)
	queries := usecase.NewQueryUseCase(s, reg, datasets, pg, l)
	layers := usecase.NewLayerUseCase(s, reg, datasets, pg, l)
	proxy := usecase.NewProxyUseCase(s, l)

	validate := validator.New()
	h := handler.NewHandler(validate, reg, tiles, jobs, queries, layers, proxy)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	ctx := logger.WithLogger(context.Background(), l)
	server := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Fatal("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}

// newStore selects the cache store backend from config.
func newStore(cfg *config.Config, l logger.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
	case "filesystem":
		return store.NewFilesystemStore(cfg.Store.Dir)
	case "memory":
		return store.NewMapStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Store.SQLitePath, l)
	}
}
