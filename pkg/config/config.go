package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Store     Store     `envPrefix:"STORE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Postgres  Postgres  `envPrefix:"POSTGRES_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Render    Render    `envPrefix:"RENDER_"`
		Tiles     Tiles     `envPrefix:"TILES_"`
		PreRender PreRender `envPrefix:"PRERENDER_"`
		Cube      Cube      `envPrefix:"CUBE_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tilecube"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Store selects the cache store backend.
	Store struct {
		Backend    string `env:"BACKEND" envDefault:"sqlite"` // redis | sqlite | filesystem | memory
		SQLitePath string `env:"SQLITE_PATH" envDefault:"tilecube.db"`
		Dir        string `env:"DIR" envDefault:"tiles"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"0"`
	}

	// Postgres holds connection parameters for the spatial database.
	// The database name varies per dataset and is supplied per query.
	Postgres struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"5432"`
		User     string `env:"USER" envDefault:"docker"`
		Password string `env:"PASSWORD" envDefault:"docker"`
		SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	}

	// Upstream is the dataset metadata service.
	Upstream struct {
		BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:3001"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	// Render is the cartographic render backend.
	Render struct {
		BackendURL string        `env:"BACKEND_URL" envDefault:"http://localhost:3002"`
		Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
	}

	// Tiles.Domain is the public base URL of this service, used to
	// build self-referential callback URLs during pre-render fan-out.
	Tiles struct {
		Domain string `env:"DOMAIN" envDefault:"http://localhost:8080"`
	}

	PreRender struct {
		Workers         int           `env:"WORKERS" envDefault:"5"`
		Mode            string        `env:"MODE" envDefault:"http"` // http | direct
		FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
		DefaultMaxZoom  int           `env:"DEFAULT_MAX_ZOOM" envDefault:"14"`
		DefaultMaxTiles int           `env:"DEFAULT_MAX_TILES" envDefault:"10000"`
	}

	Cube struct {
		ActiveMaskIndex int    `env:"ACTIVE_MASK_INDEX" envDefault:"0"`
		Granularity     string `env:"GRANULARITY" envDefault:"day"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
