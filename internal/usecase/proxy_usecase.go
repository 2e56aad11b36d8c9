package usecase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/metrics"
)

// proxyProviders whitelists upstream basemap sources. Anything not
// listed is rejected before a request leaves the service.
var proxyProviders = map[string]string{
	"osm":     "https://tile.openstreetmap.org/%d/%d/%d.png",
	"google":  "https://mt0.google.com/vt/lyrs=m&x=%d&y=%d&z=%d",
	"norkart": "https://www.webatlas.no/maptiles/tiles/webatlas-standard-vektor/wa_grid/%d/%d/%d.png",
}

const proxyUserAgent = "tilecube/1.0"

// ProxyUseCase serves third-party basemap tiles through the cache
// store so repeat views never hit the provider twice.
type ProxyUseCase struct {
	store      store.Store
	httpClient *http.Client
	logger     logger.Logger
}

func NewProxyUseCase(s store.Store, l logger.Logger) *ProxyUseCase {
	return &ProxyUseCase{
		store: s,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: l,
	}
}

// GetTile returns a cached provider tile, fetching and storing it on
// first sight.
func (uc *ProxyUseCase) GetTile(ctx context.Context, provider string, z, x, y int) ([]byte, error) {
	template, ok := proxyProviders[provider]
	if !ok {
		return nil, apperr.Validation(apperr.CodeMissingInformation, "unknown tile provider: "+provider)
	}

	key := store.ProxyTileKey(provider, z, x, y)
	if data, exists, err := uc.store.Get(ctx, key); err == nil && exists {
		metrics.TileCacheHits.Inc()
		return data, nil
	}
	metrics.TileCacheMisses.Inc()

	var url string
	if provider == "google" {
		url = fmt.Sprintf(template, x, y, z)
	} else {
		url = fmt.Sprintf(template, z, x, y)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", proxyUserAgent)

	resp, err := uc.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream("tile provider request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(fmt.Sprintf("tile provider returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("failed to read provider tile", err)
	}

	if err := uc.store.Set(ctx, key, data); err != nil {
		uc.logger.Warn("proxy tile cache write failed", "key", key, "error", err)
	} else {
		metrics.TileCacheStores.Inc()
	}

	return data, nil
}
