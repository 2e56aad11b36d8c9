package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/logger"
	"github.com/mapic/tilecube/pkg/metrics"
)

// HTTPBackend posts render requests to the external renderer and
// returns the raw tile bytes.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func NewHTTPBackend(cfg config.Render, l logger.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL: cfg.BackendURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: l,
	}
}

var _ Backend = (*HTTPBackend)(nil)

func (b *HTTPBackend) Render(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Render("failed to encode render request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Render("failed to create render request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Render("render backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperr.Render(fmt.Sprintf("render backend returned status %d: %s", resp.StatusCode, body), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Render("failed to read rendered tile", err)
	}

	b.logger.Debug("rendered tile", "format", req.Format, "z", req.Z, "x", req.X, "y", req.Y, "size", len(data))

	return data, nil
}
