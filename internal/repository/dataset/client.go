// Package dataset is the HTTP client for the upstream dataset metadata
// service (upload status, dataset details, dataset geometry).
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/logger"
)

const (
	uploadStatusPath = "/v2/data/status"
	severalPath      = "/v2/data/several"
	geojsonPath      = "/v2/data/geojson"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg config.Upstream, l logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: l,
	}
}

// UploadStatus mirrors the upstream processing-status record for one
// uploaded file.
type UploadStatus struct {
	FileID            string `json:"file_id"`
	DataType          string `json:"data_type"`
	ProcessingSuccess bool   `json:"processing_success"`
	TableName         string `json:"table_name"`
	DatabaseName      string `json:"database_name"`
	Error             string `json:"error_message,omitempty"`
}

// Dataset is the resolved detail record used for rendering and spatial
// queries.
type Dataset struct {
	ID           string          `json:"id"`
	TableName    string          `json:"table_name"`
	DatabaseName string          `json:"database_name"`
	Metadata     DatasetMetadata `json:"metadata"`
}

type DatasetMetadata struct {
	Extent        string          `json:"extent,omitempty"`
	ExtentGeoJSON json.RawMessage `json:"extent_geojson,omitempty"`
}

func (c *Client) UploadStatus(ctx context.Context, fileID, accessToken string) (*UploadStatus, error) {
	q := url.Values{}
	q.Set("file_id", fileID)
	q.Set("access_token", accessToken)

	var status UploadStatus
	if err := c.getJSON(ctx, uploadStatusPath+"?"+q.Encode(), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetDatasets resolves full detail records for a set of dataset ids.
func (c *Client) GetDatasets(ctx context.Context, ids []string, accessToken string) ([]Dataset, error) {
	body := map[string]any{
		"datasets":     ids,
		"access_token": accessToken,
	}

	var datasets []Dataset
	if err := c.postJSON(ctx, severalPath, body, &datasets); err != nil {
		return nil, err
	}
	return datasets, nil
}

// GetDataset resolves a single dataset's details.
func (c *Client) GetDataset(ctx context.Context, id, accessToken string) (*Dataset, error) {
	datasets, err := c.GetDatasets(ctx, []string{id}, accessToken)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return nil, apperr.Upstream("dataset not found upstream", nil)
	}
	return &datasets[0], nil
}

// GetGeoJSON fetches a dataset's geometry as raw GeoJSON, used when
// materializing postgis-vector masks.
func (c *Client) GetGeoJSON(ctx context.Context, datasetID, accessToken string) ([]byte, error) {
	body := map[string]any{
		"dataset_id":   datasetID,
		"access_token": accessToken,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, geojsonPath, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("failed to read dataset geojson", err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp.Body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp.Body, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream("dataset service request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperr.Upstream(fmt.Sprintf("dataset service returned status %d", resp.StatusCode), nil)
	}
	return resp, nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return apperr.Upstream("failed to decode dataset service response", err)
	}
	return nil
}
