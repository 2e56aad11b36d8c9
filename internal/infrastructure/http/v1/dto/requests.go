// Package dto holds the wire-level request and response shapes of the
// v2 API.
package dto

import "encoding/json"

type DatasetRef struct {
	ID          string `json:"id" validate:"required"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type CreateCubeRequest struct {
	Style    string         `json:"style,omitempty"`
	Quality  string         `json:"quality,omitempty"`
	Datasets []DatasetRef   `json:"datasets,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type CubeDatasetsRequest struct {
	CubeID   string       `json:"cube_id" validate:"required"`
	Datasets []DatasetRef `json:"datasets" validate:"required,min=1,dive"`
}

type UpdateCubeRequest map[string]any

type MaskRequest struct {
	CubeID string          `json:"cube_id" validate:"required"`
	Mask   json.RawMessage `json:"mask" validate:"required"`
}

type RemoveMaskRequest struct {
	CubeID string `json:"cube_id" validate:"required"`
	MaskID string `json:"mask_id" validate:"required"`
}

type UpdateMaskRequest struct {
	CubeID string         `json:"cube_id" validate:"required"`
	MaskID string         `json:"mask_id" validate:"required"`
	Mask   map[string]any `json:"mask" validate:"required"`
}

type RenderJobRequest struct {
	CubeID   string `json:"cube_id" validate:"required"`
	MaskID   string `json:"mask_id,omitempty"`
	MaxZoom  int    `json:"max_zoom,omitempty" validate:"omitempty,min=1,max=20"`
	MaxTiles int    `json:"max_tiles,omitempty" validate:"omitempty,min=1"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

type RenderJobStatusRequest struct {
	JobID string `json:"job_id" validate:"required"`
}

type QueryRequest struct {
	QueryType  string `json:"query_type" validate:"required"`
	CubeID     string `json:"cube_id" validate:"required"`
	Year       int    `json:"year,omitempty"`
	MaskID     string `json:"mask_id,omitempty"`
	ForceQuery bool   `json:"force_query,omitempty"`
}

type CreateLayerRequest struct {
	FileID          string `json:"file_id" validate:"required"`
	SQL             string `json:"sql,omitempty"`
	CartoCSS        string `json:"cartocss,omitempty"`
	CartoCSSVersion string `json:"cartocss_version,omitempty"`
	GeomColumn      string `json:"geom_column,omitempty"`
	GeomType        string `json:"geom_type,omitempty"`
	RasterBand      int    `json:"raster_band,omitempty"`
	SRID            int    `json:"srid,omitempty"`
}

type VectorizeRequest struct {
	FileID string `json:"file_id" validate:"required"`
}
