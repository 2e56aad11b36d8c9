package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/registry"
	"github.com/mapic/tilecube/internal/repository/dataset"
	"github.com/mapic/tilecube/internal/repository/spatial"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
)

// Layer creation defaults. Tables are imported in web mercator, so the
// geometry column and SRID default accordingly.
const (
	defaultGeomColumn      = "the_geom_3857"
	defaultSRID            = 3857
	defaultCartoCSSVersion = "2.0.1"
)

// UploadStatusResolver is the slice of the dataset client layer
// creation needs.
type UploadStatusResolver interface {
	UploadStatus(ctx context.Context, fileID, accessToken string) (*dataset.UploadStatus, error)
}

var _ UploadStatusResolver = (*dataset.Client)(nil)

// LayerUseCase creates render layers from processed uploads and runs
// background raster vectorization.
type LayerUseCase struct {
	store    store.Store
	registry *registry.Registry
	uploads  UploadStatusResolver
	spatial  spatial.Executor
	logger   logger.Logger
}

func NewLayerUseCase(s store.Store, r *registry.Registry, uploads UploadStatusResolver, sp spatial.Executor, l logger.Logger) *LayerUseCase {
	return &LayerUseCase{
		store:    s,
		registry: r,
		uploads:  uploads,
		spatial:  sp,
		logger:   l,
	}
}

type CreateLayerRequest struct {
	FileID          string
	SQL             string
	CartoCSS        string
	CartoCSSVersion string
	GeomColumn      string
	GeomType        string
	RasterBand      int
	SRID            int
	AccessToken     string
}

// CreateLayer resolves the uploaded file's processing record and mints
// an immutable layer from it, filling defaults for everything the
// request leaves out.
func (uc *LayerUseCase) CreateLayer(ctx context.Context, req CreateLayerRequest) (*registry.Layer, error) {
	if req.FileID == "" {
		return nil, apperr.MissingInformation()
	}

	status, err := uc.uploads.UploadStatus(ctx, req.FileID, req.AccessToken)
	if err != nil {
		return nil, err
	}
	if !status.ProcessingSuccess {
		msg := "dataset is not done processing"
		if status.Error != "" {
			msg = "dataset processing failed: " + status.Error
		}
		return nil, apperr.Upstream(msg, nil)
	}
	if status.DataType != "vector" && status.DataType != "raster" {
		return nil, apperr.Validation(apperr.CodeInvalidDatasetID, "unsupported data type: "+status.DataType)
	}

	layer := &registry.Layer{
		ID:              "layer_id-" + uuid.NewString(),
		FileID:          req.FileID,
		SQL:             layerSQL(req.SQL, status.TableName),
		CartoCSS:        req.CartoCSS,
		CartoCSSVersion: req.CartoCSSVersion,
		GeomColumn:      req.GeomColumn,
		GeomType:        req.GeomType,
		RasterBand:      req.RasterBand,
		SRID:            req.SRID,
		DataType:        status.DataType,
		DatabaseName:    status.DatabaseName,
		TableName:       status.TableName,
		CreatedAt:       time.Now().UnixMilli(),
	}
	if layer.CartoCSS == "" && layer.DataType == "raster" {
		layer.CartoCSS = registry.DefaultRasterStyle
	}
	if layer.CartoCSSVersion == "" {
		layer.CartoCSSVersion = defaultCartoCSSVersion
	}
	if layer.GeomColumn == "" {
		layer.GeomColumn = defaultGeomColumn
	}
	if layer.SRID == 0 {
		layer.SRID = defaultSRID
	}

	if err := uc.registry.SaveLayer(ctx, layer); err != nil {
		return nil, err
	}

	uc.logger.Info("layer created", "layer_id", layer.ID, "file_id", layer.FileID, "data_type", layer.DataType)

	return layer, nil
}

// layerSQL substitutes the placeholder table name clients use before
// the real table name is known.
func layerSQL(sql, tableName string) string {
	if sql == "" {
		return fmt.Sprintf("(SELECT * FROM %s) as sub", tableName)
	}
	return strings.ReplaceAll(sql, "table", tableName)
}

func (uc *LayerUseCase) GetLayer(ctx context.Context, id string) (*registry.Layer, error) {
	return uc.registry.GetLayer(ctx, id)
}

// VectorizeStatus is the polled record of one background vectorization.
type VectorizeStatus struct {
	FileID      string                `json:"file_id"`
	Status      string                `json:"status"` // processing | done | failed
	TargetTable string                `json:"target_table,omitempty"`
	Columns     []spatial.ColumnStats `json:"columns,omitempty"`
	Error       string                `json:"error,omitempty"`
	StartedAt   int64                 `json:"started_at"`
	FinishedAt  int64                 `json:"finished_at,omitempty"`
}

// Vectorize kicks off background polygonization of an uploaded raster
// and returns the initial processing record immediately.
func (uc *LayerUseCase) Vectorize(ctx context.Context, fileID, accessToken string) (*VectorizeStatus, error) {
	if fileID == "" {
		return nil, apperr.MissingInformation()
	}

	upload, err := uc.uploads.UploadStatus(ctx, fileID, accessToken)
	if err != nil {
		return nil, err
	}
	if !upload.ProcessingSuccess || upload.DataType != "raster" {
		return nil, apperr.Validation(apperr.CodeInvalidDatasetID, "file is not a processed raster")
	}

	status := &VectorizeStatus{
		FileID:      fileID,
		Status:      "processing",
		TargetTable: upload.TableName + "_vectors",
		StartedAt:   time.Now().UnixMilli(),
	}
	if err := uc.saveVectorizeStatus(ctx, status); err != nil {
		return nil, err
	}

	go uc.runVectorize(*status, upload.DatabaseName, upload.TableName)

	return status, nil
}

func (uc *LayerUseCase) runVectorize(status VectorizeStatus, databaseName, rasterTable string) {
	ctx := context.Background()

	columns, err := uc.spatial.Vectorize(ctx, databaseName, rasterTable, status.TargetTable)
	status.FinishedAt = time.Now().UnixMilli()
	if err != nil {
		uc.logger.Error("vectorization failed", "file_id", status.FileID, "error", err)
		status.Status = "failed"
		status.Error = err.Error()
	} else {
		status.Status = "done"
		status.Columns = columns
	}

	if err := uc.saveVectorizeStatus(ctx, &status); err != nil {
		uc.logger.Error("vectorize status write failed", "file_id", status.FileID, "error", err)
	}
}

func (uc *LayerUseCase) saveVectorizeStatus(ctx context.Context, status *VectorizeStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return uc.store.Set(ctx, store.VectorizeJobKey(status.FileID), data)
}

// VectorizeJobStatus returns the stored record for a vectorization run.
func (uc *LayerUseCase) VectorizeJobStatus(ctx context.Context, fileID string) (*VectorizeStatus, error) {
	if fileID == "" {
		return nil, apperr.MissingInformation()
	}
	data, exists, err := uc.store.Get(ctx, store.VectorizeJobKey(fileID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound(apperr.CodeNoSuchJob, "no vectorization job for file: "+fileID)
	}
	var status VectorizeStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
