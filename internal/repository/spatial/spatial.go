// Package spatial is the narrow query executor for the spatial
// database: masked per-pixel-value histograms and raster vectorization
// statistics. Connections are pooled per call, never held across
// requests.
package spatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/logger"
)

// MaskKind selects how a value-count query is narrowed.
type MaskKind int

const (
	MaskNone MaskKind = iota
	MaskGeometry
	MaskRasterTable
)

// ValueCountRequest describes one histogram aggregation over a raster
// table, optionally clipped by a mask geometry or joined against a mask
// raster table.
type ValueCountRequest struct {
	DatabaseName string
	TableName    string
	MaskKind     MaskKind
	MaskGeoJSON  []byte // MaskGeometry
	MaskTable    string // MaskRasterTable
}

// ValueCount is one pixel-value histogram bucket.
type ValueCount struct {
	Value int   `json:"value"`
	Count int64 `json:"count"`
}

// ColumnStats carries the min/max/avg of one vectorized column.
type ColumnStats struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
}

type Executor interface {
	ValueCounts(ctx context.Context, req ValueCountRequest) ([]ValueCount, error)
	Vectorize(ctx context.Context, databaseName, rasterTable, targetTable string) ([]ColumnStats, error)
}

// PG executes queries against PostGIS over pgx, one short-lived pool
// per call since the database name varies per dataset.
type PG struct {
	cfg    config.Postgres
	logger logger.Logger
}

func NewPG(cfg config.Postgres, l logger.Logger) *PG {
	return &PG{cfg: cfg, logger: l}
}

var _ Executor = (*PG)(nil)

func (p *PG) dsn(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.cfg.User, p.cfg.Password, p.cfg.Host, p.cfg.Port, database, p.cfg.SSLMode)
}

func (p *PG) ValueCounts(ctx context.Context, req ValueCountRequest) ([]ValueCount, error) {
	pool, err := pgxpool.New(ctx, p.dsn(req.DatabaseName))
	if err != nil {
		return nil, apperr.Upstream("failed to connect to spatial database", err)
	}
	defer pool.Close()

	query, args := valueCountSQL(req)
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Upstream("spatial aggregation query failed", err)
	}
	defer rows.Close()

	var counts []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, apperr.Upstream("failed to scan value count row", err)
		}
		counts = append(counts, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream("spatial aggregation query failed", err)
	}

	p.logger.Debug("value counts resolved", "table", req.TableName, "buckets", len(counts))

	return counts, nil
}

// Vectorize dumps a raster table into polygons and returns per-column
// statistics of the result.
func (p *PG) Vectorize(ctx context.Context, databaseName, rasterTable, targetTable string) ([]ColumnStats, error) {
	pool, err := pgxpool.New(ctx, p.dsn(databaseName))
	if err != nil {
		return nil, apperr.Upstream("failed to connect to spatial database", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, vectorizeSQL(rasterTable, targetTable)); err != nil {
		return nil, apperr.Upstream("raster vectorization failed", err)
	}

	var stats ColumnStats
	stats.Column = "val"
	err = pool.QueryRow(ctx, columnStatsSQL(targetTable, "val")).Scan(&stats.Min, &stats.Max, &stats.Avg)
	if err != nil {
		return nil, apperr.Upstream("vectorized column stats failed", err)
	}

	return []ColumnStats{stats}, nil
}
