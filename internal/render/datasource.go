package render

import "fmt"

// Datasource holds the spatial-database connection parameters handed to
// the render backend.
type Datasource struct {
	Type              string `json:"type"` // postgis | pgraster
	DatabaseName      string `json:"dbname"`
	Table             string `json:"table"`
	GeometryField     string `json:"geometry_field"`
	SRID              int    `json:"srid"`
	Band              int    `json:"band,omitempty"`
	UseOverviews      bool   `json:"use_overviews,omitempty"`
	ClipRasters       bool   `json:"clip_rasters,omitempty"`
	PrescaleRasters   bool   `json:"prescale_rasters,omitempty"`
	MaxAsyncRenderers int    `json:"max_async_renderers,omitempty"`
}

// PostGISVector builds a vector datasource over a SQL fragment.
func PostGISVector(databaseName, sql, geomColumn string, srid int) Datasource {
	return Datasource{
		Type:          "postgis",
		DatabaseName:  databaseName,
		Table:         sql,
		GeometryField: geomColumn,
		SRID:          srid,
	}
}

// PGRaster builds a raster datasource over a raster table. When
// maskGeoJSON is non-empty the table is replaced by a derived subquery
// clipping each raster to the mask geometry, so the backend only reads
// pixels inside the mask.
func PGRaster(databaseName, tableName string, band int, maskGeoJSON []byte) Datasource {
	table := tableName
	if len(maskGeoJSON) > 0 {
		table = maskSubquery(tableName, maskGeoJSON)
	}
	return Datasource{
		Type:            "pgraster",
		DatabaseName:    databaseName,
		Table:           table,
		GeometryField:   "rast",
		SRID:            3857,
		Band:            band,
		UseOverviews:    true,
		ClipRasters:     true,
		PrescaleRasters: true,
	}
}

func maskSubquery(tableName string, maskGeoJSON []byte) string {
	geom := fmt.Sprintf("ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON('%s'), 4326), 3857)", string(maskGeoJSON))
	return fmt.Sprintf("(SELECT ST_Clip(rast, %s) AS rast FROM %s WHERE ST_Intersects(rast, %s)) AS subquery",
		geom, tableName, geom)
}
