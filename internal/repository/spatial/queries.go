package spatial

import "fmt"

// valueCountSQL builds the histogram aggregation for one raster table.
// Pixel values are bucketed with ST_ValueCount over band 1; the mask,
// when present, narrows the scan to intersecting rasters and clips the
// counted pixels to the mask shape.
func valueCountSQL(req ValueCountRequest) (string, []any) {
	switch req.MaskKind {
	case MaskGeometry:
		query := fmt.Sprintf(`SELECT (pvc).value, SUM((pvc).count)::bigint AS count
FROM (
  SELECT ST_ValueCount(ST_Clip(rast, ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON($1), 4326), 3857)), 1) AS pvc
  FROM %q
  WHERE ST_Intersects(rast, ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON($1), 4326), 3857))
) t
GROUP BY (pvc).value
ORDER BY (pvc).value`, req.TableName)
		return query, []any{string(req.MaskGeoJSON)}

	case MaskRasterTable:
		query := fmt.Sprintf(`SELECT (pvc).value, SUM((pvc).count)::bigint AS count
FROM %q A
INNER JOIN %q B ON ST_Intersects(A.rast, B.rast),
LATERAL ST_ValueCount(ST_Clip(A.rast, ST_Polygon(B.rast)), 1) AS pvc
GROUP BY (pvc).value
ORDER BY (pvc).value`, req.TableName, req.MaskTable)
		return query, nil

	default:
		query := fmt.Sprintf(`SELECT (pvc).value, SUM((pvc).count)::bigint AS count
FROM (SELECT ST_ValueCount(rast, 1) AS pvc FROM %q) t
GROUP BY (pvc).value
ORDER BY (pvc).value`, req.TableName)
		return query, nil
	}
}

// vectorizeSQL dumps every raster cell group into polygons.
func vectorizeSQL(rasterTable, targetTable string) string {
	return fmt.Sprintf(`CREATE TABLE %q AS
SELECT (ST_DumpAsPolygons(rast)).val AS val, (ST_DumpAsPolygons(rast)).geom AS the_geom_3857
FROM %q`, targetTable, rasterTable)
}

func columnStatsSQL(table, column string) string {
	return fmt.Sprintf(`SELECT MIN(%s)::float8, MAX(%s)::float8, AVG(%s)::float8 FROM %q`, column, column, column, table)
}
