package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueCountSQLNoMask(t *testing.T) {
	query, args := valueCountSQL(ValueCountRequest{TableName: "snow_2025"})
	assert.Contains(t, query, `ST_ValueCount(rast, 1)`)
	assert.Contains(t, query, `"snow_2025"`)
	assert.Empty(t, args)
}

func TestValueCountSQLGeometryMask(t *testing.T) {
	geom := []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)
	query, args := valueCountSQL(ValueCountRequest{
		TableName:   "snow_2025",
		MaskKind:    MaskGeometry,
		MaskGeoJSON: geom,
	})
	assert.Contains(t, query, "ST_GeomFromGeoJSON($1)")
	assert.Contains(t, query, "ST_Intersects")
	assert.Contains(t, query, "ST_Clip")
	require := assert.New(t)
	require.Len(args, 1)
	require.Equal(string(geom), args[0])
}

func TestValueCountSQLRasterMask(t *testing.T) {
	query, args := valueCountSQL(ValueCountRequest{
		TableName: "snow_2025",
		MaskKind:  MaskRasterTable,
		MaskTable: "watershed_mask",
	})
	assert.Contains(t, query, `"watershed_mask" B`)
	assert.Contains(t, query, "ST_Polygon(B.rast)")
	assert.Contains(t, query, "LATERAL ST_ValueCount")
	assert.Empty(t, args)
}

func TestVectorizeSQL(t *testing.T) {
	query := vectorizeSQL("file_abc_rast", "file_abc_vectors")
	assert.Contains(t, query, "ST_DumpAsPolygons")
	assert.Contains(t, query, `CREATE TABLE "file_abc_vectors"`)
	assert.Contains(t, query, "the_geom_3857")
}
