package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRasterNoMask(t *testing.T) {
	ds := PGRaster("db1", "snow_2025", 1, nil)
	assert.Equal(t, "pgraster", ds.Type)
	assert.Equal(t, "snow_2025", ds.Table)
	assert.Equal(t, "rast", ds.GeometryField)
	assert.Equal(t, 3857, ds.SRID)
	assert.True(t, ds.ClipRasters)
}

func TestPGRasterMaskSubquery(t *testing.T) {
	geom := []byte(`{"type":"Point","coordinates":[1,2]}`)
	ds := PGRaster("db1", "snow_2025", 1, geom)
	assert.Contains(t, ds.Table, "ST_Clip(rast")
	assert.Contains(t, ds.Table, "ST_Intersects(rast")
	assert.Contains(t, ds.Table, `ST_GeomFromGeoJSON('{"type":"Point","coordinates":[1,2]}')`)
	assert.Contains(t, ds.Table, ") AS subquery")
}

func TestPostGISVector(t *testing.T) {
	ds := PostGISVector("db1", "(SELECT * FROM roads) AS sub", "the_geom_3857", 3857)
	assert.Equal(t, "postgis", ds.Type)
	assert.Equal(t, "the_geom_3857", ds.GeometryField)
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("png"))
	assert.True(t, ValidFormat("pbf"))
	assert.True(t, ValidFormat("grid"))
	assert.False(t, ValidFormat("jpg"))
	assert.False(t, ValidFormat(""))
}

func TestPlaceholdersAreValidPNG(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": EmptyTilePNG(),
		"error": ErrorTilePNG(),
	} {
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err, name)
		assert.Equal(t, 256, img.Bounds().Dx(), name)
	}
	assert.NotEqual(t, EmptyTilePNG(), ErrorTilePNG())
	assert.Equal(t, "{}", string(EmptyJSON()))
}
