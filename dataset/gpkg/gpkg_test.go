package gpkg

import (
	"database/sql"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geoprep/dataset"
)

func sampleLayers() []*dataset.LayerData {
	return []*dataset.LayerData{
		{
			Name: "parcels",
			Schema: dataset.Schema{
				Fields: []dataset.Field{
					{Name: "owner", Type: dataset.FieldString},
					{Name: "lots", Type: dataset.FieldInteger},
					{Name: "area", Type: dataset.FieldReal},
					{Name: "taxed", Type: dataset.FieldBoolean},
					{Name: "surveyed", Type: dataset.FieldDate},
				},
				GeometryType: "Polygon",
				SRID:         26911,
			},
			Features: []*dataset.Feature{
				{
					FID: 3,
					Attributes: map[string]any{
						"owner": "a", "lots": int64(2), "area": 12.5, "taxed": true,
						"surveyed": time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
					},
					Geometry: dataset.NewGeometry(orb.Polygon{{{0, 0}, {5, 0}, {5, 5}, {0, 0}}}),
				},
				{
					FID:        7,
					Attributes: map[string]any{"owner": nil, "lots": nil},
				},
			},
		},
		{
			Name:   "wells",
			Schema: dataset.Schema{GeometryType: "Point", SRID: 4326},
			Features: []*dataset.Feature{
				{FID: 1, Geometry: dataset.NewGeometry(orb.Point{-117.1, 33.2})},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.gpkg")
	require.NoError(t, New().Encode(path, sampleLayers()))

	layers, err := New().Decode(path)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	parcels := layers[0]
	assert.Equal(t, "parcels", parcels.Name)
	assert.Equal(t, 26911, parcels.Schema.SRID)
	assert.Equal(t, "Polygon", parcels.Schema.GeometryType)
	assert.Equal(t, []string{"owner", "lots", "area", "taxed", "surveyed"}, parcels.Schema.FieldNames())
	assert.Equal(t, dataset.FieldBoolean, parcels.Schema.Fields[3].Type)

	require.Len(t, parcels.Features, 2)
	f := parcels.Features[0]
	assert.Equal(t, int64(3), f.FID)
	assert.Equal(t, "a", f.Attributes["owner"])
	assert.Equal(t, int64(2), f.Attributes["lots"])
	assert.Equal(t, 12.5, f.Attributes["area"])
	assert.Equal(t, true, f.Attributes["taxed"])
	surveyed, ok := f.Attributes["surveyed"].(time.Time)
	require.True(t, ok, "surveyed is %T", f.Attributes["surveyed"])
	assert.True(t, surveyed.Equal(time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.True(t, orb.Equal(orb.Polygon{{{0, 0}, {5, 0}, {5, 5}, {0, 0}}}, f.Geometry.Shape))

	assert.Equal(t, int64(7), parcels.Features[1].FID)
	assert.Nil(t, parcels.Features[1].Geometry)
	assert.Nil(t, parcels.Features[1].Attributes["owner"])

	wells := layers[1]
	assert.Equal(t, 4326, wells.Schema.SRID)
	assert.Equal(t, orb.Point{-117.1, 33.2}, wells.Features[0].Geometry.Shape)
}

func TestFileHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.gpkg")
	require.NoError(t, New().Encode(path, sampleLayers()))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var appID, version int
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, applicationID, appID)
	assert.Equal(t, userVersion, version)

	var minX, maxY float64
	require.NoError(t, db.QueryRow(`SELECT min_x, max_y FROM gpkg_contents WHERE table_name = 'parcels'`).Scan(&minX, &maxY))
	assert.Equal(t, 0.0, minX)
	assert.Equal(t, 5.0, maxY)
}

func TestBlob(t *testing.T) {
	shape := orb.LineString{{1, 2}, {3, 4}}
	blob, err := encodeBlob(dataset.NewGeometry(shape), 4326)
	require.NoError(t, err)
	assert.Equal(t, []byte("GP"), blob[:2])
	assert.Len(t, blob[8:40], 32)

	got, err := decodeBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, shape, got.Shape)
	assert.True(t, got.Is2D())

	_, err = decodeBlob([]byte("XX000000"))
	assert.ErrorIs(t, err, errBadBlob)

	empty, err := encodeBlob(dataset.NewGeometry(orb.MultiPoint{}), 0)
	require.NoError(t, err)
	got, err = decodeBlob(empty)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// lineStringZ builds a little-endian WKB LineString with the given type
// code from xyz triples.
func lineStringZ(code uint32, coords ...[3]float64) []byte {
	buf := []byte{1}
	buf = binary.LittleEndian.AppendUint32(buf, code)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(coords)))
	for _, c := range coords {
		for _, v := range c {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf
}

// gpBlob wraps WKB in a GeoPackage header without envelope.
func gpBlob(body []byte) []byte {
	buf := []byte{'G', 'P', 0, flagLittleEndian}
	buf = binary.LittleEndian.AppendUint32(buf, 4326)
	return append(buf, body...)
}

func TestBlobZ(t *testing.T) {
	coords := [][3]float64{{0, 0, 5}, {10, 0, 6}}
	tests := map[string]uint32{
		"iso":  1002,
		"ewkb": 0x80000002,
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			g, err := decodeBlob(gpBlob(lineStringZ(code, coords...)))
			require.NoError(t, err)
			assert.Equal(t, orb.LineString{{0, 0}, {10, 0}}, g.Shape)
			assert.Equal(t, []float64{5, 6}, g.Z)
			assert.Nil(t, g.M)
		})
	}

	_, err := decodeBlob(gpBlob(lineStringZ(1002, coords...)[:30]))
	assert.ErrorIs(t, err, errBadWKB)
}

func TestBlobZMRoundTrip(t *testing.T) {
	tests := []*dataset.Geometry{
		{Shape: orb.Point{1, 2}, Z: []float64{3}},
		{Shape: orb.LineString{{0, 0}, {1, 1}}, M: []float64{10, 20}},
		{
			Shape: orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, {{{5, 5}, {6, 5}, {6, 6}, {5, 5}}}},
			Z:     []float64{1, 2, 3, 4, 5, 6, 7, 8},
			M:     []float64{8, 7, 6, 5, 4, 3, 2, 1},
		},
		{
			Shape: orb.Collection{orb.Point{0, 0}, orb.LineString{{1, 1}, {2, 2}}},
			Z:     []float64{9, 8, 7},
		},
	}
	for _, want := range tests {
		t.Run(want.Type(), func(t *testing.T) {
			blob, err := encodeBlob(want, 4326)
			require.NoError(t, err)
			got, err := decodeBlob(blob)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := encodeBlob(&dataset.Geometry{Shape: orb.LineString{{0, 0}, {1, 1}}, Z: []float64{1}}, 0)
	assert.Error(t, err)
}

func TestRoundTripZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trails.gpkg")
	layer := &dataset.LayerData{
		Name:   "trails",
		Schema: dataset.Schema{GeometryType: "LineString", SRID: 4326},
		Features: []*dataset.Feature{
			{FID: 1, Geometry: &dataset.Geometry{Shape: orb.LineString{{0, 0}, {1, 1}}, Z: []float64{100, 120}}},
		},
	}
	require.NoError(t, New().Encode(path, []*dataset.LayerData{layer}))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	var z, m int
	require.NoError(t, db.QueryRow(`SELECT z, m FROM gpkg_geometry_columns WHERE table_name = 'trails'`).Scan(&z, &m))
	require.NoError(t, db.Close())
	assert.Equal(t, 1, z)
	assert.Equal(t, 0, m)

	layers, err := New().Decode(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 120}, layers[0].Features[0].Geometry.Z)
}

func TestFromColumnType(t *testing.T) {
	tests := map[string]dataset.FieldType{
		"INTEGER":     dataset.FieldInteger,
		"MEDIUMINT":   dataset.FieldInteger,
		"TEXT(20)":    dataset.FieldString,
		"DOUBLE":      dataset.FieldReal,
		"FLOAT":       dataset.FieldReal,
		"boolean":     dataset.FieldBoolean,
		"DATETIME":    dataset.FieldDate,
		"BLOB":        dataset.FieldString,
		"VARCHAR(10)": dataset.FieldString,
	}
	for decl, want := range tests {
		assert.Equal(t, want, fromColumnType(decl), decl)
	}
}
