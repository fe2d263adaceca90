package gpkg

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

var geometryTypeNames = map[string]string{
	"Point":              "POINT",
	"MultiPoint":         "MULTIPOINT",
	"LineString":         "LINESTRING",
	"MultiLineString":    "MULTILINESTRING",
	"Polygon":            "POLYGON",
	"MultiPolygon":       "MULTIPOLYGON",
	"GeometryCollection": "GEOMETRYCOLLECTION",
}

func toGeometryTypeName(t string) string {
	if name, ok := geometryTypeNames[t]; ok {
		return name
	}
	return "GEOMETRY"
}

func fromGeometryTypeName(name string) string {
	for t, n := range geometryTypeNames {
		if strings.EqualFold(n, name) {
			return t
		}
	}
	return "Unknown"
}

func toColumnType(t dataset.FieldType) string {
	switch t {
	case dataset.FieldInteger:
		return "INTEGER"
	case dataset.FieldReal:
		return "REAL"
	case dataset.FieldBoolean:
		return "BOOLEAN"
	case dataset.FieldDate:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// fromColumnType follows SQLite type affinity, with the GeoPackage
// BOOLEAN, DATE and DATETIME names recognised first.
func fromColumnType(decl string) dataset.FieldType {
	d := strings.ToUpper(strings.TrimSpace(decl))
	switch {
	case d == "BOOLEAN":
		return dataset.FieldBoolean
	case d == "DATE" || d == "DATETIME":
		return dataset.FieldDate
	case strings.Contains(d, "INT"):
		return dataset.FieldInteger
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return dataset.FieldString
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return dataset.FieldReal
	}
	return dataset.FieldString
}

func bounds(features []*dataset.Feature) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range features {
		if f.Geometry == nil || f.Geometry.Shape == nil || isEmpty(f.Geometry.Shape) {
			continue
		}
		if !found {
			b = f.Geometry.Shape.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Shape.Bound())
	}
	return b, found
}
