package flatgeobuf

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

var geometryTypes = map[string]flattypes.GeometryType{
	"Point":              flattypes.GeometryTypePoint,
	"MultiPoint":         flattypes.GeometryTypeMultiPoint,
	"LineString":         flattypes.GeometryTypeLineString,
	"MultiLineString":    flattypes.GeometryTypeMultiLineString,
	"Polygon":            flattypes.GeometryTypePolygon,
	"MultiPolygon":       flattypes.GeometryTypeMultiPolygon,
	"GeometryCollection": flattypes.GeometryTypeGeometryCollection,
}

// headerGeometryType maps a schema geometry type name to the header enum.
func headerGeometryType(name string) flattypes.GeometryType {
	if t, ok := geometryTypes[name]; ok {
		return t
	}
	return flattypes.GeometryTypeUnknown
}

// schemaGeometryType maps the header enum back to a schema type name.
func schemaGeometryType(t flattypes.GeometryType) string {
	for name, gt := range geometryTypes {
		if gt == t {
			return name
		}
	}
	return "Unknown"
}

// ordinateCursor hands out the Z and M values of consecutive vertices.
type ordinateCursor struct {
	z, m []float64
	next int
}

func (c *ordinateCursor) set(g *writer.Geometry, n int) {
	if c == nil {
		return
	}
	lo, hi := c.next, c.next+n
	c.next = hi
	if c.z != nil && hi <= len(c.z) {
		g.SetZ(c.z[lo:hi])
	}
	if c.m != nil && hi <= len(c.m) {
		g.SetM(c.m[lo:hi])
	}
}

// encodeGeometry converts a shape to a FlatGeobuf geometry table. ords,
// when non-nil, supplies Z and M for the vertices in traversal order.
func encodeGeometry(shape orb.Geometry, ords *ordinateCursor, builder *flatbuffers.Builder) (*writer.Geometry, error) {
	g := writer.NewGeometry(builder)

	switch v := shape.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})
		ords.set(g, 1)

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		xy, _ := flatten(v)
		g.SetXY(xy)
		ords.set(g, len(v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		xy, _ := flatten(v)
		g.SetXY(xy)
		ords.set(g, len(v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := flatten(parts...)
		g.SetXY(xy)
		g.SetEnds(ends)
		ords.set(g, len(xy)/2)

	case orb.Ring:
		return encodeGeometry(orb.Polygon{v}, ords, builder)

	case orb.Bound:
		return encodeGeometry(v.ToPolygon(), nil, builder)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := flatten(polygonRings(v)...)
		g.SetXY(xy)
		g.SetEnds(ends)
		ords.set(g, len(xy)/2)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg, err := encodeGeometry(poly, ords, builder)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			cg, err := encodeGeometry(child, ords, builder)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *cg)
		}
		g.SetParts(parts)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, shape)
	}

	return g, nil
}

func polygonRings(poly orb.Polygon) [][]orb.Point {
	rings := make([][]orb.Point, len(poly))
	for i, r := range poly {
		rings[i] = r
	}
	return rings
}

// flatten interleaves the parts into one xy array. ends holds the
// cumulative vertex count at the end of each part.
func flatten(parts ...[]orb.Point) ([]float64, []uint32) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		for _, pt := range p {
			xy = append(xy, pt[0], pt[1])
		}
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

// ordinateSink collects the Z and M arrays of the geometry tables of one
// feature in traversal order. An ordinate is kept only when every table
// carries it for all of its vertices.
type ordinateSink struct {
	z, m       []float64
	allZ, allM bool
	vertices   int
}

func (s *ordinateSink) read(g *flattypes.Geometry, n int) {
	if n == 0 {
		return
	}
	s.vertices += n
	if g.ZLength() < n {
		s.allZ = false
	} else if s.allZ {
		for i := 0; i < n; i++ {
			s.z = append(s.z, g.Z(i))
		}
	}
	if g.MLength() < n {
		s.allM = false
	} else if s.allM {
		for i := 0; i < n; i++ {
			s.m = append(s.m, g.M(i))
		}
	}
}

// decodeFeatureGeometry converts the geometry table of a feature, with
// its Z and M arrays, to a dataset geometry.
func decodeFeatureGeometry(g *flattypes.Geometry, headerType flattypes.GeometryType) (*dataset.Geometry, error) {
	s := &ordinateSink{allZ: true, allM: true}
	shape, err := decodeGeometry(g, headerType, s)
	if err != nil {
		return nil, err
	}
	out := &dataset.Geometry{Shape: shape}
	if s.vertices > 0 && s.allZ {
		out.Z = s.z
	}
	if s.vertices > 0 && s.allM {
		out.M = s.m
	}
	return out, nil
}

// decodeGeometry converts a FlatGeobuf geometry table to a shape.
func decodeGeometry(g *flattypes.Geometry, headerType flattypes.GeometryType, s *ordinateSink) (orb.Geometry, error) {
	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = headerType
	}

	switch t {
	case flattypes.GeometryTypePoint:
		pts := points(g, 0, g.XyLength()/2)
		if len(pts) == 0 {
			return nil, fmt.Errorf("%w: empty point", ErrInvalidData)
		}
		s.read(g, 1)
		return pts[0], nil

	case flattypes.GeometryTypeMultiPoint:
		pts := points(g, 0, g.XyLength()/2)
		s.read(g, len(pts))
		return orb.MultiPoint(pts), nil

	case flattypes.GeometryTypeLineString:
		pts := points(g, 0, g.XyLength()/2)
		s.read(g, len(pts))
		return orb.LineString(pts), nil

	case flattypes.GeometryTypeMultiLineString:
		parts := split(g)
		mls := make(orb.MultiLineString, len(parts))
		n := 0
		for i, p := range parts {
			mls[i] = orb.LineString(p)
			n += len(p)
		}
		s.read(g, n)
		return mls, nil

	case flattypes.GeometryTypePolygon:
		return polygon(g, s), nil

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		if n == 0 {
			return orb.MultiPolygon{polygon(g, s)}, nil
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, polygon(&part, s))
			}
		}
		return mp, nil

	case flattypes.GeometryTypeGeometryCollection:
		n := g.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				continue
			}
			child, err := decodeGeometry(&part, flattypes.GeometryTypeUnknown, s)
			if err != nil {
				return nil, err
			}
			coll = append(coll, child)
		}
		return coll, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, flattypes.EnumNamesGeometryType[t])
}

func polygon(g *flattypes.Geometry, s *ordinateSink) orb.Polygon {
	parts := split(g)
	poly := make(orb.Polygon, len(parts))
	n := 0
	for i, p := range parts {
		poly[i] = orb.Ring(p)
		n += len(p)
	}
	s.read(g, n)
	return poly
}

// split cuts the xy array at the ends offsets. Without ends the whole
// array is one part.
func split(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil
		}
		return [][]orb.Point{points(g, 0, n)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		if end > n {
			end = n
		}
		parts = append(parts, points(g, start, end))
		start = end
	}
	return parts
}

func points(g *flattypes.Geometry, start, end int) []orb.Point {
	if end < start {
		return nil
	}
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}
