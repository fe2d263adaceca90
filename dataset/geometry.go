package dataset

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Geometry is a feature geometry. Shape holds the XY coordinates; Z and M,
// when non-nil, hold one ordinate per vertex in traversal order (rings in
// order, parts in order, collections depth first).
type Geometry struct {
	Shape orb.Geometry
	Z     []float64
	M     []float64
}

// NewGeometry wraps a 2D shape.
func NewGeometry(shape orb.Geometry) *Geometry {
	if shape == nil {
		return nil
	}
	return &Geometry{Shape: shape}
}

// Clone returns a deep copy. Cloning a nil geometry returns nil.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	c := &Geometry{}
	if g.Shape != nil {
		c.Shape = orb.Clone(g.Shape)
	}
	if g.Z != nil {
		c.Z = append([]float64(nil), g.Z...)
	}
	if g.M != nil {
		c.M = append([]float64(nil), g.M...)
	}
	return c
}

// HasZ reports whether the geometry carries Z ordinates.
func (g *Geometry) HasZ() bool { return g != nil && g.Z != nil }

// HasM reports whether the geometry carries M ordinates.
func (g *Geometry) HasM() bool { return g != nil && g.M != nil }

// Is2D reports whether the geometry has neither Z nor M ordinates.
func (g *Geometry) Is2D() bool { return !g.HasZ() && !g.HasM() }

// Type returns the GeoJSON type name of the shape, or "" for a null geometry.
func (g *Geometry) Type() string {
	if g == nil || g.Shape == nil {
		return ""
	}
	return g.Shape.GeoJSONType()
}

// Validate checks that Z and M line up with the vertices of Shape.
func (g *Geometry) Validate() error {
	if g == nil {
		return nil
	}
	n := NumVertices(g.Shape)
	if g.Z != nil && len(g.Z) != n {
		return fmt.Errorf("dataset: geometry has %d vertices but %d z values", n, len(g.Z))
	}
	if g.M != nil && len(g.M) != n {
		return fmt.Errorf("dataset: geometry has %d vertices but %d m values", n, len(g.M))
	}
	return nil
}

// NumVertices counts the vertices of a shape in traversal order.
func NumVertices(shape orb.Geometry) int {
	n := 0
	_, _ = MapVertices(shape, func(_ int, p orb.Point) (orb.Point, error) {
		n++
		return p, nil
	})
	return n
}

// MapVertices returns a copy of shape with fn applied to every vertex in
// traversal order. The index passed to fn addresses Geometry.Z and
// Geometry.M. The first error returned by fn stops the mapping.
func MapVertices(shape orb.Geometry, fn func(i int, p orb.Point) (orb.Point, error)) (orb.Geometry, error) {
	m := &vertexMapper{fn: fn}
	out := m.geometry(shape)
	if m.err != nil {
		return nil, m.err
	}
	return out, nil
}

type vertexMapper struct {
	fn  func(int, orb.Point) (orb.Point, error)
	n   int
	err error
}

func (m *vertexMapper) point(p orb.Point) orb.Point {
	if m.err != nil {
		return p
	}
	q, err := m.fn(m.n, p)
	m.n++
	if err != nil {
		m.err = err
		return p
	}
	return q
}

func (m *vertexMapper) points(ps []orb.Point) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = m.point(p)
	}
	return out
}

func (m *vertexMapper) polygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		out[i] = orb.Ring(m.points(r))
	}
	return out
}

func (m *vertexMapper) geometry(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return m.point(v)
	case orb.MultiPoint:
		return orb.MultiPoint(m.points(v))
	case orb.LineString:
		return orb.LineString(m.points(v))
	case orb.Ring:
		return orb.Ring(m.points(v))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = orb.LineString(m.points(ls))
		}
		return out
	case orb.Polygon:
		return m.polygon(v)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			out[i] = m.polygon(poly)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(v))
		for i, child := range v {
			out[i] = m.geometry(child)
		}
		return out
	case orb.Bound:
		return orb.Bound{Min: m.point(v.Min), Max: m.point(v.Max)}
	default:
		return g
	}
}

// GeometryTypeOf returns the common geometry type of features, or "Unknown"
// when they differ. Null geometries are ignored.
func GeometryTypeOf(features []*Feature) string {
	t := ""
	for _, f := range features {
		gt := f.Geometry.Type()
		if gt == "" {
			continue
		}
		if t == "" {
			t = gt
			continue
		}
		if gt != t {
			return "Unknown"
		}
	}
	if t == "" {
		return "Unknown"
	}
	return t
}
