package orbengine

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// Repair fixes what can be fixed without topology operations: non-finite
// and repeated vertices are dropped, rings are closed, and degenerate holes,
// parts and members are removed. Self-intersecting rings and geometries left
// with nothing are reported as engine.ErrNotRepairable. Z and M ordinates
// follow their vertices.
func (*Engine) Repair(g *dataset.Geometry) (*dataset.Geometry, error) {
	if g == nil || g.Shape == nil {
		return g, nil
	}
	r := &repairer{src: g}
	shape, err := r.geometry(g.Shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrNotRepairable, err)
	}
	out := &dataset.Geometry{Shape: shape}
	if g.Z != nil {
		out.Z = r.z
	}
	if g.M != nil {
		out.M = r.m
	}
	return out, nil
}

type vertex struct {
	p    orb.Point
	z, m float64
}

// repairer walks the input in traversal order, reading the Z and M of every
// input vertex, and records the ordinates of kept vertices in output order.
type repairer struct {
	src  *dataset.Geometry
	n    int
	z, m []float64
}

func (r *repairer) read(ps []orb.Point) []vertex {
	out := make([]vertex, len(ps))
	for i, p := range ps {
		out[i] = vertex{p: p, z: at(r.src.Z, r.n), m: at(r.src.M, r.n)}
		r.n++
	}
	return out
}

func (r *repairer) emit(vs []vertex) []orb.Point {
	ps := make([]orb.Point, len(vs))
	for i, v := range vs {
		ps[i] = v.p
		r.z = append(r.z, v.z)
		r.m = append(r.m, v.m)
	}
	return ps
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func (r *repairer) geometry(shape orb.Geometry) (orb.Geometry, error) {
	switch v := shape.(type) {
	case orb.Point:
		vs := clean(r.read([]orb.Point{v}))
		if len(vs) == 0 {
			return nil, fmt.Errorf("non-finite point")
		}
		return r.emit(vs)[0], nil

	case orb.MultiPoint:
		vs := finiteOnly(r.read(v))
		if len(vs) == 0 {
			return nil, fmt.Errorf("no finite points")
		}
		return orb.MultiPoint(r.emit(vs)), nil

	case orb.LineString:
		vs, err := line(r.read(v))
		if err != nil {
			return nil, err
		}
		return orb.LineString(r.emit(vs)), nil

	case orb.MultiLineString:
		var parts [][]vertex
		for _, ls := range v {
			if vs, err := line(r.read(ls)); err == nil {
				parts = append(parts, vs)
			}
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("no usable parts")
		}
		out := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			out[i] = r.emit(p)
		}
		return out, nil

	case orb.Ring:
		poly, err := r.polygon(orb.Polygon{v})
		if err != nil {
			return nil, err
		}
		return r.emitPolygon(poly)[0], nil

	case orb.Polygon:
		poly, err := r.polygon(v)
		if err != nil {
			return nil, err
		}
		return r.emitPolygon(poly), nil

	case orb.MultiPolygon:
		var polys [][][]vertex
		var lastErr error
		for _, p := range v {
			poly, err := r.polygon(p)
			if err != nil {
				lastErr = err
				continue
			}
			polys = append(polys, poly)
		}
		if len(polys) == 0 {
			if lastErr == nil {
				lastErr = fmt.Errorf("no polygons")
			}
			return nil, lastErr
		}
		out := make(orb.MultiPolygon, len(polys))
		for i, p := range polys {
			out[i] = r.emitPolygon(p)
		}
		return out, nil

	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, child := range v {
			c, err := r.geometry(child)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil

	case orb.Bound:
		return r.geometry(v.ToPolygon())
	}
	return nil, fmt.Errorf("unsupported geometry %T", shape)
}

// polygon repairs the rings of poly. A broken exterior fails the polygon;
// broken holes are dropped.
func (r *repairer) polygon(poly orb.Polygon) ([][]vertex, error) {
	if len(poly) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	rings := make([][]vertex, len(poly))
	for i, ring := range poly {
		rings[i] = r.read(ring)
	}

	shell, err := ring(rings[0])
	if err != nil {
		return nil, fmt.Errorf("exterior ring: %w", err)
	}
	out := [][]vertex{shell}
	for _, h := range rings[1:] {
		if hole, err := ring(h); err == nil {
			out = append(out, hole)
		}
	}
	return out, nil
}

func (r *repairer) emitPolygon(rings [][]vertex) orb.Polygon {
	poly := make(orb.Polygon, len(rings))
	for i, vs := range rings {
		poly[i] = orb.Ring(r.emit(vs))
	}
	return poly
}

func line(vs []vertex) ([]vertex, error) {
	vs = clean(vs)
	if len(vs) < 2 {
		return nil, fmt.Errorf("line has fewer than two distinct vertices")
	}
	return vs, nil
}

func ring(vs []vertex) ([]vertex, error) {
	vs = clean(vs)
	if len(vs) > 0 && vs[0].p != vs[len(vs)-1].p {
		vs = append(vs, vs[0])
	}
	if len(vs) < 4 {
		return nil, fmt.Errorf("ring has fewer than four vertices")
	}
	r := points(vs)
	if planar.Area(r) == 0 {
		return nil, fmt.Errorf("ring has zero area")
	}
	if selfIntersects(r) {
		return nil, fmt.Errorf("ring self-intersects")
	}
	return vs, nil
}

// clean drops non-finite vertices and consecutive repeats.
func clean(vs []vertex) []vertex {
	out := make([]vertex, 0, len(vs))
	for _, v := range finiteOnly(vs) {
		if len(out) > 0 && out[len(out)-1].p == v.p {
			continue
		}
		out = append(out, v)
	}
	return out
}

func finiteOnly(vs []vertex) []vertex {
	out := make([]vertex, 0, len(vs))
	for _, v := range vs {
		if finite(v.p) && !math.IsNaN(v.z) && !math.IsNaN(v.m) {
			out = append(out, v)
		}
	}
	return out
}

func points(vs []vertex) orb.Ring {
	r := make(orb.Ring, len(vs))
	for i, v := range vs {
		r[i] = v.p
	}
	return r
}
