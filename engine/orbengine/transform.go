package orbengine

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// projection converts between one coordinate system and WGS84 lon/lat.
type projection struct {
	toWGS84   orb.Projection
	fromWGS84 orb.Projection
}

func identity(p orb.Point) orb.Point { return p }

var (
	geographic = projection{toWGS84: identity, fromWGS84: identity}
	mercator   = projection{toWGS84: project.Mercator.ToWGS84, fromWGS84: project.WGS84.ToMercator}
)

// projections lists the supported EPSG codes. NAD83 and ETRS89 differ from
// WGS84 by less than the precision orb works at and are treated as equal.
var projections = map[int]projection{
	4326:   geographic,
	4269:   geographic, // NAD83
	4258:   geographic, // ETRS89
	3857:   mercator,
	900913: mercator,
	102100: mercator,
	102113: mercator,
}

// ForEPSG reports whether the engine can transform to or from code.
func ForEPSG(code int) bool {
	_, ok := projections[code]
	return ok
}

// NewTransform builds a transform from src to dst through WGS84.
func (*Engine) NewTransform(src, dst int) (engine.Transform, error) {
	from, ok := projections[src]
	if !ok {
		return nil, fmt.Errorf("%w: EPSG:%d", engine.ErrUnsupportedCRS, src)
	}
	to, ok := projections[dst]
	if !ok {
		return nil, fmt.Errorf("%w: EPSG:%d", engine.ErrUnsupportedCRS, dst)
	}
	if src == dst {
		return &transform{fn: identity}, nil
	}
	return &transform{fn: func(p orb.Point) orb.Point {
		return to.fromWGS84(from.toWGS84(p))
	}}, nil
}

type transform struct {
	fn orb.Projection
}

// Apply projects every vertex. Z and M are carried over unchanged.
func (t *transform) Apply(g *dataset.Geometry) (*dataset.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	shape, err := dataset.MapVertices(g.Shape, func(i int, p orb.Point) (orb.Point, error) {
		q := t.fn(p)
		if !finite(q) {
			return q, fmt.Errorf("%w: vertex %d %v projects to %v", engine.ErrNonFiniteOrdinal, i, p, q)
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	out := g.Clone()
	out.Shape = shape
	return out, nil
}

func (*transform) Close() error { return nil }

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}
