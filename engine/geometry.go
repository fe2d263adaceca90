package engine

import (
	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

// Line returns the line of g when g is a single line: a LineString, or a
// MultiLineString with exactly one part.
func Line(g *dataset.Geometry) (orb.LineString, bool) {
	if g == nil {
		return nil, false
	}
	switch v := g.Shape.(type) {
	case orb.LineString:
		return v, true
	case orb.MultiLineString:
		if len(v) == 1 {
			return v[0], true
		}
	}
	return nil, false
}

// Flatten returns a copy of g without Z and M ordinates. XY shapes are
// already 2D, so only the ordinate slices are dropped.
func Flatten(g *dataset.Geometry) *dataset.Geometry {
	if g == nil {
		return nil
	}
	return &dataset.Geometry{Shape: orb.Clone(g.Shape)}
}

// Endpoints returns the first and last vertex of the single line of g.
func Endpoints(g *dataset.Geometry) (first, last orb.Point, err error) {
	ls, ok := Line(g)
	if !ok {
		return first, last, ErrNotLinear
	}
	if len(ls) == 0 {
		return first, last, ErrEmptyGeometry
	}
	return ls[0], ls[len(ls)-1], nil
}
