package orbengine

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geoprep/dataset"
)

// IsValid checks single-geometry validity: finite coordinates, lines with
// at least two distinct vertices, and polygon rings that are closed, have
// at least four vertices, enclose a non-zero area and do not cross
// themselves. Relations between rings or between parts are not checked.
func (*Engine) IsValid(g *dataset.Geometry) (bool, error) {
	if g == nil || g.Shape == nil {
		return true, nil
	}
	return invalidReason(g.Shape) == "", nil
}

// invalidReason returns why shape is invalid, or "" when it is valid.
func invalidReason(shape orb.Geometry) string {
	switch v := shape.(type) {
	case orb.Point:
		if !finite(v) {
			return "non-finite point"
		}
	case orb.MultiPoint:
		for i, p := range v {
			if !finite(p) {
				return fmt.Sprintf("non-finite point %d", i)
			}
		}
	case orb.LineString:
		return lineReason(v)
	case orb.MultiLineString:
		for i, ls := range v {
			if r := lineReason(ls); r != "" {
				return fmt.Sprintf("part %d: %s", i, r)
			}
		}
	case orb.Ring:
		return ringReason(v)
	case orb.Polygon:
		return polygonReason(v)
	case orb.MultiPolygon:
		for i, poly := range v {
			if r := polygonReason(poly); r != "" {
				return fmt.Sprintf("polygon %d: %s", i, r)
			}
		}
	case orb.Collection:
		for i, child := range v {
			if r := invalidReason(child); r != "" {
				return fmt.Sprintf("member %d: %s", i, r)
			}
		}
	}
	return ""
}

func lineReason(ls orb.LineString) string {
	for _, p := range ls {
		if !finite(p) {
			return "non-finite coordinate"
		}
	}
	if distinct(ls) < 2 {
		return "fewer than two distinct vertices"
	}
	return ""
}

func polygonReason(poly orb.Polygon) string {
	if len(poly) == 0 {
		return "no rings"
	}
	for i, r := range poly {
		if reason := ringReason(r); reason != "" {
			return fmt.Sprintf("ring %d: %s", i, reason)
		}
	}
	return ""
}

func ringReason(r orb.Ring) string {
	for _, p := range r {
		if !finite(p) {
			return "non-finite coordinate"
		}
	}
	switch {
	case len(r) < 4:
		return "fewer than four vertices"
	case !r.Closed():
		return "not closed"
	case planar.Area(r) == 0:
		return "zero area"
	case selfIntersects(r):
		return "self-intersection"
	}
	return ""
}

func distinct(ps []orb.Point) int {
	n := 0
	for i, p := range ps {
		if i == 0 || p != ps[i-1] {
			n++
		}
	}
	return n
}

// selfIntersects reports whether two non-adjacent edges of the closed ring
// r touch or cross, or two adjacent edges overlap.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // edges
	for i := 0; i < n; i++ {
		a, b := r[i], r[i+1]
		for j := i + 1; j < n; j++ {
			c, d := r[j], r[j+1]
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				// Adjacent edges share one vertex; they are invalid only
				// when they fold back over each other.
				shared, other, far := b, a, d
				if i == 0 && j == n-1 {
					shared, other, far = a, b, c
				}
				if orient(other, shared, far) == 0 && dot(other, shared, far) > 0 {
					return true
				}
				continue
			}
			if segmentsIntersect(a, b, c, d) {
				return true
			}
		}
	}
	return false
}

// orient is the sign of the cross product (b-a)x(c-a).
func orient(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// dot is the dot product of (a-shared) and (far-shared).
func dot(a, shared, far orb.Point) float64 {
	return (a[0]-shared[0])*(far[0]-shared[0]) + (a[1]-shared[1])*(far[1]-shared[1])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(a, b, c, d orb.Point) bool {
	o1, o2 := orient(a, b, c), orient(a, b, d)
	o3, o4 := orient(c, d, a), orient(c, d, b)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return (o1 == 0 && onSegment(a, b, c)) ||
		(o2 == 0 && onSegment(a, b, d)) ||
		(o3 == 0 && onSegment(c, d, a)) ||
		(o4 == 0 && onSegment(c, d, b))
}
