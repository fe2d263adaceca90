package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

var errBadWKB = errors.New("gpkg: malformed wkb")

// EWKB dimension and SRID flags in the high bits of the type code.
const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

// WKB base type codes.
const (
	wkbPoint              = 1
	wkbLineString         = 2
	wkbPolygon            = 3
	wkbMultiPoint         = 4
	wkbMultiLineString    = 5
	wkbMultiPolygon       = 6
	wkbGeometryCollection = 7
)

type dims struct{ z, m bool }

// parseTypeCode splits a WKB type code into its base type and dimensions.
// Both the ISO form (Z +1000, M +2000, ZM +3000) and the EWKB flag form
// are accepted.
func parseTypeCode(code uint32) (base uint32, d dims, srid bool) {
	if code&(ewkbZ|ewkbM|ewkbSRID) != 0 {
		d = dims{z: code&ewkbZ != 0, m: code&ewkbM != 0}
		return code & 0x0fffffff, d, code&ewkbSRID != 0
	}
	switch code / 1000 {
	case 1:
		d.z = true
	case 2:
		d.m = true
	case 3:
		d = dims{z: true, m: true}
	}
	return code % 1000, d, false
}

// readWKB decodes a WKB geometry of any dimension. Z and M ordinates are
// returned in vertex traversal order; they are dropped unless every
// vertex carries them.
func readWKB(data []byte) (*dataset.Geometry, error) {
	r := &wkbReader{buf: data, allZ: true, allM: true}
	shape, err := r.geometry()
	if err != nil {
		return nil, err
	}
	g := &dataset.Geometry{Shape: shape}
	if r.vertices > 0 && r.allZ {
		g.Z = r.z
	}
	if r.vertices > 0 && r.allM {
		g.M = r.m
	}
	return g, nil
}

type wkbReader struct {
	buf        []byte
	pos        int
	order      binary.ByteOrder
	z, m       []float64
	allZ, allM bool
	vertices   int
}

func (r *wkbReader) uint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errBadWKB
	}
	v := r.order.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *wkbReader) float64() (float64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errBadWKB
	}
	v := math.Float64frombits(r.order.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *wkbReader) header() (uint32, dims, error) {
	if r.pos >= len(r.buf) {
		return 0, dims{}, errBadWKB
	}
	switch r.buf[r.pos] {
	case 0:
		r.order = binary.BigEndian
	case 1:
		r.order = binary.LittleEndian
	default:
		return 0, dims{}, fmt.Errorf("%w: byte order %d", errBadWKB, r.buf[r.pos])
	}
	r.pos++
	code, err := r.uint32()
	if err != nil {
		return 0, dims{}, err
	}
	base, d, srid := parseTypeCode(code)
	if srid {
		if _, err := r.uint32(); err != nil {
			return 0, dims{}, err
		}
	}
	return base, d, nil
}

func (r *wkbReader) point(d dims) (orb.Point, error) {
	var p orb.Point
	var err error
	if p[0], err = r.float64(); err != nil {
		return p, err
	}
	if p[1], err = r.float64(); err != nil {
		return p, err
	}
	r.vertices++
	if d.z {
		z, err := r.float64()
		if err != nil {
			return p, err
		}
		r.z = append(r.z, z)
	} else {
		r.allZ = false
	}
	if d.m {
		m, err := r.float64()
		if err != nil {
			return p, err
		}
		r.m = append(r.m, m)
	} else {
		r.allM = false
	}
	return p, nil
}

func (r *wkbReader) count() (int, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	if int(n) > len(r.buf)-r.pos {
		return 0, fmt.Errorf("%w: count %d", errBadWKB, n)
	}
	return int(n), nil
}

func (r *wkbReader) points(d dims) ([]orb.Point, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	pts := make([]orb.Point, n)
	for i := range pts {
		if pts[i], err = r.point(d); err != nil {
			return nil, err
		}
	}
	return pts, nil
}

func (r *wkbReader) polygon(d dims) (orb.Polygon, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	poly := make(orb.Polygon, n)
	for i := range poly {
		ring, err := r.points(d)
		if err != nil {
			return nil, err
		}
		poly[i] = orb.Ring(ring)
	}
	return poly, nil
}

func (r *wkbReader) geometry() (orb.Geometry, error) {
	base, d, err := r.header()
	if err != nil {
		return nil, err
	}
	switch base {
	case wkbPoint:
		return r.point(d)
	case wkbLineString:
		pts, err := r.points(d)
		return orb.LineString(pts), err
	case wkbPolygon:
		return r.polygon(d)
	}

	n, err := r.count()
	if err != nil {
		return nil, err
	}
	parts := make([]orb.Geometry, n)
	for i := range parts {
		if parts[i], err = r.geometry(); err != nil {
			return nil, err
		}
	}

	switch base {
	case wkbMultiPoint:
		mp := make(orb.MultiPoint, n)
		for i, p := range parts {
			pt, ok := p.(orb.Point)
			if !ok {
				return nil, fmt.Errorf("%w: %T in multipoint", errBadWKB, p)
			}
			mp[i] = pt
		}
		return mp, nil
	case wkbMultiLineString:
		mls := make(orb.MultiLineString, n)
		for i, p := range parts {
			ls, ok := p.(orb.LineString)
			if !ok {
				return nil, fmt.Errorf("%w: %T in multilinestring", errBadWKB, p)
			}
			mls[i] = ls
		}
		return mls, nil
	case wkbMultiPolygon:
		mp := make(orb.MultiPolygon, n)
		for i, p := range parts {
			poly, ok := p.(orb.Polygon)
			if !ok {
				return nil, fmt.Errorf("%w: %T in multipolygon", errBadWKB, p)
			}
			mp[i] = poly
		}
		return mp, nil
	case wkbGeometryCollection:
		return orb.Collection(parts), nil
	}
	return nil, fmt.Errorf("%w: geometry type %d", errBadWKB, base)
}

// writeWKB encodes g as little-endian ISO WKB carrying its Z and M
// ordinates. 2D geometries go through orb's encoder.
func writeWKB(g *dataset.Geometry) ([]byte, error) {
	if g.Is2D() {
		return wkbMarshal(g.Shape)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	w := &wkbWriter{d: dims{z: g.HasZ(), m: g.HasM()}, z: g.Z, m: g.M}
	if err := w.geometry(g.Shape); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type wkbWriter struct {
	buf  []byte
	d    dims
	z, m []float64
	next int
}

func (w *wkbWriter) header(base uint32) {
	code := base
	switch {
	case w.d.z && w.d.m:
		code += 3000
	case w.d.z:
		code += 1000
	case w.d.m:
		code += 2000
	}
	w.buf = append(w.buf, 1)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, code)
}

func (w *wkbWriter) float64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *wkbWriter) point(p orb.Point) {
	w.float64(p[0])
	w.float64(p[1])
	if w.d.z {
		w.float64(w.z[w.next])
	}
	if w.d.m {
		w.float64(w.m[w.next])
	}
	w.next++
}

func (w *wkbWriter) points(pts []orb.Point) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(pts)))
	for _, p := range pts {
		w.point(p)
	}
}

func (w *wkbWriter) polygon(poly orb.Polygon) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(poly)))
	for _, r := range poly {
		w.points(r)
	}
}

func (w *wkbWriter) geometry(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Point:
		w.header(wkbPoint)
		w.point(v)
	case orb.LineString:
		w.header(wkbLineString)
		w.points(v)
	case orb.Ring:
		return w.geometry(orb.Polygon{v})
	case orb.Polygon:
		w.header(wkbPolygon)
		w.polygon(v)
	case orb.MultiPoint:
		w.header(wkbMultiPoint)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
		for _, p := range v {
			w.header(wkbPoint)
			w.point(p)
		}
	case orb.MultiLineString:
		w.header(wkbMultiLineString)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
		for _, ls := range v {
			w.header(wkbLineString)
			w.points(ls)
		}
	case orb.MultiPolygon:
		w.header(wkbMultiPolygon)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
		for _, poly := range v {
			w.header(wkbPolygon)
			w.polygon(poly)
		}
	case orb.Collection:
		w.header(wkbGeometryCollection)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
		for _, child := range v {
			if err := w.geometry(child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("gpkg: unsupported geometry %T", g)
	}
	return nil
}
