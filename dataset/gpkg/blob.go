package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/tingold/geoprep/dataset"
)

var errBadBlob = errors.New("gpkg: malformed geometry blob")

const (
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	envelopeXY       = 1 << 1
)

// envelopeSizes is indexed by the envelope contents indicator.
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// encodeBlob builds a GeoPackage binary geometry: the "GP" header with an
// XY envelope followed by little-endian WKB, ISO Z/M typed when g carries
// extra ordinates.
func encodeBlob(g *dataset.Geometry, srsID int) ([]byte, error) {
	body, err := writeWKB(g)
	if err != nil {
		return nil, err
	}
	shape := g.Shape

	flags := byte(flagLittleEndian)
	empty := isEmpty(shape)
	if empty {
		flags |= flagEmpty
	} else {
		flags |= envelopeXY
	}

	buf := make([]byte, 8, 8+32+len(body))
	buf[0], buf[1], buf[2], buf[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(srsID)))
	if !empty {
		b := shape.Bound()
		for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return append(buf, body...), nil
}

// decodeBlob parses a GeoPackage binary geometry. Empty geometries decode
// to nil.
func decodeBlob(blob []byte) (*dataset.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, errBadBlob
	}
	flags := blob[3]
	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, fmt.Errorf("%w: envelope indicator %d", errBadBlob, indicator)
	}
	start := 8 + envelopeSizes[indicator]
	if len(blob) < start {
		return nil, errBadBlob
	}
	if flags&flagEmpty != 0 {
		return nil, nil
	}
	g, err := readWKB(blob[start:])
	if err != nil {
		return nil, err
	}
	return g, nil
}

func wkbMarshal(shape orb.Geometry) ([]byte, error) {
	return wkb.Marshal(shape, binary.LittleEndian)
}

func isEmpty(shape orb.Geometry) bool {
	switch v := shape.(type) {
	case orb.Point:
		return math.IsNaN(v[0]) && math.IsNaN(v[1])
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}
