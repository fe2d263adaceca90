//go:build geos

package geosengine

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
	"github.com/twpayne/go-proj/v10"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// quadSegs is the number of segments per quarter circle passed to Buffer.
const quadSegs = 8

// Provider registers the engine with a probe that builds a PROJ transform.
func Provider() engine.Provider {
	return engine.Provider{
		Name:  Name,
		Probe: probe,
		New:   func() (engine.Engine, error) { return New(), nil },
	}
}

func probe() error {
	pj, err := proj.NewCRSToCRS("EPSG:4326", "EPSG:3857", nil)
	if err != nil {
		return fmt.Errorf("geosengine: proj unavailable: %w", err)
	}
	pj.Destroy()
	g, err := geos.NewGeomFromGeoJSON(`{"type":"Point","coordinates":[0,0]}`)
	if err != nil {
		return fmt.Errorf("geosengine: geos unavailable: %w", err)
	}
	g.Destroy()
	return nil
}

// Engine implements engine.Engine with GEOS and PROJ.
type Engine struct{}

// New returns the GEOS engine.
func New() *Engine { return &Engine{} }

func (*Engine) Name() string { return Name }

func (*Engine) To2D(g *dataset.Geometry) *dataset.Geometry {
	return engine.Flatten(g)
}

// IsValid runs the GEOS validity predicate.
func (*Engine) IsValid(g *dataset.Geometry) (bool, error) {
	if g == nil || g.Shape == nil {
		return true, nil
	}
	gg, err := toGEOS(g.Shape)
	if err != nil {
		return false, err
	}
	defer gg.Destroy()
	return gg.IsValid(), nil
}

// Repair buffers polygonal geometries by zero and runs MakeValid on the
// rest. GEOS output is planar, so Z and M are not kept.
func (*Engine) Repair(g *dataset.Geometry) (*dataset.Geometry, error) {
	if g == nil || g.Shape == nil {
		return g, nil
	}
	gg, err := toGEOS(g.Shape)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()

	var fixed *geos.Geom
	switch gg.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		fixed = gg.Buffer(0, quadSegs)
	default:
		fixed = gg.MakeValid()
	}
	if fixed == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotRepairable, gg.IsValidReason())
	}
	defer fixed.Destroy()
	if !fixed.IsValid() {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotRepairable, fixed.IsValidReason())
	}

	shape, err := fromGEOS(fixed)
	if err != nil {
		return nil, err
	}
	return dataset.NewGeometry(shape), nil
}

// Length returns the GEOS length of a single line.
func (*Engine) Length(g *dataset.Geometry) (float64, error) {
	ls, ok := engine.Line(g)
	if !ok {
		return 0, engine.ErrNotLinear
	}
	gg, err := toGEOS(ls)
	if err != nil {
		return 0, err
	}
	defer gg.Destroy()
	return gg.Length(), nil
}

func (*Engine) FirstPoint(g *dataset.Geometry) (orb.Point, error) {
	first, _, err := engine.Endpoints(g)
	return first, err
}

func (*Engine) LastPoint(g *dataset.Geometry) (orb.Point, error) {
	_, last, err := engine.Endpoints(g)
	return last, err
}

// NewTransform builds a PROJ transform with lon/lat axis order on
// geographic systems.
func (*Engine) NewTransform(src, dst int) (engine.Transform, error) {
	pj, err := proj.NewCRSToCRS(fmt.Sprintf("EPSG:%d", src), fmt.Sprintf("EPSG:%d", dst), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d to EPSG:%d: %v", engine.ErrUnsupportedCRS, src, dst, err)
	}
	norm, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d to EPSG:%d: %v", engine.ErrUnsupportedCRS, src, dst, err)
	}
	return &transform{pj: norm}, nil
}

type transform struct {
	mu sync.Mutex
	pj *proj.PJ
}

// Apply forwards every vertex through PROJ. Z ordinates are transformed
// with the vertex; M is carried over.
func (t *transform) Apply(g *dataset.Geometry) (*dataset.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := g.Clone()
	shape, err := dataset.MapVertices(g.Shape, func(i int, p orb.Point) (orb.Point, error) {
		z := 0.0
		if g.Z != nil {
			z = g.Z[i]
		}
		c, err := t.pj.Forward(proj.Coord{p[0], p[1], z, 0})
		if err != nil {
			return p, fmt.Errorf("vertex %d: %w", i, err)
		}
		if math.IsInf(c[0], 0) || math.IsInf(c[1], 0) || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
			return p, fmt.Errorf("%w: vertex %d", engine.ErrNonFiniteOrdinal, i)
		}
		if out.Z != nil {
			out.Z[i] = c[2]
		}
		return orb.Point{c[0], c[1]}, nil
	})
	if err != nil {
		return nil, err
	}
	out.Shape = shape
	return out, nil
}

func (t *transform) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pj != nil {
		t.pj.Destroy()
		t.pj = nil
	}
	return nil
}

func toGEOS(shape orb.Geometry) (*geos.Geom, error) {
	b, err := json.Marshal(geojson.NewGeometry(shape))
	if err != nil {
		return nil, err
	}
	return geos.NewGeomFromGeoJSON(string(b))
}

func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	gj, err := geojson.UnmarshalGeometry([]byte(g.ToGeoJSON(-1)))
	if err != nil {
		return nil, err
	}
	return gj.Geometry(), nil
}
