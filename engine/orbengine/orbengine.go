// Package orbengine is the pure Go geometry engine built on orb. It needs no
// native libraries and is always available, but its coordinate transforms
// are limited to what orb/project implements: geographic WGS84-compatible
// systems and spherical Web Mercator.
package orbengine

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// Name is the registry name of the engine.
const Name = "orb"

// Provider registers the engine. It has no probe.
func Provider() engine.Provider {
	return engine.Provider{
		Name: Name,
		New:  func() (engine.Engine, error) { return New(), nil },
	}
}

// Engine implements engine.Engine with orb.
type Engine struct{}

// New returns the orb engine.
func New() *Engine { return &Engine{} }

func (*Engine) Name() string { return Name }

func (*Engine) To2D(g *dataset.Geometry) *dataset.Geometry {
	return engine.Flatten(g)
}

// Length returns the planar length of a single line.
func (*Engine) Length(g *dataset.Geometry) (float64, error) {
	ls, ok := engine.Line(g)
	if !ok {
		return 0, engine.ErrNotLinear
	}
	return planar.Length(ls), nil
}

func (*Engine) FirstPoint(g *dataset.Geometry) (orb.Point, error) {
	first, _, err := engine.Endpoints(g)
	return first, err
}

func (*Engine) LastPoint(g *dataset.Geometry) (orb.Point, error) {
	_, last, err := engine.Endpoints(g)
	return last, err
}
