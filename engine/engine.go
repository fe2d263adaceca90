// Package engine defines the geometry engine capability used by the
// preprocessing operations and the registry that selects a concrete engine
// at pipeline construction.
//
// An engine does the numeric work: coordinate transforms, validity checks
// and repair, dimensionality reduction and length/endpoint queries. Each
// engine is registered as a Provider whose Probe reports whether the
// engine's runtime dependencies are usable in this process.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

// Auto selects the first available engine in preference order.
const Auto = "auto"

// Common errors returned by this package.
var (
	ErrNotFound         = errors.New("engine: not found")
	ErrUnsupportedCRS   = errors.New("engine: unsupported coordinate system")
	ErrNotRepairable    = errors.New("engine: geometry cannot be repaired")
	ErrEmptyGeometry    = errors.New("engine: empty geometry")
	ErrNotLinear        = errors.New("engine: geometry is not a single line")
	ErrDuplicateEngine  = errors.New("engine: duplicate provider")
	ErrNonFiniteOrdinal = errors.New("engine: non-finite coordinate")
)

// Engine performs geometry math for the preprocessing operations.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Name identifies the engine, e.g. "orb".
	Name() string
	// NewTransform builds a coordinate transform between two EPSG codes.
	NewTransform(src, dst int) (Transform, error)
	// IsValid reports whether g satisfies the engine's validity predicate.
	IsValid(g *dataset.Geometry) (bool, error)
	// Repair returns a valid geometry derived from g.
	Repair(g *dataset.Geometry) (*dataset.Geometry, error)
	// To2D drops Z and M ordinates, keeping the geometry type.
	To2D(g *dataset.Geometry) *dataset.Geometry
	// Length returns the planar path length of a linear geometry.
	Length(g *dataset.Geometry) (float64, error)
	// FirstPoint returns the first vertex of a linear geometry.
	FirstPoint(g *dataset.Geometry) (orb.Point, error)
	// LastPoint returns the last vertex of a linear geometry.
	LastPoint(g *dataset.Geometry) (orb.Point, error)
}

// Transform maps geometries from one coordinate system to another.
// A Transform must be safe for concurrent use and closed when done.
type Transform interface {
	Apply(g *dataset.Geometry) (*dataset.Geometry, error)
	Close() error
}

// Provider registers an engine with its capability probe.
type Provider struct {
	Name  string
	Probe func() error // nil when the engine is always available
	New   func() (Engine, error)
}

// Available runs the probe.
func (p Provider) Available() error {
	if p.Probe == nil {
		return nil
	}
	return p.Probe()
}

// Registry holds providers in preference order.
type Registry struct {
	providers []Provider
}

// NewRegistry returns a registry that prefers providers in the given order.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{}
	for _, p := range providers {
		if _, ok := r.lookup(p.Name); ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEngine, p.Name)
		}
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// Names lists provider names in preference order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name
	}
	return names
}

// Status reports the probe result of every provider in preference order.
func (r *Registry) Status() map[string]error {
	out := make(map[string]error, len(r.providers))
	for _, p := range r.providers {
		out[p.Name] = p.Available()
	}
	return out
}

// Select builds the engine named by name. "auto" (or "") probes providers
// in preference order and builds the first available one. A named engine
// whose probe fails is never replaced by another.
func (r *Registry) Select(name string) (Engine, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, Auto) {
		var errs []error
		for _, p := range r.providers {
			err := p.Available()
			if err == nil {
				return build(p)
			}
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
		if len(errs) == 0 {
			return nil, fmt.Errorf("%w: no engine registered", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: no engine available: %w", ErrNotFound, errors.Join(errs...))
	}

	p, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNotFound, name)
	}
	if err := p.Available(); err != nil {
		return nil, fmt.Errorf("%w: engine %q unavailable: %w", ErrNotFound, p.Name, err)
	}
	return build(p)
}

func build(p Provider) (Engine, error) {
	e, err := p.New()
	if err != nil {
		return nil, fmt.Errorf("%w: engine %q: %w", ErrNotFound, p.Name, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: engine %q constructor returned nil", ErrNotFound, p.Name)
	}
	return e, nil
}

func (r *Registry) lookup(name string) (Provider, bool) {
	for _, p := range r.providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Provider{}, false
}
