//go:build !geos

package geosengine

import "github.com/tingold/geoprep/engine"

// Provider registers the engine. Without cgo support compiled in it is
// never available.
func Provider() engine.Provider {
	return engine.Provider{
		Name:  Name,
		Probe: func() error { return ErrNotCompiled },
		New:   func() (engine.Engine, error) { return nil, ErrNotCompiled },
	}
}
