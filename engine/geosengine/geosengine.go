// Package geosengine is the geometry engine backed by the GEOS and PROJ C
// libraries through cgo. It is compiled only with the "geos" build tag;
// without it the provider is registered but its probe always fails, so
// "auto" selection moves on to the next engine.
package geosengine

import "errors"

// Name is the registry name of the engine.
const Name = "geos"

// ErrNotCompiled is reported by the probe of a binary built without the
// "geos" tag.
var ErrNotCompiled = errors.New("geosengine: built without the geos tag")
