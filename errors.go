package geoprep

import (
	"errors"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
	"github.com/tingold/geoprep/region"
)

// Error kinds. Every failure returned by a Pipeline operation is an
// *OpError whose Kind is one of these.
var (
	ErrDatasetNotFound      = dataset.ErrNotFound
	ErrUnknownRegion        = region.ErrUnknownRegion
	ErrRegistryUnavailable  = region.ErrUnavailable
	ErrEngineNotFound       = engine.ErrNotFound
	ErrFieldNameCollision   = errors.New("geoprep: field name collision")
	ErrInvalidFieldName     = errors.New("geoprep: field name sanitizes to empty")
	ErrProjectionFailed     = errors.New("geoprep: projection failed")
	ErrGeometryRepairFailed = errors.New("geoprep: geometry repair failed")
	ErrInvalidConfiguration = errors.New("geoprep: invalid configuration")
	ErrSinuosityFailed      = errors.New("geoprep: sinuosity failed")
	ErrDatasetWriteFailed   = errors.New("geoprep: dataset write failed")
)

// OpError records a failed operation with the dataset it ran on.
type OpError struct {
	Op   string // Operation, e.g. "standardize_projection"
	Path string // Dataset path
	Kind error  // One of the Err* kinds
	Err  error  // Underlying cause; may be nil
}

func (e *OpError) Error() string {
	msg := "geoprep: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is and errors.As match both the kind and the cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, err error) error {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// classify wraps err for op, picking the kind from the cause when it is one
// of the known kinds and falling back to def otherwise.
func classify(op, path string, def, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	for _, kind := range []error{
		ErrDatasetNotFound,
		ErrUnknownRegion,
		ErrRegistryUnavailable,
		ErrEngineNotFound,
		ErrFieldNameCollision,
		ErrInvalidFieldName,
		ErrInvalidConfiguration,
	} {
		if errors.Is(err, kind) {
			return opError(op, path, kind, err)
		}
	}
	return opError(op, path, def, err)
}
