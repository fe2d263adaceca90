// Package dataset provides the dataset store used by the preprocessing
// operations: handles, field schemas, features with optional Z/M ordinates,
// and a codec registry that maps file extensions to on-disk formats.
//
// Datasets are decoded into memory on open and written back atomically on
// commit, so an aborted operation never leaves a partially written file.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Common errors returned by this package.
var (
	ErrNotFound          = errors.New("dataset: not found")
	ErrUnsupportedFormat = errors.New("dataset: unsupported format")
	ErrExists            = errors.New("dataset: already exists")
	ErrReadOnly          = errors.New("dataset: opened read-only")
	ErrClosed            = errors.New("dataset: closed")
	ErrNoSuchField       = errors.New("dataset: no such field")
	ErrDuplicateField    = errors.New("dataset: duplicate field")
	ErrNoSuchFeature     = errors.New("dataset: no such feature")
	ErrDuplicateLayer    = errors.New("dataset: duplicate layer")
)

// Mode selects how a dataset is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Handle is an opaque reference to a dataset on disk.
type Handle struct {
	Path   string // File path
	Driver string // Codec name; resolved from the extension when empty
}

// Path returns a handle for the given file path.
func Path(p string) Handle {
	return Handle{Path: p}
}

func (h Handle) String() string {
	return h.Path
}

// Stem returns the file name without directory and extension.
func (h Handle) Stem() string {
	base := filepath.Base(h.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FieldType is the declared type of an attribute field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInteger
	FieldReal
	FieldDate
	FieldBoolean
	FieldGeometry // reserved; never produced by a codec
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInteger:
		return "integer"
	case FieldReal:
		return "real"
	case FieldDate:
		return "date"
	case FieldBoolean:
		return "boolean"
	case FieldGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes an attribute column. Its position is its index in Schema.Fields.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the fixed layout of a layer.
type Schema struct {
	Fields       []Field // Attribute fields in declaration order
	GeometryType string  // "Point", "LineString", ... or "Unknown" for mixed layers
	SRID         int     // EPSG code; 0 when the layer has no spatial reference
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	c := s
	c.Fields = append([]Field(nil), s.Fields...)
	return c
}

// FieldIndex returns the position of the named field or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FieldNames lists field names in order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Feature is one record: attribute values keyed by field name plus a geometry.
// A nil Geometry is a null geometry.
type Feature struct {
	FID        int64
	Attributes map[string]any
	Geometry   *Geometry
}

// Clone returns a copy of the feature sharing no mutable state with f.
func (f *Feature) Clone() *Feature {
	c := &Feature{FID: f.FID, Geometry: f.Geometry.Clone()}
	if f.Attributes != nil {
		c.Attributes = make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// LayerData is the decoded content of one layer as exchanged with codecs.
type LayerData struct {
	Name     string
	Schema   Schema
	Features []*Feature
}

// Codec reads and writes one on-disk format.
type Codec interface {
	// Name identifies the codec, e.g. "geojson".
	Name() string
	// Extensions lists lower-case file extensions including the dot.
	Extensions() []string
	// MultiLayer reports whether a file can hold more than one layer.
	MultiLayer() bool
	// ReservedFields lists column names owned by the format itself.
	ReservedFields() []string
	// Decode reads every layer of the file at path.
	Decode(path string) ([]*LayerData, error)
	// Encode writes layers to path, replacing any existing content.
	Encode(path string, layers []*LayerData) error
}
