// Package flatgeobuf implements the FlatGeobuf dataset codec on top of the
// official flatgeobuf Go bindings.
//
// Files are always written with a packed Hilbert R-tree index, which the
// reader needs to walk features; the index orders features spatially, so
// feature order is not preserved across a write. Z and M ordinates are
// stored in the per-geometry z and m arrays and flagged in the header.
package flatgeobuf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/tingold/geoprep/dataset"
)

// Common errors returned by this package.
var (
	ErrNilGeometry      = errors.New("flatgeobuf: nil geometry")
	ErrUnsupportedType  = errors.New("flatgeobuf: unsupported geometry type")
	ErrInvalidData      = errors.New("flatgeobuf: invalid data")
	ErrNoIndex          = errors.New("flatgeobuf: file has no spatial index")
	ErrPropertyMismatch = errors.New("flatgeobuf: property type mismatch")
)

// Codec reads and writes single-layer FlatGeobuf files.
type Codec struct{}

// New returns the FlatGeobuf codec.
func New() Codec { return Codec{} }

func (Codec) Name() string             { return "flatgeobuf" }
func (Codec) Extensions() []string     { return []string{".fgb"} }
func (Codec) MultiLayer() bool         { return false }
func (Codec) ReservedFields() []string { return nil }

type column struct {
	name string
	kind flattypes.ColumnType
}

// Decode reads every feature of the file at path.
func (Codec) Decode(path string) ([]*dataset.LayerData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	h := fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidData)
	}

	layer := &dataset.LayerData{Name: string(h.Name())}
	if layer.Name == "" {
		layer.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	columns := make([]column, 0, h.ColumnsLength())
	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if !h.Columns(&col, i) {
			continue
		}
		c := column{name: string(col.Name()), kind: col.Type()}
		columns = append(columns, c)
		layer.Schema.Fields = append(layer.Schema.Fields, dataset.Field{Name: c.name, Type: fieldType(c.kind)})
	}
	layer.Schema.GeometryType = schemaGeometryType(h.GeometryType())

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		layer.Schema.SRID = int(crs.Code())
	}

	if h.FeaturesCount() == 0 {
		return []*dataset.LayerData{layer}, nil
	}
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}
	if h.EnvelopeLength() < 4 {
		return nil, fmt.Errorf("%w: missing envelope", ErrInvalidData)
	}

	found, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	layer.Features = make([]*dataset.Feature, 0, len(found))
	for i, f := range found {
		feat := &dataset.Feature{FID: int64(i + 1)}

		var g flattypes.Geometry
		if f.Geometry(&g) != nil {
			geom, err := decodeFeatureGeometry(&g, h.GeometryType())
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			feat.Geometry = geom
		}

		n := f.PropertiesLength()
		props := make([]byte, n)
		for j := 0; j < n; j++ {
			props[j] = byte(f.Properties(j))
		}
		feat.Attributes, err = decodeProperties(props, columns)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		layer.Features = append(layer.Features, feat)
	}
	return []*dataset.LayerData{layer}, nil
}

// Encode writes a single layer. Every feature must have a geometry.
func (Codec) Encode(path string, layers []*dataset.LayerData) error {
	if len(layers) != 1 {
		return fmt.Errorf("flatgeobuf: expected exactly one layer, got %d", len(layers))
	}
	layer := layers[0]

	features := make([]*writer.Feature, 0, len(layer.Features))
	for _, f := range layer.Features {
		wf, err := encodeFeature(f, layer.Schema.Fields)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.FID, err)
		}
		features = append(features, wf)
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(headerGeometryType(layer.Schema.GeometryType))
	hasZ, hasM := ordinates(layer.Features)
	header.SetHasZ(hasZ)
	header.SetHasM(hasM)
	if layer.Name != "" {
		header.SetName(layer.Name)
	}
	if len(layer.Schema.Fields) > 0 {
		header.SetColumns(buildColumns(layer.Schema.Fields, builder))
	}
	if layer.Schema.SRID != 0 {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(int32(layer.Schema.SRID))
		header.SetCrs(crs)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := writer.NewWriter(header, len(features) > 0, &featureGenerator{features: features}, nil)
	if _, err := w.Write(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func encodeFeature(f *dataset.Feature, fields []dataset.Field) (*writer.Feature, error) {
	if f.Geometry == nil || f.Geometry.Shape == nil {
		return nil, ErrNilGeometry
	}
	if err := f.Geometry.Validate(); err != nil {
		return nil, err
	}
	builder := flatbuffers.NewBuilder(1024)
	var ords *ordinateCursor
	if !f.Geometry.Is2D() {
		ords = &ordinateCursor{z: f.Geometry.Z, m: f.Geometry.M}
	}
	g, err := encodeGeometry(f.Geometry.Shape, ords, builder)
	if err != nil {
		return nil, err
	}
	wf := writer.NewFeature(builder)
	wf.SetGeometry(g)

	props, err := encodeProperties(f.Attributes, fields)
	if err != nil {
		return nil, err
	}
	if len(props) > 0 {
		wf.SetProperties(props)
	}
	return wf, nil
}

// ordinates reports whether any geometry carries Z or M.
func ordinates(features []*dataset.Feature) (hasZ, hasM bool) {
	for _, f := range features {
		hasZ = hasZ || f.Geometry.HasZ()
		hasM = hasM || f.Geometry.HasM()
	}
	return hasZ, hasM
}

// featureGenerator hands prepared features to the writer.
type featureGenerator struct {
	features []*writer.Feature
	index    int
}

func (g *featureGenerator) Generate() *writer.Feature {
	if g.index >= len(g.features) {
		return nil
	}
	f := g.features[g.index]
	g.index++
	return f
}
