// Package geojson implements the GeoJSON dataset codec.
//
// A file holds one layer. The legacy "crs" member carries the layer's EPSG
// code; when it is absent the layer is EPSG:4326 as RFC 7946 requires, and
// when it is null the spatial reference is undefined. Z and M ordinates and
// property order survive a decode/encode round trip.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geoprep/dataset"
)

// DefaultSRID is the spatial reference of a GeoJSON file without a "crs" member.
const DefaultSRID = 4326

// ErrNotCollection is returned for files whose root is not a FeatureCollection.
var ErrNotCollection = errors.New("geojson: root object is not a FeatureCollection")

// Codec reads and writes GeoJSON FeatureCollections.
type Codec struct{}

// New returns the GeoJSON codec.
func New() Codec { return Codec{} }

func (Codec) Name() string             { return "geojson" }
func (Codec) Extensions() []string     { return []string{".geojson", ".json"} }
func (Codec) MultiLayer() bool         { return false }
func (Codec) ReservedFields() []string { return nil }

type rawCollection struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	CRS      json.RawMessage `json:"crs"`
	Features []rawFeature    `json:"features"`
}

type rawFeature struct {
	Geometry   *rawGeometry    `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  []*rawGeometry  `json:"geometries"`
}

// Decode reads the FeatureCollection at path.
func (Codec) Decode(path string) ([]*dataset.LayerData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	if raw.Type != "FeatureCollection" {
		return nil, ErrNotCollection
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	if len(fc.Features) != len(raw.Features) {
		return nil, fmt.Errorf("geojson: decoded %d features, expected %d", len(fc.Features), len(raw.Features))
	}

	srid, err := parseCRS(raw.CRS)
	if err != nil {
		return nil, err
	}

	layer := &dataset.LayerData{
		Name:     raw.Name,
		Features: make([]*dataset.Feature, 0, len(fc.Features)),
	}
	if layer.Name == "" {
		layer.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	inf := newFieldInference()
	for i, f := range fc.Features {
		keys, err := propertyKeys(raw.Features[i].Properties)
		if err != nil {
			return nil, fmt.Errorf("geojson: feature %d: %w", i, err)
		}
		for _, k := range keys {
			inf.observe(k, f.Properties[k])
		}

		feat := &dataset.Feature{
			FID:        int64(i + 1),
			Attributes: make(map[string]any, len(f.Properties)),
		}
		for k, v := range f.Properties {
			feat.Attributes[k] = v
		}
		if f.Geometry != nil {
			geom := &dataset.Geometry{Shape: f.Geometry}
			if rg := raw.Features[i].Geometry; rg != nil {
				geom.Z, geom.M, err = extraOrdinates(rg)
				if err != nil {
					return nil, fmt.Errorf("geojson: feature %d: %w", i, err)
				}
			}
			if err := geom.Validate(); err != nil {
				return nil, fmt.Errorf("geojson: feature %d: %w", i, err)
			}
			feat.Geometry = geom
		}
		layer.Features = append(layer.Features, feat)
	}

	layer.Schema = dataset.Schema{
		Fields:       inf.fields(),
		GeometryType: dataset.GeometryTypeOf(layer.Features),
		SRID:         srid,
	}
	return []*dataset.LayerData{layer}, nil
}

// Encode writes a single layer as a FeatureCollection. Properties are
// written in schema order.
func (Codec) Encode(path string, layers []*dataset.LayerData) error {
	if len(layers) != 1 {
		return fmt.Errorf("geojson: expected exactly one layer, got %d", len(layers))
	}
	layer := layers[0]

	var buf bytes.Buffer
	buf.WriteString(`{"type":"FeatureCollection"`)
	if layer.Name != "" {
		name, _ := json.Marshal(layer.Name)
		buf.WriteString(`,"name":`)
		buf.Write(name)
	}
	switch layer.Schema.SRID {
	case DefaultSRID:
	case 0:
		buf.WriteString(`,"crs":null`)
	default:
		fmt.Fprintf(&buf, `,"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::%d"}}`, layer.Schema.SRID)
	}

	buf.WriteString(`,"features":[`)
	for i, f := range layer.Features {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeFeature(&buf, f, layer.Schema.Fields); err != nil {
			return fmt.Errorf("geojson: feature %d: %w", f.FID, err)
		}
	}
	buf.WriteString("]}\n")

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeFeature(buf *bytes.Buffer, f *dataset.Feature, fields []dataset.Field) error {
	buf.WriteString(`{"type":"Feature","geometry":`)
	geom, err := marshalGeometry(f.Geometry)
	if err != nil {
		return err
	}
	buf.Write(geom)

	buf.WriteString(`,"properties":{`)
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(field.Name)
		val, err := json.Marshal(f.Attributes[field.Name])
		if err != nil {
			return fmt.Errorf("property %q: %w", field.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")
	return nil
}

func marshalGeometry(g *dataset.Geometry) ([]byte, error) {
	if g == nil || g.Shape == nil {
		return []byte("null"), nil
	}
	b, err := json.Marshal(geojson.NewGeometry(g.Shape))
	if err != nil {
		return nil, err
	}
	if g.Is2D() {
		return b, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	w := &ordinateWriter{z: g.Z, m: g.M}
	w.geometry(obj)
	return json.Marshal(obj)
}

// parseCRS maps the legacy crs member to an EPSG code.
func parseCRS(raw json.RawMessage) (int, error) {
	if raw == nil {
		return DefaultSRID, nil
	}
	if string(bytes.TrimSpace(raw)) == "null" {
		return 0, nil
	}
	var crs struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &crs); err != nil {
		return 0, fmt.Errorf("geojson: crs: %w", err)
	}
	name := crs.Properties.Name
	switch {
	case strings.EqualFold(name, "urn:ogc:def:crs:OGC:1.3:CRS84"), strings.EqualFold(name, "urn:ogc:def:crs:OGC::CRS84"):
		return DefaultSRID, nil
	case name == "":
		return 0, nil
	}
	i := strings.LastIndexAny(name, ":")
	code, err := strconv.Atoi(name[i+1:])
	if err != nil || !strings.Contains(strings.ToUpper(name), "EPSG") {
		// Unrecognised names leave the spatial reference undefined.
		return 0, nil
	}
	return code, nil
}

// propertyKeys returns the keys of a JSON object in document order.
func propertyKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected property token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
