package flatgeobuf

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
	"time"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/paulmach/orb"

	"github.com/tingold/geoprep/dataset"
)

func roundTrip(t *testing.T, layer *dataset.LayerData) *dataset.LayerData {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.fgb")
	if err := New().Encode(path, []*dataset.LayerData{layer}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	layers, err := New().Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(layers))
	}
	return layers[0]
}

func TestDecode_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fgb")
	if err := os.WriteFile(path, []byte("not a flatgeobuf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New().Decode(path); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestRoundTrip_Geometries(t *testing.T) {
	tests := []struct {
		name  string
		shape orb.Geometry
	}{
		{"point", orb.Point{1, 2}},
		{"multipoint", orb.MultiPoint{{1, 2}, {3, 4}}},
		{"linestring", orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}, {4, 2}}}},
		{"polygon", orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
		}},
		{"multipolygon", orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, &dataset.LayerData{
				Name:     tt.name,
				Schema:   dataset.Schema{GeometryType: tt.shape.GeoJSONType(), SRID: 4326},
				Features: []*dataset.Feature{{FID: 1, Geometry: dataset.NewGeometry(tt.shape)}},
			})
			if got.Name != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, got.Name)
			}
			if got.Schema.SRID != 4326 {
				t.Errorf("expected SRID 4326, got %d", got.Schema.SRID)
			}
			if got.Schema.GeometryType != tt.shape.GeoJSONType() {
				t.Errorf("expected geometry type %s, got %s", tt.shape.GeoJSONType(), got.Schema.GeometryType)
			}
			if len(got.Features) != 1 {
				t.Fatalf("expected 1 feature, got %d", len(got.Features))
			}
			if !orb.Equal(got.Features[0].Geometry.Shape, tt.shape) {
				t.Errorf("geometry mismatch: got %v, want %v", got.Features[0].Geometry.Shape, tt.shape)
			}
		})
	}
}

func TestRoundTrip_ZM(t *testing.T) {
	tests := []struct {
		name string
		geom *dataset.Geometry
	}{
		{"point z", &dataset.Geometry{Shape: orb.Point{1, 2}, Z: []float64{3}}},
		{"linestring z", &dataset.Geometry{Shape: orb.LineString{{0, 0}, {10, 0}}, Z: []float64{5, 6}}},
		{"linestring m", &dataset.Geometry{Shape: orb.LineString{{0, 0}, {10, 0}}, M: []float64{0, 10}}},
		{"multipolygon zm", &dataset.Geometry{
			Shape: orb.MultiPolygon{
				{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
				{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
			},
			Z: []float64{1, 2, 3, 4, 5, 6, 7, 8},
			M: []float64{8, 7, 6, 5, 4, 3, 2, 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "zm.fgb")
			layer := &dataset.LayerData{
				Name:     "zm",
				Schema:   dataset.Schema{GeometryType: tt.geom.Type(), SRID: 4326},
				Features: []*dataset.Feature{{FID: 1, Geometry: tt.geom}},
			}
			if err := New().Encode(path, []*dataset.LayerData{layer}); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			fgb, err := flatgeobuf.NewWithData(data)
			if err != nil {
				t.Fatal(err)
			}
			if h := fgb.Header(); h.HasZ() != tt.geom.HasZ() || h.HasM() != tt.geom.HasM() {
				t.Errorf("header has z=%v m=%v, want z=%v m=%v", h.HasZ(), h.HasM(), tt.geom.HasZ(), tt.geom.HasM())
			}

			layers, err := New().Decode(path)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got := layers[0].Features[0].Geometry
			if !orb.Equal(got.Shape, tt.geom.Shape) {
				t.Errorf("geometry mismatch: got %v, want %v", got.Shape, tt.geom.Shape)
			}
			if !slices.Equal(got.Z, tt.geom.Z) || (got.Z == nil) != (tt.geom.Z == nil) {
				t.Errorf("z: got %v, want %v", got.Z, tt.geom.Z)
			}
			if !slices.Equal(got.M, tt.geom.M) || (got.M == nil) != (tt.geom.M == nil) {
				t.Errorf("m: got %v, want %v", got.M, tt.geom.M)
			}
		})
	}
}

func TestRoundTrip_2DStays2D(t *testing.T) {
	got := roundTrip(t, &dataset.LayerData{
		Name:     "flat",
		Schema:   dataset.Schema{GeometryType: "LineString"},
		Features: []*dataset.Feature{{FID: 1, Geometry: dataset.NewGeometry(orb.LineString{{0, 0}, {1, 1}})}},
	})
	if g := got.Features[0].Geometry; !g.Is2D() {
		t.Errorf("expected 2D geometry, got z=%v m=%v", g.Z, g.M)
	}
}

func TestEncode_OrdinateMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fgb")
	layer := &dataset.LayerData{
		Name: "bad",
		Features: []*dataset.Feature{{FID: 1, Geometry: &dataset.Geometry{
			Shape: orb.LineString{{0, 0}, {1, 1}},
			Z:     []float64{1},
		}}},
	}
	if err := New().Encode(path, []*dataset.LayerData{layer}); err == nil {
		t.Error("expected error for z count mismatch")
	}
}

func TestRoundTrip_Properties(t *testing.T) {
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	layer := &dataset.LayerData{
		Name: "props",
		Schema: dataset.Schema{
			Fields: []dataset.Field{
				{Name: "name", Type: dataset.FieldString},
				{Name: "count", Type: dataset.FieldInteger},
				{Name: "ratio", Type: dataset.FieldReal},
				{Name: "ok", Type: dataset.FieldBoolean},
				{Name: "seen", Type: dataset.FieldDate},
			},
			GeometryType: "Point",
		},
	}
	for i := 0; i < 5; i++ {
		layer.Features = append(layer.Features, &dataset.Feature{
			FID: int64(i + 1),
			Attributes: map[string]any{
				"name":  string(rune('a' + i)),
				"count": float64(i), // coerced to integer
				"ratio": float64(i) / 2,
				"ok":    i%2 == 0,
				"seen":  day,
			},
			Geometry: dataset.NewGeometry(orb.Point{float64(i), float64(i)}),
		})
	}

	got := roundTrip(t, layer)
	if names := got.Schema.FieldNames(); len(names) != 5 || names[1] != "count" {
		t.Fatalf("unexpected fields %v", names)
	}
	if got.Schema.Fields[1].Type != dataset.FieldInteger {
		t.Errorf("expected integer column, got %s", got.Schema.Fields[1].Type)
	}

	// The spatial index reorders features.
	sort.Slice(got.Features, func(i, j int) bool {
		return got.Features[i].Attributes["name"].(string) < got.Features[j].Attributes["name"].(string)
	})
	for i, f := range got.Features {
		if f.Attributes["count"] != int64(i) {
			t.Errorf("feature %d: expected count %d, got %v", i, i, f.Attributes["count"])
		}
		if f.Attributes["ratio"] != float64(i)/2 {
			t.Errorf("feature %d: unexpected ratio %v", i, f.Attributes["ratio"])
		}
		if f.Attributes["ok"] != (i%2 == 0) {
			t.Errorf("feature %d: unexpected ok %v", i, f.Attributes["ok"])
		}
		seen, ok := f.Attributes["seen"].(time.Time)
		if !ok || !seen.Equal(day) {
			t.Errorf("feature %d: unexpected seen %v", i, f.Attributes["seen"])
		}
	}
}

func TestRoundTrip_NullProperty(t *testing.T) {
	got := roundTrip(t, &dataset.LayerData{
		Name:   "nulls",
		Schema: dataset.Schema{Fields: []dataset.Field{{Name: "v", Type: dataset.FieldString}}},
		Features: []*dataset.Feature{{
			FID:        1,
			Attributes: map[string]any{"v": nil},
			Geometry:   dataset.NewGeometry(orb.Point{0, 0}),
		}},
	})
	if v, ok := got.Features[0].Attributes["v"]; ok {
		t.Errorf("expected null attribute to be absent, got %v", v)
	}
}

func TestRoundTrip_Empty(t *testing.T) {
	got := roundTrip(t, &dataset.LayerData{
		Name:   "empty",
		Schema: dataset.Schema{Fields: []dataset.Field{{Name: "v", Type: dataset.FieldReal}}, SRID: 3857},
	})
	if len(got.Features) != 0 {
		t.Errorf("expected no features, got %d", len(got.Features))
	}
	if got.Schema.SRID != 3857 {
		t.Errorf("expected SRID 3857, got %d", got.Schema.SRID)
	}
}

func TestEncode_NilGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nil.fgb")
	err := New().Encode(path, []*dataset.LayerData{{
		Name:     "nil",
		Features: []*dataset.Feature{{FID: 1}},
	}})
	if !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestEncode_PropertyMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fgb")
	err := New().Encode(path, []*dataset.LayerData{{
		Name:   "bad",
		Schema: dataset.Schema{Fields: []dataset.Field{{Name: "n", Type: dataset.FieldInteger}}},
		Features: []*dataset.Feature{{
			FID:        1,
			Attributes: map[string]any{"n": "not a number"},
			Geometry:   dataset.NewGeometry(orb.Point{0, 0}),
		}},
	}})
	if !errors.Is(err, ErrPropertyMismatch) {
		t.Errorf("expected ErrPropertyMismatch, got %v", err)
	}
}

func TestReadValue_Truncated(t *testing.T) {
	if _, _, err := readValue([]byte{1, 2}, columnType(dataset.FieldReal)); err == nil {
		t.Error("expected error for truncated double")
	}
	if _, _, err := readValue([]byte{10, 0, 0, 0, 'a'}, columnType(dataset.FieldString)); err == nil {
		t.Error("expected error for truncated string")
	}
}
