package geoprep

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
	"github.com/tingold/geoprep/engine/orbengine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mercatorCRS = `"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},`

// writeFixture writes body to name in a fresh temp dir.
func writeFixture(t *testing.T, name, body string) dataset.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dataset.Path(path)
}

// newTestPipeline builds a pipeline on the orb engine, recording warnings
// and above.
func newTestPipeline(t *testing.T, cfg Config, opts ...Option) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	opts = append([]Option{WithLogger(zap.New(core))}, opts...)
	p, err := New(cfg.Override(WithEngine(orbengine.Name)), opts...)
	require.NoError(t, err)
	return p, logs
}

// writeGeoPackage writes one single-point layer per entry, in EPSG:3857.
func writeGeoPackage(t *testing.T, layers map[string][]dataset.Field) dataset.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.gpkg")
	ds, err := DefaultStore().Create(path)
	require.NoError(t, err)
	defer ds.Close()

	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields := layers[name]
		l, err := ds.CreateLayer(name, dataset.Schema{Fields: fields, GeometryType: "Point", SRID: 3857})
		require.NoError(t, err)
		attrs := make(map[string]any, len(fields))
		for _, f := range fields {
			switch f.Type {
			case dataset.FieldInteger:
				attrs[f.Name] = int64(1)
			case dataset.FieldReal:
				attrs[f.Name] = 1.5
			default:
				attrs[f.Name] = "x"
			}
		}
		require.NoError(t, l.Append(&dataset.Feature{Attributes: attrs, Geometry: dataset.NewGeometry(orb.Point{1000, 2000})}))
	}
	require.NoError(t, ds.Commit())
	return dataset.Path(path)
}

func readLayers(t *testing.T, h dataset.Handle) []*dataset.LayerData {
	t.Helper()
	ds, err := DefaultStore().Open(h, dataset.ReadOnly)
	require.NoError(t, err)
	defer ds.Close()
	var out []*dataset.LayerData
	for _, l := range ds.Layers() {
		out = append(out, &dataset.LayerData{Name: l.Name(), Schema: l.Schema(), Features: l.Features().Collect()})
	}
	return out
}

// stubEngine wraps the orb engine and lets tests replace single methods.
type stubEngine struct {
	orbengine.Engine
	transform func(g *dataset.Geometry) (*dataset.Geometry, error)
	length    func(g *dataset.Geometry) (float64, error)
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) NewTransform(src, dst int) (engine.Transform, error) {
	if e.transform == nil {
		return e.Engine.NewTransform(src, dst)
	}
	return stubTransform(e.transform), nil
}

func (e *stubEngine) Length(g *dataset.Geometry) (float64, error) {
	if e.length == nil {
		return e.Engine.Length(g)
	}
	return e.length(g)
}

type stubTransform func(g *dataset.Geometry) (*dataset.Geometry, error)

func (f stubTransform) Apply(g *dataset.Geometry) (*dataset.Geometry, error) { return f(g) }
func (stubTransform) Close() error                                          { return nil }

func withStubEngine(t *testing.T, e *stubEngine) Option {
	t.Helper()
	r, err := engine.NewRegistry(engine.Provider{
		Name: orbengine.Name,
		New:  func() (engine.Engine, error) { return e, nil },
	})
	require.NoError(t, err)
	return WithEngines(r)
}
