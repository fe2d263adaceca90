package geoprep

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
	"github.com/tingold/geoprep/engine/geosengine"
	"github.com/tingold/geoprep/engine/orbengine"
	"github.com/tingold/geoprep/region"
)

func TestNewAutoSelectsAvailableEngine(t *testing.T) {
	r, err := engine.NewRegistry(
		engine.Provider{Name: "missing", Probe: func() error { return errors.New("library not installed") }},
		orbengine.Provider(),
	)
	require.NoError(t, err)

	p, err := New(DefaultConfig(), WithEngines(r))
	require.NoError(t, err)
	assert.Equal(t, orbengine.Name, p.Engine())
}

func TestNewAutoWithNoEngine(t *testing.T) {
	r, err := engine.NewRegistry(
		engine.Provider{Name: "missing", Probe: func() error { return errors.New("library not installed") }},
	)
	require.NoError(t, err)

	p, err := New(DefaultConfig(), WithEngines(r))
	require.ErrorIs(t, err, ErrEngineNotFound)
	assert.Nil(t, p)

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, OpNew, oe.Op)
}

func TestNewNamedEngineNeverFallsBack(t *testing.T) {
	r, err := engine.NewRegistry(
		engine.Provider{Name: "missing", Probe: func() error { return errors.New("library not installed") }},
		orbengine.Provider(),
	)
	require.NoError(t, err)

	_, err = New(DefaultConfig().Override(WithEngine("missing")), WithEngines(r))
	assert.ErrorIs(t, err, ErrEngineNotFound)

	_, err = New(DefaultConfig().Override(WithEngine("nonexistent")), WithEngines(r))
	assert.ErrorIs(t, err, ErrEngineNotFound)

	p, err := New(DefaultConfig().Override(WithEngine("ORB")), WithEngines(r))
	require.NoError(t, err)
	assert.Equal(t, orbengine.Name, p.Engine())
}

func TestDefaultEngines(t *testing.T) {
	r := DefaultEngines()
	assert.Equal(t, []string{geosengine.Name, orbengine.Name}, r.Names())

	p, err := New(DefaultConfig())
	require.NoError(t, err)
	if r.Status()[geosengine.Name] != nil {
		assert.Equal(t, orbengine.Name, p.Engine())
	} else {
		assert.Equal(t, geosengine.Name, p.Engine())
	}
}

func TestNewInvalidConfiguration(t *testing.T) {
	_, err := New(DefaultConfig().Override(WithWorkers(0)))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = New(DefaultConfig().Override(WithLogLevel("chatty")))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewRegionsFile(t *testing.T) {
	dir := t.TempDir()
	_, err := New(DefaultConfig().Override(WithRegionsFile(filepath.Join(dir, "none.yaml"))))
	assert.ErrorIs(t, err, ErrRegistryUnavailable)

	path := filepath.Join(dir, "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HOME:\n  epsg: 3857\n"), 0o644))
	p, err := New(DefaultConfig().Override(WithRegionsFile(path), WithEngine("orb")))
	require.NoError(t, err)

	h := writeFixture(t, "routes.geojson", namingFixture)
	out, err := p.StandardizeProjection(h, "home", false)
	require.NoError(t, err)
	assert.Equal(t, 3857, readLayers(t, out)[0].Schema.SRID)

	_, err = p.StandardizeProjection(h, "WGS84", false)
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestWithRegions(t *testing.T) {
	r, err := region.Parse([]byte("LOCAL:\n  epsg: 4326\n"))
	require.NoError(t, err)
	p, _ := newTestPipeline(t, DefaultConfig(), WithRegions(r))
	assert.Same(t, r, p.Regions())
}

func TestRun(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	h := writeFixture(t, "routes.geojson", namingFixture)

	out, err := p.Run(h,
		CleanStep(),
		ReprojectStep("WGS84", false),
		To2DStep(true),
		RepairStep(true),
		SinuosityStep("twist"),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(h.Path), "routes_reprojected.geojson"), out.Path)

	layers := readLayers(t, out)
	assert.Equal(t, 4326, layers[0].Schema.SRID)
	assert.Equal(t, []string{"OBJECTID", "route_name", "length_mi", "twist"}, layers[0].Schema.FieldNames())
	for _, f := range layers[0].Features {
		assert.InDelta(t, 1, f.Attributes["twist"], 1e-9)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	h := writeFixture(t, "routes.geojson", namingFixture)

	out, err := p.Run(h, ReprojectStep("ATLANTIS", false), SinuosityStep(""))
	require.ErrorIs(t, err, ErrUnknownRegion)
	assert.Equal(t, h, out)
	assert.NotContains(t, readLayers(t, h)[0].Schema.FieldNames(), DefaultSinuosityField)
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"clean", "clean", false},
		{"clean:OBJECTID,Name", "clean", false},
		{"reproject:WGS84", "reproject:WGS84", false},
		{"REPAIR", "repair", false},
		{"to2d", "to2d", false},
		{"sinuosity:twist", "sinuosity", false},
		{"reproject", "", true},
		{"buffer:10", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, err := ParseStep(tt.in, false)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestOutputDir(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	assert.Empty(t, p.outputDir())

	p, _ = newTestPipeline(t, DefaultConfig().Override(WithWorkspace("/data/out")))
	assert.Equal(t, filepath.Join("/data/out", "orb"), p.outputDir())
	assert.Equal(t, "/data/out", p.Config().Workspace)
}

func TestHandleOpenableAfterEveryOperation(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	for _, name := range []string{"routes.geojson", "routes.fgb", "routes.gpkg"} {
		t.Run(name, func(t *testing.T) {
			src := writeFixture(t, "routes.geojson", namingFixture)
			h := dataset.Path(filepath.Join(filepath.Dir(src.Path), "copy-"+name))
			copyDataset(t, src, h)

			for _, step := range []Step{CleanStep(), ReprojectStep("WGS84", false), RepairStep(false), To2DStep(false), SinuosityStep("")} {
				next, err := step.Fn(p, h)
				require.NoError(t, err, step.Name)
				layers := readLayers(t, next)
				require.Len(t, layers, 1)
				assert.Len(t, layers[0].Features, 2)
				h = next
			}
		})
	}
}

// copyDataset rewrites src into dst, which may use another format.
func copyDataset(t *testing.T, src, dst dataset.Handle) {
	t.Helper()
	store := DefaultStore()
	in, err := store.Open(src, dataset.ReadOnly)
	require.NoError(t, err)
	defer in.Close()
	out, err := store.Create(dst.Path)
	require.NoError(t, err)
	defer out.Close()
	for _, l := range in.Layers() {
		nl, err := out.CreateLayer(l.Name(), l.Schema())
		require.NoError(t, err)
		require.NoError(t, nl.Replace(l.Schema(), l.Features().Collect()))
	}
	require.NoError(t, out.Commit())
}
