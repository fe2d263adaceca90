package orbengine

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

var square = orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}

func TestProviderAlwaysAvailable(t *testing.T) {
	p := Provider()
	assert.Equal(t, Name, p.Name)
	assert.NoError(t, p.Available())

	r, err := engine.NewRegistry(p)
	require.NoError(t, err)
	e, err := r.Select(engine.Auto)
	require.NoError(t, err)
	assert.Equal(t, Name, e.Name())
}

func TestTransformMercatorRoundTrip(t *testing.T) {
	e := New()
	fwd, err := e.NewTransform(4326, 3857)
	require.NoError(t, err)
	defer fwd.Close()
	inv, err := e.NewTransform(3857, 4326)
	require.NoError(t, err)
	defer inv.Close()

	in := &dataset.Geometry{Shape: orb.LineString{{-117.16, 32.71}, {0, 0}}, Z: []float64{5, 6}}
	merc, err := fwd.Apply(in)
	require.NoError(t, err)
	ls := merc.Shape.(orb.LineString)
	assert.InDelta(t, -13042191.54, ls[0][0], 1)
	assert.InDelta(t, 0, ls[1][1], 1e-6)
	assert.Equal(t, []float64{5, 6}, merc.Z)

	back, err := inv.Apply(merc)
	require.NoError(t, err)
	got := back.Shape.(orb.LineString)
	assert.InDelta(t, -117.16, got[0][0], 1e-9)
	assert.InDelta(t, 32.71, got[0][1], 1e-9)
}

func TestTransformEquivalentDatums(t *testing.T) {
	tr, err := New().NewTransform(4269, 4326)
	require.NoError(t, err)
	g := dataset.NewGeometry(orb.Point{-100, 40})
	out, err := tr.Apply(g)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-100, 40}, out.Shape)
}

func TestTransformUnsupported(t *testing.T) {
	_, err := New().NewTransform(4326, 26911)
	assert.ErrorIs(t, err, engine.ErrUnsupportedCRS)
	_, err = New().NewTransform(2056, 4326)
	assert.ErrorIs(t, err, engine.ErrUnsupportedCRS)
	assert.True(t, ForEPSG(900913))
	assert.False(t, ForEPSG(26911))
}

func TestTransformNonFinite(t *testing.T) {
	tr, err := New().NewTransform(4326, 3857)
	require.NoError(t, err)
	_, err = tr.Apply(dataset.NewGeometry(orb.Point{math.NaN(), 10}))
	assert.ErrorIs(t, err, engine.ErrNonFiniteOrdinal)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		shape orb.Geometry
		valid bool
	}{
		{"square", square, true},
		{"bowtie", orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}, false},
		{"open ring", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}, false},
		{"flat ring", orb.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}, false},
		{"spike", orb.Polygon{{{0, 0}, {4, 0}, {2, 0}, {2, 2}, {0, 0}}}, false},
		{"line", orb.LineString{{0, 0}, {1, 1}}, true},
		{"degenerate line", orb.LineString{{1, 1}, {1, 1}}, false},
		{"nan point", orb.Point{math.NaN(), 0}, false},
		{"multipolygon", orb.MultiPolygon{square, square}, true},
		{"collection", orb.Collection{orb.Point{0, 0}, orb.LineString{{0, 0}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := New().IsValid(dataset.NewGeometry(tt.shape))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ok, invalidReason(tt.shape))
		})
	}

	ok, err := New().IsValid(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepair(t *testing.T) {
	e := New()

	open := &dataset.Geometry{
		Shape: orb.Polygon{{{0, 0}, {0, 0}, {10, 0}, {10, 10}, {0, 10}}},
		Z:     []float64{1, 1, 2, 3, 4},
	}
	fixed, err := e.Repair(open)
	require.NoError(t, err)
	assert.Equal(t, square, fixed.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 1}, fixed.Z)
	assert.NoError(t, fixed.Validate())
	ok, _ := e.IsValid(fixed)
	assert.True(t, ok)

	withHole := orb.Polygon{square[0], {{1, 1}, {2, 1}, {1, 1}}}
	fixed, err = e.Repair(dataset.NewGeometry(withHole))
	require.NoError(t, err)
	assert.Equal(t, square, fixed.Shape, "degenerate hole dropped")

	mls := orb.MultiLineString{{{0, 0}, {0, 0}}, {{0, 0}, {math.Inf(1), 1}, {1, 1}}}
	fixed, err = e.Repair(dataset.NewGeometry(mls))
	require.NoError(t, err)
	assert.Equal(t, orb.MultiLineString{{{0, 0}, {1, 1}}}, fixed.Shape)

	_, err = e.Repair(dataset.NewGeometry(orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}))
	assert.ErrorIs(t, err, engine.ErrNotRepairable)

	g, err := e.Repair(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestLengthAndEndpoints(t *testing.T) {
	e := New()
	g := dataset.NewGeometry(orb.MultiLineString{{{0, 0}, {3, 4}, {3, 10}}})

	l, err := e.Length(g)
	require.NoError(t, err)
	assert.InDelta(t, 11, l, 1e-12)

	first, err := e.FirstPoint(g)
	require.NoError(t, err)
	last, err := e.LastPoint(g)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{0, 0}, first)
	assert.Equal(t, orb.Point{3, 10}, last)

	_, err = e.Length(dataset.NewGeometry(square))
	assert.ErrorIs(t, err, engine.ErrNotLinear)
}

func TestTo2D(t *testing.T) {
	g := &dataset.Geometry{Shape: orb.Point{1, 2}, Z: []float64{3}, M: []float64{4}}
	out := New().To2D(g)
	assert.True(t, out.Is2D())
	assert.Equal(t, orb.Point{1, 2}, out.Shape)
}
