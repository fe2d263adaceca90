package geoprep

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geoprep/dataset"
)

func features(n int) []*dataset.Feature {
	out := make([]*dataset.Feature, n)
	for i := range out {
		out[i] = &dataset.Feature{FID: int64(i + 1)}
	}
	return out
}

func TestMapFeaturesKeepsOrder(t *testing.T) {
	var running, peak atomic.Int64
	out, err := mapFeatures(3, features(50), func(f *dataset.Feature) (*dataset.Feature, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer running.Add(-1)
		return &dataset.Feature{FID: f.FID * 10}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 50)
	for i, f := range out {
		assert.Equal(t, int64(i+1)*10, f.FID)
	}
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestMapFeaturesFailure(t *testing.T) {
	boom := errors.New("boom")
	out, err := mapFeatures(4, features(20), func(f *dataset.Feature) (*dataset.Feature, error) {
		if f.FID == 7 {
			return nil, boom
		}
		return f, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "feature 7")
	assert.Nil(t, out)
}

func TestMapFeaturesEmpty(t *testing.T) {
	out, err := mapFeatures(0, nil, func(f *dataset.Feature) (*dataset.Feature, error) {
		t.Fatal("not called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}
