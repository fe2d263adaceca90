package geoprep

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tingold/geoprep/dataset"
)

// mapFeatures applies fn to every feature on up to workers goroutines.
// The output keeps input order. The first error cancels the remaining work
// and is returned with the failing feature id; no partial result escapes.
func mapFeatures(workers int, in []*dataset.Feature, fn func(*dataset.Feature) (*dataset.Feature, error)) ([]*dataset.Feature, error) {
	out := make([]*dataset.Feature, len(in))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(workers, 1))
	for i, f := range in {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r, err := fn(f)
			if err != nil {
				return fmt.Errorf("feature %d: %w", f.FID, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
