package geoprep

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
)

// Ensure2D drops the Z and M ordinates of every geometry in h, keeping
// geometry types, fields and attribute values. The result is written in
// place or to "<stem>_2d<ext>".
func (p *Pipeline) Ensure2D(h dataset.Handle, inPlace bool) (dataset.Handle, error) {
	const op = OpEnsure2D
	p.log.Debug("Enforcing 2D geometry", zap.String("path", h.Path), zap.Bool("in_place", inPlace))

	ds, err := p.openFor(op, h, inPlace)
	if err != nil {
		return h, err
	}
	defer ds.Close()

	layers := ds.Layers()
	results := make([]*dataset.LayerData, len(layers))
	flattened := 0
	for i, l := range layers {
		in := l.Features().Collect()
		for _, f := range in {
			if !f.Geometry.Is2D() {
				flattened++
			}
		}
		features, err := mapFeatures(p.cfg.Workers, in, func(f *dataset.Feature) (*dataset.Feature, error) {
			f.Geometry = p.engine.To2D(f.Geometry)
			return f, nil
		})
		if err != nil {
			return h, opError(op, h.Path, ErrDatasetWriteFailed, fmt.Errorf("layer %q: %w", l.Name(), err))
		}
		results[i] = &dataset.LayerData{Name: l.Name(), Schema: l.Schema(), Features: features}
	}

	out, err := p.commit(ds, results, inPlace, Suffix2D)
	if err != nil {
		return h, opError(op, h.Path, ErrDatasetWriteFailed, err)
	}
	p.log.Info("Geometry forced to 2D",
		zap.String("path", h.Path),
		zap.String("output", out.Path),
		zap.Int("flattened", flattened))
	return out, nil
}
