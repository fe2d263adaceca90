package geoprep

import (
	"fmt"

	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// sinuosityTolerance is how far below 1 a value may fall before it is
// reported as an engine inconsistency.
const sinuosityTolerance = 1e-9

// Sinuosity returns the ratio of path length to the straight-line distance
// between the endpoints. Coincident endpoints give 1.
func Sinuosity(length, distance float64) float64 {
	if distance == 0 {
		return 1
	}
	return length / distance
}

// CalculateSinuosity writes the sinuosity of every single-line feature
// (a non-empty LineString or one-part MultiLineString) of h to field,
// creating it as a real field when absent. Other and null geometries are
// skipped and keep whatever value they had. The dataset is always modified in place
// and h is returned. An empty field name selects "sinuosity".
func (p *Pipeline) CalculateSinuosity(h dataset.Handle, field string) (dataset.Handle, error) {
	const op = OpCalculateSinuosity
	if field == "" {
		field = DefaultSinuosityField
	}
	p.log.Debug("Calculating sinuosity", zap.String("path", h.Path), zap.String("field", field))

	ds, err := p.open(op, h, dataset.ReadWrite)
	if err != nil {
		return h, err
	}
	defer ds.Close()

	layers := ds.Layers()
	for _, l := range layers {
		if i := l.Schema().FieldIndex(field); i >= 0 {
			if t := l.Fields()[i].Type; t != dataset.FieldReal {
				return h, opError(op, h.Path, ErrInvalidConfiguration,
					fmt.Errorf("layer %q: field %q is %s, not real", l.Name(), field, t))
			}
		}
	}

	results := make([]*dataset.LayerData, len(layers))
	computed, skipped := 0, 0
	for i, l := range layers {
		if l.Schema().FieldIndex(field) < 0 {
			if err := l.CreateField(dataset.Field{Name: field, Type: dataset.FieldReal}); err != nil {
				return h, opError(op, h.Path, ErrInvalidConfiguration, err)
			}
		}
		in := l.Features().Collect()
		features, err := mapFeatures(p.cfg.Workers, in, func(f *dataset.Feature) (*dataset.Feature, error) {
			if !singleLine(f.Geometry) {
				return f, nil
			}
			v, err := p.sinuosity(f.Geometry)
			if err != nil {
				return nil, err
			}
			if v < 1-sinuosityTolerance {
				p.log.Warn("Sinuosity below 1",
					zap.String("layer", l.Name()), zap.Int64("fid", f.FID), zap.Float64("sinuosity", v))
			}
			if f.Attributes == nil {
				f.Attributes = make(map[string]any, 1)
			}
			f.Attributes[field] = v
			return f, nil
		})
		if err != nil {
			return h, opError(op, h.Path, ErrSinuosityFailed, fmt.Errorf("layer %q: %w", l.Name(), err))
		}
		for _, f := range in {
			if singleLine(f.Geometry) {
				computed++
			} else {
				skipped++
			}
		}
		results[i] = &dataset.LayerData{Name: l.Name(), Schema: l.Schema(), Features: features}
	}

	if err := replaceLayers(ds, results); err != nil {
		return h, opError(op, h.Path, ErrDatasetWriteFailed, err)
	}
	p.log.Info("Sinuosity calculated",
		zap.String("path", h.Path),
		zap.String("field", field),
		zap.Int("computed", computed),
		zap.Int("skipped", skipped))
	return h, nil
}

func singleLine(g *dataset.Geometry) bool {
	ls, ok := engine.Line(g)
	return ok && len(ls) > 0
}

func (p *Pipeline) sinuosity(g *dataset.Geometry) (float64, error) {
	length, err := p.engine.Length(g)
	if err != nil {
		return 0, err
	}
	first, err := p.engine.FirstPoint(g)
	if err != nil {
		return 0, err
	}
	last, err := p.engine.LastPoint(g)
	if err != nil {
		return 0, err
	}
	return Sinuosity(length, planar.Distance(first, last)), nil
}
