package geoprep

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/engine"
)

// StandardizeProjection transforms every layer of h into the coordinate
// system named by target, a region name or an EPSG code.
//
// A layer without a spatial reference is assumed to already be in the
// target system; a warning is logged and its coordinates are kept.
//
// Unless inPlace is set the result is written to a new dataset
// "<stem>_reprojected<ext>", inside <workspace>/<engine> when a workspace
// is configured, and its handle is returned. In place, single-layer formats
// have their layer replaced and multi-layer formats get a new layer
// "<layer>_reprojected" next to each source layer. Nothing is written
// unless every feature transforms.
func (p *Pipeline) StandardizeProjection(h dataset.Handle, target string, inPlace bool) (dataset.Handle, error) {
	const op = OpStandardizeProjection

	code, err := p.regions.Resolve(target)
	if err != nil {
		return h, classify(op, h.Path, ErrUnknownRegion, err)
	}
	p.log.Debug("Standardizing projection",
		zap.String("path", h.Path), zap.String("target", target), zap.Int("epsg", code), zap.Bool("in_place", inPlace))

	mode := dataset.ReadOnly
	if inPlace {
		mode = dataset.ReadWrite
	}
	ds, err := p.open(op, h, mode)
	if err != nil {
		return h, err
	}
	defer ds.Close()

	layers := ds.Layers()
	results := make([]*dataset.LayerData, len(layers))
	features := 0
	for i, l := range layers {
		ld, err := p.reprojectLayer(h, l, code)
		if err != nil {
			return h, err
		}
		results[i] = ld
		features += len(ld.Features)
	}

	var out dataset.Handle
	switch {
	case !inPlace:
		out, err = p.writeOutput(ds.Handle(), SuffixReprojected, results)
	case ds.Codec().MultiLayer():
		err = addLayers(ds, results, SuffixReprojected)
		out = h
	default:
		err = replaceLayers(ds, results)
		out = h
	}
	if err != nil {
		return h, opError(op, h.Path, ErrDatasetWriteFailed, err)
	}

	p.log.Info("Projection standardized",
		zap.String("path", h.Path),
		zap.String("output", out.Path),
		zap.Int("epsg", code),
		zap.Int("layers", len(results)),
		zap.Int("features", features))
	return out, nil
}

func (p *Pipeline) reprojectLayer(h dataset.Handle, l *dataset.Layer, code int) (*dataset.LayerData, error) {
	const op = OpStandardizeProjection

	schema := l.Schema()
	src := schema.SRID
	if src == 0 {
		p.log.Warn("Layer has no spatial reference, assuming target system",
			zap.String("path", h.Path), zap.String("layer", l.Name()), zap.Int("epsg", code))
		src = code
	}

	var apply func(*dataset.Geometry) (*dataset.Geometry, error)
	if src == code {
		apply = func(g *dataset.Geometry) (*dataset.Geometry, error) { return g, nil }
	} else {
		tr, err := p.engine.NewTransform(src, code)
		if err != nil {
			if errors.Is(err, engine.ErrUnsupportedCRS) {
				return nil, opError(op, h.Path, ErrUnknownRegion, fmt.Errorf("layer %q: %w", l.Name(), err))
			}
			return nil, opError(op, h.Path, ErrProjectionFailed, fmt.Errorf("layer %q: %w", l.Name(), err))
		}
		defer tr.Close()
		apply = tr.Apply
	}

	features, err := mapFeatures(p.cfg.Workers, l.Features().Collect(), func(f *dataset.Feature) (*dataset.Feature, error) {
		if f.Geometry == nil {
			return f, nil
		}
		g, err := apply(f.Geometry)
		if err != nil {
			return nil, err
		}
		f.Geometry = g
		return f, nil
	})
	if err != nil {
		return nil, opError(op, h.Path, ErrProjectionFailed, fmt.Errorf("layer %q: %w", l.Name(), err))
	}

	schema.SRID = code
	return &dataset.LayerData{Name: l.Name(), Schema: schema, Features: features}, nil
}

// addLayers appends each layer under a managed name derived from its own
// and commits.
func addLayers(ds *dataset.Dataset, layers []*dataset.LayerData, suffix string) error {
	for _, ld := range layers {
		l, err := ds.CreateLayer(dataset.LayerOutputName(ds, ld.Name, suffix), ld.Schema)
		if err != nil {
			return err
		}
		if err := l.Replace(ld.Schema, ld.Features); err != nil {
			return err
		}
	}
	return ds.Commit()
}
