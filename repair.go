package geoprep

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
)

// RepairStats counts what RepairGeometry did.
type RepairStats struct {
	Valid    int64 // Features already valid
	Repaired int64 // Features replaced by the engine's repair
	Null     int64 // Features without geometry
}

// RepairGeometry replaces every invalid geometry in h with the engine's
// repair of it. Null geometries are left alone and counted. The result is
// written in place or to "<stem>_repaired<ext>"; a geometry the engine
// cannot repair aborts the operation before anything is written. In place,
// only the repaired features are written back, by FID.
func (p *Pipeline) RepairGeometry(h dataset.Handle, inPlace bool) (dataset.Handle, error) {
	out, _, err := p.repairGeometry(h, inPlace)
	return out, err
}

func (p *Pipeline) repairGeometry(h dataset.Handle, inPlace bool) (dataset.Handle, RepairStats, error) {
	const op = OpRepairGeometry
	var stats RepairStats
	p.log.Debug("Repairing geometry", zap.String("path", h.Path), zap.Bool("in_place", inPlace))

	ds, err := p.openFor(op, h, inPlace)
	if err != nil {
		return h, stats, err
	}
	defer ds.Close()

	var valid, repaired, null atomic.Int64
	layers := ds.Layers()
	results := make([]*dataset.LayerData, len(layers))
	fixes := make([][]*dataset.Feature, len(layers))
	for i, l := range layers {
		var mu sync.Mutex
		features, err := mapFeatures(p.cfg.Workers, l.Features().Collect(), func(f *dataset.Feature) (*dataset.Feature, error) {
			if f.Geometry == nil || f.Geometry.Shape == nil {
				null.Add(1)
				return f, nil
			}
			ok, err := p.engine.IsValid(f.Geometry)
			if err != nil {
				return nil, err
			}
			if ok {
				valid.Add(1)
				return f, nil
			}
			g, err := p.engine.Repair(f.Geometry)
			if err != nil {
				return nil, err
			}
			repaired.Add(1)
			f.Geometry = g
			mu.Lock()
			fixes[i] = append(fixes[i], f)
			mu.Unlock()
			return f, nil
		})
		if err != nil {
			return h, stats, opError(op, h.Path, ErrGeometryRepairFailed, fmt.Errorf("layer %q: %w", l.Name(), err))
		}
		schema := l.Schema()
		schema.GeometryType = layerGeometryType(schema.GeometryType, features)
		results[i] = &dataset.LayerData{Name: l.Name(), Schema: schema, Features: features}
	}
	stats = RepairStats{Valid: valid.Load(), Repaired: repaired.Load(), Null: null.Load()}

	var out dataset.Handle
	if inPlace {
		out, err = ds.Handle(), updateLayers(ds, results, fixes)
	} else {
		out, err = p.writeOutput(ds.Handle(), SuffixRepaired, results)
	}
	if err != nil {
		return h, stats, opError(op, h.Path, ErrDatasetWriteFailed, err)
	}
	p.log.Info("Geometry repaired",
		zap.String("path", h.Path),
		zap.String("output", out.Path),
		zap.Int64("repaired", stats.Repaired),
		zap.Int64("valid", stats.Valid),
		zap.Int64("null", stats.Null))
	return out, stats, nil
}

func (p *Pipeline) openFor(op string, h dataset.Handle, inPlace bool) (*dataset.Dataset, error) {
	if inPlace {
		return p.open(op, h, dataset.ReadWrite)
	}
	return p.open(op, h, dataset.ReadOnly)
}

// commit writes layers back into ds when inPlace is set and to a new
// "<stem><suffix><ext>" dataset otherwise.
func (p *Pipeline) commit(ds *dataset.Dataset, layers []*dataset.LayerData, inPlace bool, suffix string) (dataset.Handle, error) {
	if inPlace {
		if err := replaceLayers(ds, layers); err != nil {
			return dataset.Handle{}, err
		}
		return ds.Handle(), nil
	}
	return p.writeOutput(ds.Handle(), suffix, layers)
}

// updateLayers writes fixes back into ds by FID and commits. A layer whose
// declared geometry type changed is replaced whole.
func updateLayers(ds *dataset.Dataset, layers []*dataset.LayerData, fixes [][]*dataset.Feature) error {
	for i, l := range ds.Layers() {
		if l.Schema().GeometryType != layers[i].Schema.GeometryType {
			if err := l.Replace(layers[i].Schema, layers[i].Features); err != nil {
				return err
			}
			continue
		}
		for _, f := range fixes[i] {
			if err := l.Update(f); err != nil {
				return err
			}
		}
	}
	return ds.Commit()
}

// layerGeometryType returns the declared type of a layer after its
// features changed: unchanged while every feature still matches it.
func layerGeometryType(declared string, features []*dataset.Feature) string {
	if declared == "Unknown" {
		return declared
	}
	for _, f := range features {
		if t := f.Geometry.Type(); t != "" && t != declared {
			return dataset.GeometryTypeOf(features)
		}
	}
	return declared
}
