// Package geoprep preprocesses vector datasets through a set of
// independent steps: field-name cleaning, projection standardization,
// geometry repair, 2D enforcement and sinuosity computation.
//
// A Pipeline binds one geometry engine at construction and delegates every
// operation to it for its lifetime:
//
//	p, err := geoprep.New(geoprep.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	h, err := p.CleanFieldNames(dataset.Path("roads.geojson"))
//	h, err = p.StandardizeProjection(h, "WGS84", false)
package geoprep

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
	"github.com/tingold/geoprep/dataset/flatgeobuf"
	"github.com/tingold/geoprep/dataset/geojson"
	"github.com/tingold/geoprep/dataset/gpkg"
	"github.com/tingold/geoprep/engine"
	"github.com/tingold/geoprep/engine/geosengine"
	"github.com/tingold/geoprep/engine/orbengine"
	"github.com/tingold/geoprep/region"
)

// Operation names used in errors and log entries.
const (
	OpNew                   = "new"
	OpCleanFieldNames       = "clean_field_names"
	OpStandardizeProjection = "standardize_projection"
	OpRepairGeometry        = "repair_geometry"
	OpEnsure2D              = "ensure_2d_geometry"
	OpCalculateSinuosity    = "calculate_sinuosity"
)

// Output suffixes of non-destructive operations.
const (
	SuffixReprojected = "_reprojected"
	SuffixRepaired    = "_repaired"
	Suffix2D          = "_2d"
)

// DefaultSinuosityField is the field written by CalculateSinuosity when no
// name is given.
const DefaultSinuosityField = "sinuosity"

// Pipeline runs preprocessing operations with one engine.
type Pipeline struct {
	cfg     Config
	engine  engine.Engine
	store   *dataset.Store
	regions *region.Registry
	log     *zap.Logger
}

type options struct {
	logger  *zap.Logger
	engines *engine.Registry
	store   *dataset.Store
	regions *region.Registry
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEngines replaces the engine registry.
func WithEngines(r *engine.Registry) Option {
	return func(o *options) { o.engines = r }
}

// WithStore replaces the dataset store.
func WithStore(s *dataset.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRegions replaces the region registry.
func WithRegions(r *region.Registry) Option {
	return func(o *options) { o.regions = r }
}

// DefaultEngines returns the engine registry in preference order: geos,
// then orb.
func DefaultEngines() *engine.Registry {
	r, err := engine.NewRegistry(geosengine.Provider(), orbengine.Provider())
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultStore returns a store reading and writing GeoJSON, FlatGeobuf and
// GeoPackage.
func DefaultStore() *dataset.Store {
	return dataset.NewStore(geojson.New(), flatgeobuf.New(), gpkg.New())
}

// New validates cfg, loads the region registry and selects the engine
// named by cfg.Engine. The engine is fixed for the pipeline's lifetime.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.engines == nil {
		o.engines = DefaultEngines()
	}
	if o.store == nil {
		o.store = DefaultStore()
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, opError(OpNew, "", ErrInvalidConfiguration, err)
	}

	if o.regions == nil {
		var err error
		if cfg.RegionsFile != "" {
			o.regions, err = region.Load(cfg.RegionsFile)
		} else {
			o.regions, err = region.Default()
		}
		if err != nil {
			return nil, classify(OpNew, cfg.RegionsFile, ErrRegistryUnavailable, err)
		}
	}

	eng, err := o.engines.Select(cfg.Engine)
	if err != nil {
		return nil, classify(OpNew, "", ErrEngineNotFound, err)
	}

	p := &Pipeline{
		cfg:     cfg,
		engine:  eng,
		store:   o.store,
		regions: o.regions,
		log:     o.logger.With(zap.String("engine", eng.Name())),
	}
	p.log.Info("Engine selected", zap.String("requested", cfg.Engine), zap.Int("workers", cfg.Workers))
	return p, nil
}

// Engine returns the name of the bound engine.
func (p *Pipeline) Engine() string { return p.engine.Name() }

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Regions returns the region registry.
func (p *Pipeline) Regions() *region.Registry { return p.regions }

// outputDir is the per-engine output namespace, or "" to write next to
// the source.
func (p *Pipeline) outputDir() string {
	if p.cfg.Workspace == "" {
		return ""
	}
	return filepath.Join(p.cfg.Workspace, p.engine.Name())
}

func (p *Pipeline) open(op string, h dataset.Handle, mode dataset.Mode) (*dataset.Dataset, error) {
	ds, err := p.store.Open(h, mode)
	if err != nil {
		return nil, classify(op, h.Path, ErrDatasetNotFound, err)
	}
	return ds, nil
}

// writeOutput creates a new dataset "<stem><suffix><ext>" holding layers.
func (p *Pipeline) writeOutput(src dataset.Handle, suffix string, layers []*dataset.LayerData) (dataset.Handle, error) {
	out, err := p.store.Create(dataset.OutputPath(src, suffix, p.outputDir()))
	if err != nil {
		return dataset.Handle{}, err
	}
	defer out.Close()

	for _, ld := range layers {
		l, err := out.CreateLayer(ld.Name, ld.Schema)
		if err != nil {
			return dataset.Handle{}, err
		}
		if err := l.Replace(ld.Schema, ld.Features); err != nil {
			return dataset.Handle{}, err
		}
	}
	if err := out.Commit(); err != nil {
		return dataset.Handle{}, err
	}
	return out.Handle(), nil
}

// replaceLayers swaps the content of every layer of ds for the matching
// entry of layers and commits.
func replaceLayers(ds *dataset.Dataset, layers []*dataset.LayerData) error {
	for i, l := range ds.Layers() {
		if err := l.Replace(layers[i].Schema, layers[i].Features); err != nil {
			return err
		}
	}
	return ds.Commit()
}
