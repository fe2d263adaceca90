package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Store opens and creates datasets through a set of registered codecs.
// Access to each physical file is serialized with an advisory lock on a
// sidecar "<path>.lock" file: shared for read-only opens, exclusive for
// read-write opens and creates. The sidecar outlives Commit's rename of
// the data file, so the lock keeps holding across commits.
type Store struct {
	codecs []Codec
}

// NewStore returns a store dispatching on the given codecs.
func NewStore(codecs ...Codec) *Store {
	return &Store{codecs: codecs}
}

// Codecs returns the registered codecs.
func (s *Store) Codecs() []Codec {
	return append([]Codec(nil), s.codecs...)
}

// Codec returns the codec for h, by driver name when set, else by extension.
func (s *Store) Codec(h Handle) (Codec, error) {
	if h.Driver != "" {
		for _, c := range s.codecs {
			if strings.EqualFold(c.Name(), h.Driver) {
				return c, nil
			}
		}
		return nil, fmt.Errorf("%w: driver %q", ErrUnsupportedFormat, h.Driver)
	}
	ext := strings.ToLower(filepath.Ext(h.Path))
	for _, c := range s.codecs {
		for _, e := range c.Extensions() {
			if e == ext {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, h.Path)
}

// Resolve fills in the driver of h and checks that the dataset exists.
func (s *Store) Resolve(h Handle) (Handle, error) {
	c, err := s.Codec(h)
	if err != nil {
		return h, err
	}
	if _, err := os.Stat(h.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return h, fmt.Errorf("%w: %s", ErrNotFound, h.Path)
		}
		return h, err
	}
	h.Driver = c.Name()
	return h, nil
}

// Open decodes the dataset referenced by h.
func (s *Store) Open(h Handle, mode Mode) (*Dataset, error) {
	h, err := s.Resolve(h)
	if err != nil {
		return nil, err
	}
	codec, _ := s.Codec(h)

	lock := flock.New(LockPath(h.Path))
	if mode == ReadWrite {
		err = lock.Lock()
	} else {
		err = lock.RLock()
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: lock %s: %w", h.Path, err)
	}

	layers, err := codec.Decode(h.Path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("dataset: decode %s: %w", h.Path, err)
	}

	ds := &Dataset{handle: h, codec: codec, mode: mode, lock: lock}
	for _, data := range layers {
		ds.layers = append(ds.layers, newLayer(ds, data))
	}
	return ds, nil
}

// Create reserves path for a new, empty dataset. Nothing is written until
// Commit; closing an uncommitted new dataset removes the reservation.
func (s *Store) Create(path string) (*Dataset, error) {
	h := Path(path)
	codec, err := s.Codec(h)
	if err != nil {
		return nil, err
	}
	h.Driver = codec.Name()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("dataset: create %s: %w", path, err)
	}
	_ = f.Close()

	lock := flock.New(LockPath(path))
	if err := lock.Lock(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("dataset: lock %s: %w", path, err)
	}
	return &Dataset{handle: h, codec: codec, mode: ReadWrite, lock: lock, placeholder: true}, nil
}

// Dataset is an open dataset. It must be closed on every exit path.
type Dataset struct {
	handle      Handle
	codec       Codec
	mode        Mode
	layers      []*Layer
	lock        *flock.Flock
	placeholder bool // created by Store.Create and not yet committed
	closed      bool
}

// Handle returns the handle the dataset was opened or created with.
func (d *Dataset) Handle() Handle { return d.handle }

// Codec returns the codec backing the dataset.
func (d *Dataset) Codec() Codec { return d.codec }

// Layers returns the layers in file order.
func (d *Dataset) Layers() []*Layer {
	return append([]*Layer(nil), d.layers...)
}

// Layer looks up a layer by name.
func (d *Dataset) Layer(name string) (*Layer, bool) {
	for _, l := range d.layers {
		if l.name == name {
			return l, true
		}
	}
	return nil, false
}

// LayerNames lists the layer names in file order.
func (d *Dataset) LayerNames() []string {
	names := make([]string, len(d.layers))
	for i, l := range d.layers {
		names[i] = l.name
	}
	return names
}

// CreateLayer adds an empty layer. Single-layer formats accept only one.
func (d *Dataset) CreateLayer(name string, schema Schema) (*Layer, error) {
	if err := d.writable(); err != nil {
		return nil, err
	}
	if _, ok := d.Layer(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateLayer, name)
	}
	if len(d.layers) > 0 && !d.codec.MultiLayer() {
		return nil, fmt.Errorf("dataset: %s format holds a single layer", d.codec.Name())
	}
	l := newLayer(d, &LayerData{Name: name, Schema: schema})
	d.layers = append(d.layers, l)
	return l, nil
}

// Commit writes every layer to a temporary file next to the dataset and
// renames it over the dataset path.
func (d *Dataset) Commit() error {
	if err := d.writable(); err != nil {
		return err
	}
	dir := filepath.Dir(d.handle.Path)
	tmp, err := os.CreateTemp(dir, ".geoprep-*"+filepath.Ext(d.handle.Path))
	if err != nil {
		return fmt.Errorf("dataset: commit %s: %w", d.handle.Path, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	// Codecs that open the file themselves (sqlite) expect it not to exist.
	_ = os.Remove(tmpPath)

	layers := make([]*LayerData, len(d.layers))
	for i, l := range d.layers {
		layers[i] = l.data()
	}
	if err := d.codec.Encode(tmpPath, layers); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dataset: encode %s: %w", d.handle.Path, err)
	}
	if err := os.Rename(tmpPath, d.handle.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dataset: commit %s: %w", d.handle.Path, err)
	}
	d.placeholder = false
	return nil
}

// Close releases the file lock. Uncommitted changes are discarded and an
// uncommitted new dataset is removed. Close is idempotent.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	if d.placeholder {
		if err := os.Remove(d.handle.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := d.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dataset) writable() error {
	if d.closed {
		return ErrClosed
	}
	if d.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, d.handle.Path)
	}
	return nil
}

// OutputPath derives a sibling output path "<stem><suffix><ext>" inside dir
// (the source directory when dir is empty). When the name is taken, "_1",
// "_2", ... are appended until a free name is found.
func OutputPath(src Handle, suffix, dir string) string {
	if dir == "" {
		dir = filepath.Dir(src.Path)
	}
	ext := filepath.Ext(src.Path)
	base := src.Stem() + suffix
	candidate := filepath.Join(dir, base+ext)
	for i := 1; exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return candidate
}

// LayerOutputName derives a managed layer name "<name><suffix>" that does
// not collide with any layer already in d.
func LayerOutputName(d *Dataset, name, suffix string) string {
	base := name + suffix
	candidate := base
	for i := 1; ; i++ {
		if _, taken := d.Layer(candidate); !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

// LockPath returns the sidecar file that serializes access to path.
func LockPath(path string) string {
	return path + ".lock"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
