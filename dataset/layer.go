package dataset

import "fmt"

// Layer is a homogeneous feature collection with a fixed field schema.
type Layer struct {
	name     string
	schema   Schema
	features []*Feature
	nextFID  int64
	ds       *Dataset
}

func newLayer(ds *Dataset, data *LayerData) *Layer {
	l := &Layer{
		name:     data.Name,
		schema:   data.Schema.Clone(),
		features: data.Features,
		nextFID:  1,
		ds:       ds,
	}
	for _, f := range l.features {
		if f.FID >= l.nextFID {
			l.nextFID = f.FID + 1
		}
	}
	return l
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Schema returns a copy of the layer schema.
func (l *Layer) Schema() Schema { return l.schema.Clone() }

// Fields returns a copy of the field list.
func (l *Layer) Fields() []Field { return l.schema.Clone().Fields }

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.features) }

// CreateField appends a field to the schema. Existing features get a null value.
func (l *Layer) CreateField(f Field) error {
	if err := l.ds.writable(); err != nil {
		return err
	}
	if l.schema.FieldIndex(f.Name) >= 0 {
		return fmt.Errorf("%w: %q in layer %q", ErrDuplicateField, f.Name, l.name)
	}
	l.schema.Fields = append(l.schema.Fields, f)
	return nil
}

// RenameFields applies mapping (old name to new name) as one batch. The
// whole mapping is validated before any field or feature is touched, so
// either every rename is applied or none is.
func (l *Layer) RenameFields(mapping map[string]string) error {
	if err := l.ds.writable(); err != nil {
		return err
	}
	if len(mapping) == 0 {
		return nil
	}

	final := make(map[string]string, len(l.schema.Fields))
	for old := range mapping {
		if l.schema.FieldIndex(old) < 0 {
			return fmt.Errorf("%w: %q in layer %q", ErrNoSuchField, old, l.name)
		}
	}
	for _, f := range l.schema.Fields {
		name := f.Name
		if to, ok := mapping[name]; ok {
			name = to
		}
		if prev, dup := final[name]; dup {
			return fmt.Errorf("%w: %q and %q both map to %q in layer %q",
				ErrDuplicateField, prev, f.Name, name, l.name)
		}
		final[name] = f.Name
	}

	for i, f := range l.schema.Fields {
		if to, ok := mapping[f.Name]; ok {
			l.schema.Fields[i].Name = to
		}
	}
	for _, feat := range l.features {
		if feat.Attributes == nil {
			continue
		}
		renamed := make(map[string]any, len(feat.Attributes))
		for k, v := range feat.Attributes {
			if to, ok := mapping[k]; ok {
				k = to
			}
			renamed[k] = v
		}
		feat.Attributes = renamed
	}
	return nil
}

// Features returns a single-pass iterator over the layer's features. The
// iterator yields copies, so callers may mutate what they receive.
func (l *Layer) Features() *FeatureIterator {
	return &FeatureIterator{features: l.features}
}

// Append adds a feature, assigning a new FID.
func (l *Layer) Append(f *Feature) error {
	if err := l.ds.writable(); err != nil {
		return err
	}
	c := f.Clone()
	c.FID = l.nextFID
	l.nextFID++
	l.features = append(l.features, c)
	return nil
}

// Update replaces the stored feature with the same FID.
func (l *Layer) Update(f *Feature) error {
	if err := l.ds.writable(); err != nil {
		return err
	}
	for i, cur := range l.features {
		if cur.FID == f.FID {
			l.features[i] = f.Clone()
			return nil
		}
	}
	return fmt.Errorf("%w: fid %d in layer %q", ErrNoSuchFeature, f.FID, l.name)
}

// Replace swaps the layer content for a new schema and feature set,
// keeping feature ids as given.
func (l *Layer) Replace(schema Schema, features []*Feature) error {
	if err := l.ds.writable(); err != nil {
		return err
	}
	l.schema = schema.Clone()
	l.features = make([]*Feature, len(features))
	l.nextFID = 1
	for i, f := range features {
		l.features[i] = f.Clone()
		if f.FID >= l.nextFID {
			l.nextFID = f.FID + 1
		}
	}
	return nil
}

func (l *Layer) data() *LayerData {
	return &LayerData{Name: l.name, Schema: l.schema.Clone(), Features: l.features}
}

// FeatureIterator walks a layer once.
type FeatureIterator struct {
	features []*Feature
	pos      int
	cur      *Feature
}

// Next advances to the next feature and reports whether one exists.
func (it *FeatureIterator) Next() bool {
	if it.pos >= len(it.features) {
		it.cur = nil
		return false
	}
	it.cur = it.features[it.pos].Clone()
	it.pos++
	return true
}

// Feature returns the current feature.
func (it *FeatureIterator) Feature() *Feature { return it.cur }

// Collect drains the iterator into a slice.
func (it *FeatureIterator) Collect() []*Feature {
	out := make([]*Feature, 0, len(it.features)-it.pos)
	for it.Next() {
		out = append(out, it.Feature())
	}
	return out
}
