package geoprep

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
)

// ReservedFields are never renamed, in any letter case. Codecs add their
// own reserved names on top.
var ReservedFields = []string{"OBJECTID", "SHAPE", "FID", "Shape", "Shape_Length", "Shape_Area"}

var (
	invalidFieldChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
	repeatedUnderline = regexp.MustCompile(`_{2,}`)
)

// SanitizeFieldName replaces characters outside [A-Za-z0-9_] with "_",
// collapses runs of "_", trims leading and trailing "_" and lower-cases
// the result. Its output is a fixed point: sanitizing it again changes
// nothing.
func SanitizeFieldName(name string) string {
	s := invalidFieldChars.ReplaceAllString(name, "_")
	s = repeatedUnderline.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return strings.ToLower(s)
}

// RenameMapping computes the old to new name mapping for fields. Names in
// reserved (matched in any case) or exclude (matched exactly) are kept.
// Only names that change are included. The mapping fails with
// ErrFieldNameCollision when two fields would end up with the same name,
// compared case-insensitively, and with ErrInvalidFieldName when a name
// sanitizes to nothing.
func RenameMapping(fields, reserved, exclude []string) (map[string]string, error) {
	isReserved := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		isReserved[strings.ToLower(r)] = true
	}
	isExcluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		isExcluded[e] = true
	}

	mapping := make(map[string]string)
	owner := make(map[string]string, len(fields))
	for _, name := range fields {
		final := name
		if !isReserved[strings.ToLower(name)] && !isExcluded[name] {
			final = SanitizeFieldName(name)
			if final == "" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidFieldName, name)
			}
			if final != name {
				mapping[name] = final
			}
		}
		key := strings.ToLower(final)
		if prev, dup := owner[key]; dup {
			return nil, fmt.Errorf("%w: %q and %q both become %q", ErrFieldNameCollision, prev, name, final)
		}
		owner[key] = name
	}
	return mapping, nil
}

func describeMapping(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for from, to := range m {
		out = append(out, from+"->"+to)
	}
	sort.Strings(out)
	return out
}

// PlanFieldNames returns, per layer, the renames CleanFieldNames would
// apply to h. The dataset is opened read-only.
func (p *Pipeline) PlanFieldNames(h dataset.Handle, exclude ...string) (map[string]map[string]string, error) {
	const op = OpCleanFieldNames
	ds, err := p.open(op, h, dataset.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	plan := make(map[string]map[string]string)
	for _, l := range ds.Layers() {
		m, err := layerMapping(ds, l, exclude)
		if err != nil {
			return nil, classify(op, h.Path, ErrFieldNameCollision, err)
		}
		plan[l.Name()] = m
	}
	return plan, nil
}

// CleanFieldNames sanitizes the field names of every layer of h, leaving
// reserved names and those in exclude alone. The mapping of every layer is
// computed and checked before anything changes; it is then applied in place
// as one atomic commit and h is returned. When nothing needs renaming the
// dataset is not rewritten.
func (p *Pipeline) CleanFieldNames(h dataset.Handle, exclude ...string) (dataset.Handle, error) {
	const op = OpCleanFieldNames
	p.log.Debug("Cleaning field names", zap.String("path", h.Path), zap.Strings("exclude", exclude))

	ds, err := p.open(op, h, dataset.ReadWrite)
	if err != nil {
		return h, err
	}
	defer ds.Close()

	layers := ds.Layers()
	mappings := make([]map[string]string, len(layers))
	total := 0
	for i, l := range layers {
		m, err := layerMapping(ds, l, exclude)
		if err != nil {
			return h, classify(op, h.Path, ErrFieldNameCollision, err)
		}
		mappings[i] = m
		total += len(m)
	}
	if total == 0 {
		p.log.Info("Field names already clean", zap.String("path", h.Path))
		return h, nil
	}

	for i, l := range layers {
		if err := l.RenameFields(mappings[i]); err != nil {
			return h, classify(op, h.Path, ErrFieldNameCollision, err)
		}
		if len(mappings[i]) > 0 {
			p.log.Debug("Renaming fields",
				zap.String("layer", l.Name()),
				zap.Strings("renames", describeMapping(mappings[i])))
		}
	}
	if err := ds.Commit(); err != nil {
		return h, opError(op, h.Path, ErrDatasetWriteFailed, err)
	}
	p.log.Info("Field names cleaned", zap.String("path", h.Path), zap.Int("renamed", total))
	return h, nil
}

func layerMapping(ds *dataset.Dataset, l *dataset.Layer, exclude []string) (map[string]string, error) {
	reserved := append(append([]string(nil), ReservedFields...), ds.Codec().ReservedFields()...)
	m, err := RenameMapping(l.Schema().FieldNames(), reserved, exclude)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name(), err)
	}
	return m, nil
}
