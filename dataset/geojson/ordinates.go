package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/tingold/geoprep/dataset"
)

// extraOrdinates collects the third and fourth ordinate of every position
// in traversal order. A geometry is 3D only when every position has a Z,
// and measured only when every position also has an M.
func extraOrdinates(rg *rawGeometry) (z, m []float64, err error) {
	c := &ordinateCollector{minDim: -1}
	if err := c.geometry(rg); err != nil {
		return nil, nil, err
	}
	if c.minDim >= 3 {
		z = c.z
	}
	if c.minDim >= 4 {
		m = c.m
	}
	return z, m, nil
}

type ordinateCollector struct {
	z, m   []float64
	minDim int
}

func (c *ordinateCollector) geometry(rg *rawGeometry) error {
	if rg == nil {
		return nil
	}
	if rg.Type == "GeometryCollection" {
		for _, child := range rg.Geometries {
			if err := c.geometry(child); err != nil {
				return err
			}
		}
		return nil
	}
	if len(rg.Coordinates) == 0 {
		return nil
	}
	var coords any
	if err := json.Unmarshal(rg.Coordinates, &coords); err != nil {
		return fmt.Errorf("coordinates: %w", err)
	}
	c.walk(coords)
	return nil
}

func (c *ordinateCollector) walk(v any) {
	arr, ok := v.([]any)
	if !ok {
		return
	}
	if isPosition(arr) {
		c.position(arr)
		return
	}
	for _, child := range arr {
		c.walk(child)
	}
}

func (c *ordinateCollector) position(pos []any) {
	if c.minDim < 0 || len(pos) < c.minDim {
		c.minDim = len(pos)
	}
	c.z = append(c.z, ordinate(pos, 2))
	c.m = append(c.m, ordinate(pos, 3))
}

func ordinate(pos []any, i int) float64 {
	if i >= len(pos) {
		return 0
	}
	f, _ := pos[i].(float64)
	return f
}

func isPosition(arr []any) bool {
	if len(arr) < 2 {
		return false
	}
	_, ok := arr[0].(float64)
	return ok
}

// ordinateWriter appends Z and M values to the positions of a marshalled
// geometry object. M without Z is written with a zero Z.
type ordinateWriter struct {
	z, m []float64
	n    int
}

func (w *ordinateWriter) geometry(obj map[string]any) {
	if geoms, ok := obj["geometries"].([]any); ok {
		for _, g := range geoms {
			if child, ok := g.(map[string]any); ok {
				w.geometry(child)
			}
		}
		return
	}
	obj["coordinates"] = w.walk(obj["coordinates"])
}

func (w *ordinateWriter) walk(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if isPosition(arr) {
		return w.position(arr)
	}
	for i, child := range arr {
		arr[i] = w.walk(child)
	}
	return arr
}

func (w *ordinateWriter) position(pos []any) []any {
	i := w.n
	w.n++
	out := pos[:2:2]
	if w.z != nil || w.m != nil {
		out = append(out, at(w.z, i))
	}
	if w.m != nil {
		out = append(out, at(w.m, i))
	}
	return out
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// fieldInference derives a schema from property values, keeping the order
// in which keys first appear.
type fieldInference struct {
	order []string
	types map[string]dataset.FieldType
	seen  map[string]bool
}

func newFieldInference() *fieldInference {
	return &fieldInference{
		types: make(map[string]dataset.FieldType),
		seen:  make(map[string]bool),
	}
}

func (fi *fieldInference) observe(key string, v any) {
	if !fi.seen[key] {
		fi.seen[key] = true
		fi.order = append(fi.order, key)
	}
	if v == nil {
		return
	}
	t := valueType(v)
	prev, ok := fi.types[key]
	switch {
	case !ok:
		fi.types[key] = t
	case prev != t:
		fi.types[key] = dataset.FieldString
	}
}

func (fi *fieldInference) fields() []dataset.Field {
	out := make([]dataset.Field, len(fi.order))
	for i, k := range fi.order {
		t, ok := fi.types[k]
		if !ok {
			t = dataset.FieldString
		}
		out[i] = dataset.Field{Name: k, Type: t}
	}
	return out
}

func valueType(v any) dataset.FieldType {
	switch v.(type) {
	case float64:
		return dataset.FieldReal
	case bool:
		return dataset.FieldBoolean
	default:
		return dataset.FieldString
	}
}
