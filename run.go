package geoprep

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tingold/geoprep/dataset"
)

// Step is one operation applied by Run.
type Step struct {
	Name string
	Fn   func(p *Pipeline, h dataset.Handle) (dataset.Handle, error)
}

func (s Step) String() string { return s.Name }

// CleanStep cleans field names.
func CleanStep(exclude ...string) Step {
	return Step{Name: "clean", Fn: func(p *Pipeline, h dataset.Handle) (dataset.Handle, error) {
		return p.CleanFieldNames(h, exclude...)
	}}
}

// ReprojectStep standardizes the projection to target.
func ReprojectStep(target string, inPlace bool) Step {
	return Step{Name: "reproject:" + target, Fn: func(p *Pipeline, h dataset.Handle) (dataset.Handle, error) {
		return p.StandardizeProjection(h, target, inPlace)
	}}
}

// RepairStep repairs invalid geometries.
func RepairStep(inPlace bool) Step {
	return Step{Name: "repair", Fn: func(p *Pipeline, h dataset.Handle) (dataset.Handle, error) {
		return p.RepairGeometry(h, inPlace)
	}}
}

// To2DStep drops Z and M ordinates.
func To2DStep(inPlace bool) Step {
	return Step{Name: "to2d", Fn: func(p *Pipeline, h dataset.Handle) (dataset.Handle, error) {
		return p.Ensure2D(h, inPlace)
	}}
}

// SinuosityStep computes sinuosity into field.
func SinuosityStep(field string) Step {
	return Step{Name: "sinuosity", Fn: func(p *Pipeline, h dataset.Handle) (dataset.Handle, error) {
		return p.CalculateSinuosity(h, field)
	}}
}

// ParseStep builds a step from its textual form: "clean", "clean:a,b"
// (excluded fields), "reproject:<target>", "repair", "to2d",
// "sinuosity" or "sinuosity:<field>".
func ParseStep(s string, inPlace bool) (Step, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch strings.ToLower(name) {
	case "clean":
		var exclude []string
		if arg != "" {
			exclude = strings.Split(arg, ",")
		}
		return CleanStep(exclude...), nil
	case "reproject":
		if arg == "" {
			return Step{}, fmt.Errorf("%w: step %q needs a target", ErrInvalidConfiguration, s)
		}
		return ReprojectStep(arg, inPlace), nil
	case "repair":
		return RepairStep(inPlace), nil
	case "to2d":
		return To2DStep(inPlace), nil
	case "sinuosity":
		return SinuosityStep(arg), nil
	}
	return Step{}, fmt.Errorf("%w: unknown step %q", ErrInvalidConfiguration, s)
}

// Run applies steps in order, passing each the handle returned by the
// previous one, and returns the last handle. The first failure stops the
// run.
func (p *Pipeline) Run(h dataset.Handle, steps ...Step) (dataset.Handle, error) {
	for i, s := range steps {
		p.log.Debug("Running step", zap.Int("index", i), zap.String("step", s.Name), zap.String("path", h.Path))
		next, err := s.Fn(p, h)
		if err != nil {
			return h, err
		}
		h = next
	}
	return h, nil
}
