// Package region resolves symbolic region names and EPSG codes to canonical
// coordinate system codes. The table is loaded once and is read-only
// afterwards; the default table is embedded in the binary.
package region

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Common errors returned by this package.
var (
	ErrUnknownRegion = errors.New("region: unknown region")
	ErrUnavailable   = errors.New("region: registry unavailable")
)

//go:embed regions.yaml
var embedded []byte

// Entry is one named region.
type Entry struct {
	Name        string `yaml:"-"`
	EPSG        int    `yaml:"epsg" validate:"gt=0"`
	Proj4       string `yaml:"proj4"`
	Description string `yaml:"description"`
}

// Registry maps upper-case region names to entries.
type Registry struct {
	entries map[string]Entry
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return Parse(embedded)
})

// Default returns the registry built from the embedded table.
func Default() (*Registry, error) {
	return defaultRegistry()
}

// Load reads a registry table from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML: a mapping of region name to entry.
// Names are case-insensitive.
func Parse(data []byte) (*Registry, error) {
	var raw map[string]Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrUnavailable)
	}

	validate := validator.New()
	r := &Registry{entries: make(map[string]Entry, len(raw))}
	for name, e := range raw {
		key := strings.ToUpper(strings.TrimSpace(name))
		if _, dup := r.entries[key]; dup {
			return nil, fmt.Errorf("%w: duplicate region %q", ErrUnavailable, key)
		}
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: region %q: %w", ErrUnavailable, key, err)
		}
		e.Name = key
		r.entries[key] = e
	}
	return r, nil
}

// Resolve returns the EPSG code for v. An integer code, optionally written
// as "EPSG:<code>", is returned unchanged without a lookup; anything else is
// looked up by upper-cased name.
func (r *Registry) Resolve(v string) (int, error) {
	if code, ok := parseCode(v); ok {
		return code, nil
	}
	e, err := r.Lookup(v)
	if err != nil {
		return 0, err
	}
	return e.EPSG, nil
}

// Lookup returns the entry for a region name.
func (r *Registry) Lookup(name string) (Entry, error) {
	e, ok := r.entries[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return e, nil
}

// Proj4 returns the proj4 definition for a region name, or for the first
// region using the given code.
func (r *Registry) Proj4(v string) (string, error) {
	if code, ok := parseCode(v); ok {
		for _, e := range r.Entries() {
			if e.EPSG == code && e.Proj4 != "" {
				return e.Proj4, nil
			}
		}
		return "", fmt.Errorf("%w: no proj4 definition for EPSG:%d", ErrUnknownRegion, code)
	}
	e, err := r.Lookup(v)
	if err != nil {
		return "", err
	}
	if e.Proj4 == "" {
		return "", fmt.Errorf("%w: no proj4 definition for %q", ErrUnknownRegion, e.Name)
	}
	return e.Proj4, nil
}

// Entries lists all regions sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parseCode(v string) (int, bool) {
	s := strings.TrimSpace(v)
	if len(s) > 5 && strings.EqualFold(s[:5], "EPSG:") {
		s = s[5:]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}
