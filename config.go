package geoprep

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "GEOPREP_"

// Config is the pipeline configuration. It is a plain value: pass it to New
// and derive variants with Override.
type Config struct {
	Engine      string    `yaml:"engine" env:"ENGINE" validate:"required"`
	Workspace   string    `yaml:"workspace,omitempty" env:"WORKSPACE"`
	RegionsFile string    `yaml:"regions_file,omitempty" env:"REGIONS_FILE"`
	Workers     int       `yaml:"workers" env:"WORKERS" validate:"min=1,max=256"`
	Log         LogConfig `yaml:"log" envPrefix:"LOG_"`
}

// LogConfig configures the logger built by NewLogger.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty" env:"DIR"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Engine:  "auto",
		Workers: 4,
		Log:     LogConfig{Level: "info"},
	}
}

var validate = validator.New()

// Validate checks field ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

// LoadConfig builds a Config from the defaults, the YAML file at path (a
// missing file keeps the defaults, an empty path skips it), the .env files
// (".env" in the working directory when none are given, skipped if absent)
// and GEOPREP_* environment variables, in that order of precedence.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, path, err)
			}
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes c as YAML to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) normalize() {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// ConfigOption modifies a Config copy in Override.
type ConfigOption func(*Config)

// Override returns a copy of c with opts applied. c itself is never
// modified, so keeping the original value is all it takes to restore it.
func (c Config) Override(opts ...ConfigOption) Config {
	out := c
	for _, opt := range opts {
		opt(&out)
	}
	out.normalize()
	return out
}

// WithEngine selects an engine by name or "auto".
func WithEngine(name string) ConfigOption {
	return func(c *Config) { c.Engine = name }
}

// WithWorkspace sets the output namespace root.
func WithWorkspace(dir string) ConfigOption {
	return func(c *Config) { c.Workspace = dir }
}

// WithWorkers sets the number of per-feature workers.
func WithWorkers(n int) ConfigOption {
	return func(c *Config) { c.Workers = n }
}

// WithRegionsFile replaces the embedded region table.
func WithRegionsFile(path string) ConfigOption {
	return func(c *Config) { c.RegionsFile = path }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) { c.Log.Level = level }
}
