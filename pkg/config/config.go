// Package config provides configuration loading and management for hessianshape.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hessianshape/internal/models"
	"hessianshape/pkg/kernel"
)

// Environment variables read by ApplyEnv
const (
	EnvScales   = "HESSIANSHAPE_SCALES"
	EnvCores    = "HESSIANSHAPE_CORES"
	EnvLogLevel = "HESSIANSHAPE_LOG_LEVEL"
	EnvOtsu     = "HESSIANSHAPE_OTSU"
)

// Synthetic volume kinds
const (
	SyntheticPolynomial = "polynomial"
	SyntheticTube       = "tube"
	SyntheticBlob       = "blob"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Analysis parameters
	Analysis struct {
		// Scales lists the Gaussian sigmas to evaluate, in order
		Scales []float64 `yaml:"scales"`

		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// Alpha and Beta shape the vesselness and clumpiness responses
		Alpha float64 `yaml:"alpha"`
		Beta  float64 `yaml:"beta"`
	} `yaml:"analysis"`

	// Otsu background suppression
	Otsu struct {
		// Enabled zeroes voxels at or below the Otsu threshold before analysis
		Enabled bool `yaml:"enabled"`
	} `yaml:"otsu"`

	// Synthetic input used when no input file is given
	Synthetic struct {
		// Kind is one of polynomial, tube or blob
		Kind string `yaml:"kind"`

		// Shape is the volume extent along x, y and z
		Shape []int `yaml:"shape"`

		// X, Y and Z are per-axis polynomials such as "2x + 3x**2"
		X string `yaml:"x"`
		Y string `yaml:"y"`
		Z string `yaml:"z"`

		// Radius and Intensity describe tube and blob phantoms
		Radius    float64 `yaml:"radius"`
		Intensity float64 `yaml:"intensity"`

		// Axis is the tube direction
		Axis int `yaml:"axis"`
	} `yaml:"synthetic"`

	// Output parameters
	Output struct {
		// Dir is where result volumes are written
		Dir string `yaml:"dir"`

		// Stem prefixes every output file name
		Stem string `yaml:"stem"`

		// Compress writes zstd-compressed volumes
		Compress bool `yaml:"compress"`

		// ExportSlices saves PNG slices of the results
		ExportSlices bool `yaml:"exportSlices"`

		// SlicesDir is the sub-directory of Dir for exported slices
		SlicesDir string `yaml:"slicesDir"`

		// LogLevel controls the level of logging output
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default analysis parameters
	cfg.Analysis.Scales = []float64{1, 2, 3}
	cfg.Analysis.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Analysis.Alpha = 2
	cfg.Analysis.Beta = 2

	cfg.Otsu.Enabled = false

	// Set default synthetic volume
	cfg.Synthetic.Kind = SyntheticTube
	cfg.Synthetic.Shape = []int{32, 32, 32}
	cfg.Synthetic.X = "2x"
	cfg.Synthetic.Y = "x**2"
	cfg.Synthetic.Z = "3x**3"
	cfg.Synthetic.Radius = 2
	cfg.Synthetic.Intensity = 100
	cfg.Synthetic.Axis = 2

	// Set default output parameters
	cfg.Output.Dir = "results"
	cfg.Output.Stem = "shape"
	cfg.Output.Compress = true
	cfg.Output.ExportSlices = false
	cfg.Output.SlicesDir = "slices"
	cfg.Output.LogLevel = "info"

	return cfg
}

// Validate checks the values the analysis depends on
func (c *Config) Validate() error {
	if len(c.Analysis.Scales) == 0 {
		return fmt.Errorf("%w: no scales configured", models.ErrInvalidParameter)
	}
	for _, s := range c.Analysis.Scales {
		if err := checkScale(s); err != nil {
			return err
		}
	}
	if c.Analysis.NumCores < 1 {
		return fmt.Errorf("%w: numCores %d must be at least 1", models.ErrInvalidParameter, c.Analysis.NumCores)
	}
	if !(c.Analysis.Alpha > 0) || !(c.Analysis.Beta > 0) || math.IsInf(c.Analysis.Alpha, 0) || math.IsInf(c.Analysis.Beta, 0) {
		return fmt.Errorf("%w: alpha %v and beta %v must be positive and finite", models.ErrInvalidParameter, c.Analysis.Alpha, c.Analysis.Beta)
	}
	switch c.Synthetic.Kind {
	case SyntheticPolynomial, SyntheticTube, SyntheticBlob:
	default:
		return fmt.Errorf("%w: unknown synthetic kind %q", models.ErrInvalidParameter, c.Synthetic.Kind)
	}
	if len(c.Synthetic.Shape) != 3 {
		return fmt.Errorf("%w: synthetic shape %v must have three axes", models.ErrInvalidParameter, c.Synthetic.Shape)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ApplyEnv loads envFile (if it exists) into the process environment without
// overriding variables already set, then applies HESSIANSHAPE_* overrides.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error loading env file %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvScales); v != "" {
		scales, err := ParseScales(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvScales, err)
		}
		cfg.Analysis.Scales = scales
	}
	if v := os.Getenv(EnvCores); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", models.ErrInvalidParameter, EnvCores, v)
		}
		cfg.Analysis.NumCores = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Output.LogLevel = v
	}
	if v := os.Getenv(EnvOtsu); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", models.ErrInvalidParameter, EnvOtsu, v)
		}
		cfg.Otsu.Enabled = enabled
	}
	return nil
}

// ParseScales parses a comma separated list of sigmas such as "1,2,4"
func ParseScales(s string) ([]float64, error) {
	var scales []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: scale %q", models.ErrInvalidParameter, part)
		}
		if err := checkScale(v); err != nil {
			return nil, err
		}
		scales = append(scales, v)
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("%w: empty scale list %q", models.ErrInvalidParameter, s)
	}
	return scales, nil
}

// checkScale accepts a sigma only if its derivative kernel can be built, so
// a configuration that would fail mid-analysis is rejected up front
func checkScale(sigma float64) error {
	if _, err := kernel.Build(sigma); err != nil {
		return fmt.Errorf("scale %v: %w", sigma, err)
	}
	return nil
}
