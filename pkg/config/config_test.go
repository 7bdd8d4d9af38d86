package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hessianshape/internal/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []float64{1, 2, 3}, cfg.Analysis.Scales)
	assert.Equal(t, 2.0, cfg.Analysis.Alpha)
	assert.Equal(t, 2.0, cfg.Analysis.Beta)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(c *Config){
		"no scales":      func(c *Config) { c.Analysis.Scales = nil },
		"zero scale":     func(c *Config) { c.Analysis.Scales = []float64{1, 0} },
		"infinite scale": func(c *Config) { c.Analysis.Scales = []float64{1, math.Inf(1)} },
		"NaN scale":      func(c *Config) { c.Analysis.Scales = []float64{math.NaN()} },
		"even kernel":    func(c *Config) { c.Analysis.Scales = []float64{1, 0.75} },
		"infinite beta":  func(c *Config) { c.Analysis.Beta = math.Inf(1) },
		"no cores":       func(c *Config) { c.Analysis.NumCores = 0 },
		"negative alpha": func(c *Config) { c.Analysis.Alpha = -1 },
		"unknown kind":   func(c *Config) { c.Synthetic.Kind = "torus" },
		"flat shape":     func(c *Config) { c.Synthetic.Shape = []int{8, 8} },
	}
	for name, mutate := range tests {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.ErrorIsf(t, cfg.Validate(), models.ErrInvalidParameter, name)
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Analysis.Scales = []float64{1, 4}
	cfg.Otsu.Enabled = true
	cfg.Synthetic.Kind = SyntheticBlob
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  scales: [2, 5]\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, cfg.Analysis.Scales)
	assert.Equal(t, 2.0, cfg.Analysis.Alpha)
	assert.Equal(t, SyntheticTube, cfg.Synthetic.Kind)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvLogLevel+"=debug\n"), 0644))
	t.Setenv(EnvScales, "1, 2.25,4")
	t.Setenv(EnvCores, "3")
	t.Setenv(EnvOtsu, "true")
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg, envFile))
	assert.Equal(t, []float64{1, 2.25, 4}, cfg.Analysis.Scales)
	assert.Equal(t, 3, cfg.Analysis.NumCores)
	assert.True(t, cfg.Otsu.Enabled)
	assert.Equal(t, "debug", cfg.Output.LogLevel)
}

func TestApplyEnvMissingFileIsFine(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, ApplyEnv(cfg, filepath.Join(t.TempDir(), "absent.env")))
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv(EnvCores, "many")
	assert.ErrorIs(t, ApplyEnv(DefaultConfig(), ""), models.ErrInvalidParameter)
}

func TestApplyEnvRejectsEvenKernelScale(t *testing.T) {
	t.Setenv(EnvScales, "1,0.75")
	assert.ErrorIs(t, ApplyEnv(DefaultConfig(), ""), models.ErrInvalidParameter)
}

func TestParseScales(t *testing.T) {
	scales, err := ParseScales("1,2,,3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, scales)

	for _, bad := range []string{"", "1,x", "1,-2", ",", "1,inf", "0.5"} {
		_, err := ParseScales(bad)
		assert.ErrorIsf(t, err, models.ErrInvalidParameter, "input %q", bad)
	}
}
