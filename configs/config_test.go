package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsRoundTrip(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Experiment.HopSize)
	assert.Equal(t, []float64{60, 120, 180}, cfg.Experiment.TempoBiases)
	assert.Equal(t, 0.1, cfg.Experiment.Kappa)
	assert.Equal(t, 12*time.Hour, cfg.Experiment.Timeout)
	assert.Equal(t, "svg", cfg.Output.PlotFormat)
	assert.Equal(t, ".ogg", cfg.Dataset.Extension)
	require.NoError(t, ValidateConfig(cfg))

	def := GetDefaultConfig()
	assert.Equal(t, def.Experiment, cfg.Experiment)
	assert.Equal(t, def.Output, cfg.Output)
	assert.Equal(t, def.Dataset, cfg.Dataset)
}

func TestConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover-benchmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
experiment:
  kappa: 0.2
  tempo_biases: [120]
  timeout: 30m
output:
  plot_format: png
`), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Experiment.Kappa)
	assert.Equal(t, []float64{120}, cfg.Experiment.TempoBiases)
	assert.Equal(t, 30*time.Minute, cfg.Experiment.Timeout)
	assert.Equal(t, "png", cfg.Output.PlotFormat)
	assert.Equal(t, 512, cfg.Experiment.HopSize)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no tempo biases", func(c *Config) { c.Experiment.TempoBiases = nil }},
		{"negative tempo bias", func(c *Config) { c.Experiment.TempoBiases = []float64{-60} }},
		{"zero hop", func(c *Config) { c.Experiment.HopSize = 0 }},
		{"negative kappa", func(c *Config) { c.Experiment.Kappa = -1 }},
		{"negative concurrency", func(c *Config) { c.Experiment.MaxConcurrent = -2 }},
		{"unknown plot format", func(c *Config) { c.Output.PlotFormat = "gif" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}
