package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Epochs)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.InDelta(t, 0.1, cfg.LearningRate, 1e-12)
	assert.InDelta(t, 0.8, cfg.TrainingFraction, 1e-12)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /datasets/fashion\nepochs: 2\nseed: 42\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/datasets/fashion", cfg.DataDir)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultModelDir, cfg.ModelDir)
}

func TestLoad_CodePaths(t *testing.T) {
	cfg, err := Load(writeConfig(t, "code_paths:\n  - internal/model\n  - train.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/model", "train.yaml"}, cfg.CodePaths)
	assert.Equal(t, "internal/model,train.yaml", cfg.Params()["code_paths"])

	cfg.ApplyOverrides(Overrides{CodePaths: []string{"net.go"}})
	assert.Equal(t, []string{"net.go"}, cfg.CodePaths)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "epoch: 3\n"))
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		DataDir:   "in",
		ModelDir:  "out",
		BatchSize: 128,
	})
	assert.Equal(t, "in", cfg.DataDir)
	assert.Equal(t, "out", cfg.ModelDir)
	assert.Equal(t, 128, cfg.BatchSize)
	assert.Equal(t, DefaultEpochs, cfg.Epochs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"no model dir", func(c *Config) { c.ModelDir = "" }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"negative lr", func(c *Config) { c.LearningRate = -1 }},
		{"fraction one", func(c *Config) { c.TrainingFraction = 1 }},
		{"fraction zero", func(c *Config) { c.TrainingFraction = 0 }},
		{"negative samples", func(c *Config) { c.MaxSamples = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
