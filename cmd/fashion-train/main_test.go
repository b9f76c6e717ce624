package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/born-ml/fashion-endpoint/internal/config"
)

func parseConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg    *config.Config
		cfgErr error
	)
	app := &cli.App{
		Name:  "fashion-train",
		Flags: flags(),
		Action: func(c *cli.Context) error {
			cfg, cfgErr = loadConfig(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"fashion-train"}, args...)))
	return cfg, cfgErr
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDataDir, cfg.DataDir)
	assert.Equal(t, config.DefaultModelDir, cfg.ModelDir)
	assert.Equal(t, config.DefaultEpochs, cfg.Epochs)
	assert.Equal(t, config.DefaultBatchSize, cfg.BatchSize)
	assert.InDelta(t, config.DefaultLearningRate, cfg.LearningRate, 1e-12)
	assert.InDelta(t, config.DefaultTrainingFraction, cfg.TrainingFraction, 1e-12)
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	cfg, err := parseConfig(t, "--epochs", "2", "--batch_size", "16", "--model_dir", "out/model", "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, "out/model", cfg.ModelDir)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestLoadConfigFileBeatsDirectoryDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/fashion\nepochs: 3\n"), 0o600))

	cfg, err := parseConfig(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/fashion", cfg.DataDir)
	assert.Equal(t, config.DefaultModelDir, cfg.ModelDir)
	assert.Equal(t, 3, cfg.Epochs)

	cfg, err = parseConfig(t, "--config", path, "--data_dir", "local")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.DataDir)
}

func TestLoadConfigRejectsBadFraction(t *testing.T) {
	_, err := parseConfig(t, "--training_fraction", "1.5")
	require.Error(t, err)
}

func TestLoadConfigCodePaths(t *testing.T) {
	cfg, err := parseConfig(t, "--code_path", "internal/model", "--code_path", "internal/trainer")
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/model", "internal/trainer"}, cfg.CodePaths)

	opts := trainOptions(cfg, "train.yaml", "run-1")
	assert.Equal(t, []string{"internal/model", "internal/trainer", "train.yaml"}, opts.CodePaths)
	assert.Equal(t, "run-1", opts.RunID)
	assert.Equal(t, []string{"internal/model", "internal/trainer"}, cfg.CodePaths)
}

func TestTrainOptionsWithoutConfigFile(t *testing.T) {
	opts := trainOptions(config.Default(), "", "run-2")
	assert.Empty(t, opts.CodePaths)
	assert.Equal(t, config.DefaultEpochs, opts.Epochs)
	assert.Equal(t, config.DefaultModelDir, opts.ModelDir)
}
