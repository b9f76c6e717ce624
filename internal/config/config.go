// Package config holds the training run settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for a training run.
const (
	DefaultDataDir          = "data"
	DefaultModelDir         = "endpoint-1/model"
	DefaultTrackingDir      = "mlruns"
	DefaultExperiment       = "fashion-mnist"
	DefaultEpochs           = 5
	DefaultBatchSize        = 64
	DefaultLearningRate     = 0.1
	DefaultTrainingFraction = 0.8
)

// Config captures the knobs for a training run.
type Config struct {
	DataDir          string  `yaml:"data_dir"`
	ModelDir         string  `yaml:"model_dir"`
	TrackingDir      string  `yaml:"tracking_dir"`
	Experiment       string  `yaml:"experiment"`
	Epochs           int     `yaml:"epochs"`
	BatchSize        int     `yaml:"batch_size"`
	LearningRate     float64 `yaml:"learning_rate"`
	TrainingFraction float64 `yaml:"training_fraction"`
	Seed             int64   `yaml:"seed"`
	MaxSamples       int     `yaml:"max_samples"`
	LogLevel         string  `yaml:"log_level"`
	// CodePaths are files or directories bundled into the saved model.
	CodePaths []string `yaml:"code_paths"`
}

// Overrides captures CLI supplied values. Zero values are ignored.
type Overrides struct {
	DataDir          string
	ModelDir         string
	TrackingDir      string
	Experiment       string
	Epochs           int
	BatchSize        int
	LearningRate     float64
	TrainingFraction float64
	Seed             int64
	MaxSamples       int
	LogLevel         string
	CodePaths        []string
}

// Default returns the configuration the pipeline runs with when nothing is
// overridden.
func Default() *Config {
	return &Config{
		DataDir:          DefaultDataDir,
		ModelDir:         DefaultModelDir,
		TrackingDir:      DefaultTrackingDir,
		Experiment:       DefaultExperiment,
		Epochs:           DefaultEpochs,
		BatchSize:        DefaultBatchSize,
		LearningRate:     DefaultLearningRate,
		TrainingFraction: DefaultTrainingFraction,
		LogLevel:         "info",
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.ModelDir != "" {
		c.ModelDir = o.ModelDir
	}
	if o.TrackingDir != "" {
		c.TrackingDir = o.TrackingDir
	}
	if o.Experiment != "" {
		c.Experiment = o.Experiment
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.TrainingFraction > 0 {
		c.TrainingFraction = o.TrainingFraction
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.MaxSamples > 0 {
		c.MaxSamples = o.MaxSamples
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if len(o.CodePaths) > 0 {
		c.CodePaths = o.CodePaths
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.ModelDir == "" {
		return errors.New("model_dir must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %v)", c.LearningRate)
	}
	if c.TrainingFraction <= 0 || c.TrainingFraction >= 1 {
		return fmt.Errorf("training_fraction must be in (0, 1) (got %v)", c.TrainingFraction)
	}
	if c.MaxSamples < 0 {
		return fmt.Errorf("max_samples must be >= 0 (got %d)", c.MaxSamples)
	}
	if c.Experiment == "" {
		c.Experiment = DefaultExperiment
	}
	return nil
}

// Params flattens the config into string parameters for run tracking.
func (c *Config) Params() map[string]string {
	return map[string]string{
		"data_dir":          c.DataDir,
		"model_dir":         c.ModelDir,
		"epochs":            fmt.Sprint(c.Epochs),
		"batch_size":        fmt.Sprint(c.BatchSize),
		"learning_rate":     fmt.Sprint(c.LearningRate),
		"training_fraction": fmt.Sprint(c.TrainingFraction),
		"seed":              fmt.Sprint(c.Seed),
		"max_samples":       fmt.Sprint(c.MaxSamples),
		"code_paths":        strings.Join(c.CodePaths, ","),
	}
}
