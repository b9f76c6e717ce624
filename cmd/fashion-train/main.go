// Command fashion-train trains the FashionMNIST classifier, records the
// per-epoch metrics of the run and saves the model directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/born-ml/fashion-endpoint/internal/config"
	"github.com/born-ml/fashion-endpoint/internal/logging"
	"github.com/born-ml/fashion-endpoint/internal/tracking"
	"github.com/born-ml/fashion-endpoint/internal/trainer"
)

const version = "v0.1.0"

func main() {
	app := &cli.App{
		Name:    "fashion-train",
		Usage:   "train the FashionMNIST classifier and save it as a model directory",
		Version: version,
		Flags:   flags(),
		Action:  run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fashion-train: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
		&cli.StringFlag{Name: "data_dir", Value: config.DefaultDataDir, Usage: "directory holding the FashionMNIST IDX files"},
		&cli.StringFlag{Name: "model_dir", Value: config.DefaultModelDir, Usage: "output model directory, replaced on every run"},
		&cli.StringFlag{Name: "tracking_dir", Usage: "run tracking root (default " + config.DefaultTrackingDir + ")"},
		&cli.StringFlag{Name: "experiment", Usage: "experiment name runs are grouped under"},
		&cli.IntFlag{Name: "epochs", Usage: "number of training epochs"},
		&cli.IntFlag{Name: "batch_size", Usage: "mini-batch size"},
		&cli.Float64Flag{Name: "learning_rate", Usage: "SGD learning rate"},
		&cli.Float64Flag{Name: "training_fraction", Usage: "share of the training set used for training; the rest validates"},
		&cli.Int64Flag{Name: "seed", Usage: "seed for the split and shuffling (0 = time based)"},
		&cli.IntFlag{Name: "max_samples", Usage: "load at most this many samples (0 = all)"},
		&cli.StringFlag{Name: "log_level", Usage: "debug, info, warn or error"},
		&cli.StringSliceFlag{Name: "code_path", Usage: "file or directory bundled into the model's code/ (repeatable)"},
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Infow("input parameters",
		"data_dir", cfg.DataDir,
		"model_dir", cfg.ModelDir,
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize,
		"learning_rate", cfg.LearningRate,
		"training_fraction", cfg.TrainingFraction,
	)

	exp, err := tracking.Open(cfg.TrackingDir, cfg.Experiment)
	if err != nil {
		return fmt.Errorf("open experiment: %w", err)
	}

	var result *trainer.Result
	err = exp.WithRun(cfg.Params(), func(r *tracking.Run) error {
		logger.Infow("Tracking run", "experiment", exp.Meta.Name, "run_id", r.Meta.RunID)
		var err error
		result, err = train(c.Context, trainOptions(cfg, c.String("config"), r.Meta.RunID), r, logger)
		return err
	})
	if err != nil {
		return err
	}

	last := result.History[len(result.History)-1]
	logger.Infow("Training complete",
		"model_dir", result.ModelDir,
		"validation_loss", last.ValidationLoss,
		"validation_accuracy", last.ValidationAccuracy,
	)
	return nil
}

// trainOptions maps the config onto the trainer. The config file, when
// given, is bundled with the model next to the configured code paths.
func trainOptions(cfg *config.Config, configPath, runID string) trainer.Options {
	opts := trainer.Options{
		DataDir:          cfg.DataDir,
		ModelDir:         cfg.ModelDir,
		Epochs:           cfg.Epochs,
		BatchSize:        cfg.BatchSize,
		LearningRate:     cfg.LearningRate,
		TrainingFraction: cfg.TrainingFraction,
		Seed:             cfg.Seed,
		MaxSamples:       cfg.MaxSamples,
		CodePaths:        append([]string(nil), cfg.CodePaths...),
		RunID:            runID,
	}
	if configPath != "" {
		opts.CodePaths = append(opts.CodePaths, configPath)
	}
	return opts
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	o := config.Overrides{
		TrackingDir:      c.String("tracking_dir"),
		Experiment:       c.String("experiment"),
		Epochs:           c.Int("epochs"),
		BatchSize:        c.Int("batch_size"),
		LearningRate:     c.Float64("learning_rate"),
		TrainingFraction: c.Float64("training_fraction"),
		Seed:             c.Int64("seed"),
		MaxSamples:       c.Int("max_samples"),
		LogLevel:         c.String("log_level"),
		CodePaths:        c.StringSlice("code_path"),
	}
	// The directory flags carry defaults; only an explicit flag beats the file.
	if c.IsSet("data_dir") || c.String("config") == "" {
		o.DataDir = c.String("data_dir")
	}
	if c.IsSet("model_dir") || c.String("config") == "" {
		o.ModelDir = c.String("model_dir")
	}
	cfg.ApplyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
