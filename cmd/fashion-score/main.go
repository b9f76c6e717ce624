// Command fashion-score loads a saved model and labels every image in a
// local directory. It runs without arguments against the default paths.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/born-ml/fashion-endpoint/internal/config"
	"github.com/born-ml/fashion-endpoint/internal/logging"
)

const (
	version = "v0.1.0"

	defaultImagesDir = "test_data/images"
)

func main() {
	app := &cli.App{
		Name:    "fashion-score",
		Usage:   "predict FashionMNIST labels for a directory of images",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model_dir", Value: config.DefaultModelDir, Usage: "saved model directory"},
			&cli.StringFlag{Name: "images_dir", Value: defaultImagesDir, Usage: "directory of images to score"},
			&cli.StringFlag{Name: "log_level", Value: "info", Usage: "debug, info, warn or error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fashion-score: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := logging.New(c.String("log_level"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	predictions, err := score(c.String("model_dir"), c.String("images_dir"), logger)
	if err != nil {
		return err
	}

	labels := make([]string, len(predictions))
	for i, p := range predictions {
		labels[i] = p.Label
		logger.Debugw("Prediction", "image", filepath.Base(p.Path), "label", p.Label)
	}
	logger.Infow("Predictions", "count", len(labels), "labels", labels)
	return nil
}
