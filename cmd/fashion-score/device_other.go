//go:build !windows

package main

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/scoring"
)

// score runs on the CPU backend wrapped with autodiff; the tape is never
// started, so no gradients are recorded.
func score(modelDir, imagesDir string, logger *zap.SugaredLogger) ([]scoring.Prediction, error) {
	logger.Infow("Using device", "device", "cpu")
	return scoring.Score(modelDir, imagesDir, autodiff.New(cpu.New()), logger)
}
