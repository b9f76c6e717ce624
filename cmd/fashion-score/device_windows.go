//go:build windows

package main

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/scoring"
)

func score(modelDir, imagesDir string, logger *zap.SugaredLogger) ([]scoring.Prediction, error) {
	if webgpu.IsAvailable() {
		gpu, err := webgpu.New()
		if err == nil {
			defer gpu.Release()
			logger.Infow("Using device", "device", "webgpu")
			return scoring.Score(modelDir, imagesDir, autodiff.New(gpu), logger)
		}
		logger.Warnw("WebGPU unavailable, falling back to CPU", "error", err)
	}
	logger.Infow("Using device", "device", "cpu")
	return scoring.Score(modelDir, imagesDir, autodiff.New(cpu.New()), logger)
}
