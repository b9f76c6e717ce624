//go:build windows

package main

import (
	"context"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/trainer"
)

// train picks the device once: WebGPU when an adapter is present, CPU
// otherwise.
func train(ctx context.Context, opts trainer.Options, tracker trainer.MetricsLogger, logger *zap.SugaredLogger) (*trainer.Result, error) {
	if webgpu.IsAvailable() {
		gpu, err := webgpu.New()
		if err == nil {
			defer gpu.Release()
			logger.Infow("Using device", "device", "webgpu")
			return trainer.Train(ctx, opts, autodiff.New(gpu), tracker, logger)
		}
		logger.Warnw("WebGPU unavailable, falling back to CPU", "error", err)
	}
	logger.Infow("Using device", "device", "cpu")
	return trainer.Train(ctx, opts, autodiff.New(cpu.New()), tracker, logger)
}
