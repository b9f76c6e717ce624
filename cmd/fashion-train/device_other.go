//go:build !windows

package main

import (
	"context"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/trainer"
)

func train(ctx context.Context, opts trainer.Options, tracker trainer.MetricsLogger, logger *zap.SugaredLogger) (*trainer.Result, error) {
	logger.Infow("Using device", "device", "cpu")
	return trainer.Train(ctx, opts, autodiff.New(cpu.New()), tracker, logger)
}
