// Package trainer drives FashionMNIST training: it splits the data, runs
// the epoch loop, reports per-epoch metrics and saves the final model.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/artifact"
	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/logging"
	"github.com/born-ml/fashion-endpoint/internal/model"
)

// ErrEmptySplit is returned when the training or validation subset is empty.
var ErrEmptySplit = errors.New("empty dataset split")

// Options captures the knobs required by Train.
type Options struct {
	DataDir          string
	ModelDir         string
	Epochs           int
	BatchSize        int
	LearningRate     float64
	TrainingFraction float64
	// Seed drives the split and shuffling. Zero picks a time-based seed.
	Seed       int64
	MaxSamples int
	// CodePaths are copied into the saved model directory.
	CodePaths []string
	RunID     string
}

// MetricsLogger receives one metrics record per epoch.
type MetricsLogger interface {
	LogMetrics(metrics map[string]float64, step int) error
}

// EpochMetrics is the record logged after each epoch.
type EpochMetrics struct {
	Epoch              int // 0-based; used as the tracking step
	TrainingLoss       float64
	TrainingAccuracy   float64
	ValidationLoss     float64
	ValidationAccuracy float64
}

// Map returns the record keyed by tracking metric name.
func (m EpochMetrics) Map() map[string]float64 {
	return map[string]float64{
		"training_loss":       m.TrainingLoss,
		"training_accuracy":   m.TrainingAccuracy,
		"validation_loss":     m.ValidationLoss,
		"validation_accuracy": m.ValidationAccuracy,
	}
}

// Result summarises a finished run.
type Result struct {
	History       []EpochMetrics
	TrainLen      int
	ValLen        int
	NumParameters int
	ModelDir      string
}

// Train loads the data, trains a fresh model for opts.Epochs epochs and
// saves it to opts.ModelDir. tracker may be nil.
func Train[B tensor.Backend](
	ctx context.Context,
	opts Options,
	backend *autodiff.Backend[B],
	tracker MetricsLogger,
	logger *zap.SugaredLogger,
) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	full, err := dataset.Load(opts.DataDir, true, opts.MaxSamples)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	trainData, valData, err := dataset.RandomSplit(full, opts.TrainingFraction, rng)
	if err != nil {
		return nil, err
	}
	if trainData.Len() == 0 || valData.Len() == 0 {
		return nil, fmt.Errorf("%w: train=%d val=%d", ErrEmptySplit, trainData.Len(), valData.Len())
	}
	logger.Infow("Loaded data", "samples", full.Len(), "train", trainData.Len(), "val", valData.Len(), "seed", seed)

	net := model.New(backend)
	optimizer := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: float32(opts.LearningRate)}, backend)
	logger.Infow("Created model", "type", model.TypeName, "parameters", net.NumParameters(), "backend", backend.Name())

	backend.Tape().StartRecording()
	defer backend.Tape().StopRecording()

	result := &Result{
		TrainLen:      trainData.Len(),
		ValLen:        valData.Len(),
		NumParameters: net.NumParameters(),
		ModelDir:      opts.ModelDir,
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		logger.Infof("Epoch %d", epoch+1)

		trainBatches, err := dataset.Batches(trainData, opts.BatchSize, true, rng, backend)
		if err != nil {
			return nil, fmt.Errorf("create train batches: %w", err)
		}
		valBatches, err := dataset.Batches(valData, opts.BatchSize, true, rng, backend)
		if err != nil {
			return nil, fmt.Errorf("create validation batches: %w", err)
		}

		trainLoss, trainAcc, err := Fit(ctx, backend, trainBatches, net, optimizer)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: fit: %w", epoch+1, err)
		}
		valLoss, valAcc, err := Evaluate(ctx, backend, valBatches, net)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: evaluate: %w", epoch+1, err)
		}

		metrics := EpochMetrics{
			Epoch:              epoch,
			TrainingLoss:       trainLoss,
			TrainingAccuracy:   trainAcc,
			ValidationLoss:     valLoss,
			ValidationAccuracy: valAcc,
		}
		result.History = append(result.History, metrics)
		logger.Infow("Epoch done",
			"epoch", epoch+1,
			"training_loss", trainLoss,
			"training_accuracy", trainAcc,
			"validation_loss", valLoss,
			"validation_accuracy", valAcc,
		)

		if tracker != nil {
			if err := tracker.LogMetrics(metrics.Map(), epoch); err != nil {
				return nil, fmt.Errorf("log metrics: %w", err)
			}
		}
	}

	err = artifact.Save(opts.ModelDir, net, artifact.Options{
		CodePaths: opts.CodePaths,
		RunID:     opts.RunID,
		Metadata: map[string]string{
			"epochs":        strconv.Itoa(opts.Epochs),
			"batch_size":    strconv.Itoa(opts.BatchSize),
			"learning_rate": strconv.FormatFloat(opts.LearningRate, 'g', -1, 64),
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	return result, nil
}

func (o Options) validate() error {
	switch {
	case o.DataDir == "":
		return errors.New("trainer: data dir must be set")
	case o.ModelDir == "":
		return errors.New("trainer: model dir must be set")
	case o.Epochs <= 0:
		return errors.New("trainer: epochs must be > 0")
	case o.BatchSize <= 0:
		return errors.New("trainer: batch size must be > 0")
	case o.LearningRate <= 0:
		return errors.New("trainer: learning rate must be > 0")
	case o.TrainingFraction <= 0 || o.TrainingFraction >= 1:
		return errors.New("trainer: training fraction must be in (0, 1)")
	}
	return nil
}
