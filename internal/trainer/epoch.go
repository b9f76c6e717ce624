package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/model"
)

var (
	// ErrNoBatches is returned when an epoch has nothing to iterate over.
	ErrNoBatches = errors.New("no batches")
	// ErrDiverged is returned when the loss stops being finite.
	ErrDiverged = errors.New("loss is not finite")
)

// Fit runs one training pass over batches and returns the mean batch loss
// and the fraction of correctly classified samples.
func Fit[B tensor.Backend](
	ctx context.Context,
	backend *autodiff.Backend[B],
	batches []*dataset.Batch[*autodiff.Backend[B]],
	net *model.Net[*autodiff.Backend[B]],
	optimizer optim.Optimizer,
) (loss, accuracy float64, err error) {
	if len(batches) == 0 {
		return 0, 0, ErrNoBatches
	}

	tape := backend.Tape()
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}
	defer tape.Clear()

	var totalLoss float64
	correct, seen := 0, 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		optimizer.ZeroGrad()

		logits := net.Forward(batch.Images)
		lossRaw := backend.CrossEntropy(logits.Raw(), batch.Labels.Raw())
		lossValue := float64(lossRaw.AsFloat32()[0])
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return 0, 0, fmt.Errorf("%w at batch %d", ErrDiverged, i)
		}

		// Seed the backward pass with d(loss)/d(loss) = 1.
		outputGrad, err := tensor.NewRaw(lossRaw.Shape(), tensor.Float32, backend.Device())
		if err != nil {
			return 0, 0, fmt.Errorf("allocate output gradient: %w", err)
		}
		outputGrad.AsFloat32()[0] = 1.0

		grads := tape.Backward(outputGrad, backend)
		optimizer.Step(grads)

		totalLoss += lossValue
		correct += countCorrect(logits, batch)
		seen += batch.Size

		tape.Clear()
	}

	return totalLoss / float64(len(batches)), float64(correct) / float64(seen), nil
}

// Evaluate runs one pass over batches without recording gradients.
func Evaluate[B tensor.Backend](
	ctx context.Context,
	backend *autodiff.Backend[B],
	batches []*dataset.Batch[*autodiff.Backend[B]],
	net *model.Net[*autodiff.Backend[B]],
) (loss, accuracy float64, err error) {
	if len(batches) == 0 {
		return 0, 0, ErrNoBatches
	}

	tape := backend.Tape()
	if tape.IsRecording() {
		tape.StopRecording()
		defer tape.StartRecording()
	}

	var totalLoss float64
	correct, seen := 0, 0
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		logits := net.Forward(batch.Images)
		lossRaw := backend.CrossEntropy(logits.Raw(), batch.Labels.Raw())

		totalLoss += float64(lossRaw.AsFloat32()[0])
		correct += countCorrect(logits, batch)
		seen += batch.Size
	}

	return totalLoss / float64(len(batches)), float64(correct) / float64(seen), nil
}

func countCorrect[B tensor.Backend](logits *tensor.Tensor[float32, B], batch *dataset.Batch[B]) int {
	return int(math.Round(float64(nn.Accuracy(logits, batch.Labels)) * float64(batch.Size)))
}
