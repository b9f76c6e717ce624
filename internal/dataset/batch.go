package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Batch is a mini-batch of images and labels on a Born backend.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [size, 784]
	Labels *tensor.Tensor[int32, B]   // [size]
	Size   int
}

// Batches splits ds into mini-batches. When shuffle is set the sample order
// is drawn from rng, so calling Batches once per epoch reshuffles every
// epoch. The last batch may be smaller than batchSize.
func Batches[B tensor.Backend](ds *Dataset, batchSize int, shuffle bool, rng *rand.Rand, backend B) ([]*Batch[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0 (got %d)", batchSize)
	}
	numSamples := ds.Len()
	if numSamples != len(ds.Labels) {
		return nil, errors.New("images and labels length mismatch")
	}

	var indices []int
	if shuffle {
		if rng == nil {
			return nil, errors.New("shuffle requires a random source")
		}
		indices = rng.Perm(numSamples)
	} else {
		indices = make([]int, numSamples)
		for i := range indices {
			indices[i] = i
		}
	}

	batches := make([]*Batch[B], 0, (numSamples+batchSize-1)/batchSize)
	for start := 0; start < numSamples; start += batchSize {
		end := min(start+batchSize, numSamples)
		batch, err := NewBatch(ds, indices[start:end], backend)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// NewBatch copies the samples at indices into backend tensors.
func NewBatch[B tensor.Backend](ds *Dataset, indices []int, backend B) (*Batch[B], error) {
	size := len(indices)

	imagesRaw, err := tensor.NewRaw(tensor.Shape{size, ImageSize}, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create images tensor: %w", err)
	}
	labelsRaw, err := tensor.NewRaw(tensor.Shape{size}, tensor.Int32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create labels tensor: %w", err)
	}

	imagesData := imagesRaw.AsFloat32()
	labelsData := labelsRaw.AsInt32()
	for row, idx := range indices {
		if len(ds.Images[idx]) != ImageSize {
			return nil, fmt.Errorf("sample %d has %d pixels, want %d", idx, len(ds.Images[idx]), ImageSize)
		}
		copy(imagesData[row*ImageSize:(row+1)*ImageSize], ds.Images[idx])
		labelsData[row] = ds.Labels[idx]
	}

	return &Batch[B]{
		Images: tensor.New[float32, B](imagesRaw, backend),
		Labels: tensor.New[int32, B](labelsRaw, backend),
		Size:   size,
	}, nil
}
