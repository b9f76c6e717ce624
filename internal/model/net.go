// Package model defines the FashionMNIST classifier.
package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/labels"
)

// TypeName is recorded as the model type in saved artifacts.
const TypeName = "FashionNet"

// HiddenSize is the width of both hidden layers.
const HiddenSize = 512

// Net is a fully-connected FashionMNIST classifier.
//
// Architecture:
//
//	Flatten: [batch, 28, 28] -> [batch, 784]
//	FC1: 784 -> 512, ReLU
//	FC2: 512 -> 512, ReLU
//	FC3: 512 -> 10 (logits)
type Net[B tensor.Backend] struct {
	fc1  *nn.Linear[B]
	fc2  *nn.Linear[B]
	fc3  *nn.Linear[B]
	relu *nn.ReLU[B]
}

// Compile-time check that Net is a Born module.
var _ nn.Module[*autodiff.Backend[*cpu.Backend]] = (*Net[*autodiff.Backend[*cpu.Backend]])(nil)

// New creates a Net with Xavier-initialised weights on backend.
func New[B tensor.Backend](backend B) *Net[B] {
	return &Net[B]{
		fc1:  nn.NewLinear[B](dataset.ImageSize, HiddenSize, backend),
		fc2:  nn.NewLinear[B](HiddenSize, HiddenSize, backend),
		fc3:  nn.NewLinear[B](HiddenSize, labels.NumClasses, backend),
		relu: nn.NewReLU[B](),
	}
}

// Forward returns raw logits [batch, 10]. Inputs of shape [784],
// [batch, 28, 28] or [batch, 1, 28, 28] are flattened first.
func (m *Net[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	switch {
	case len(shape) == 1 && shape[0] == dataset.ImageSize:
		input = input.Reshape(1, dataset.ImageSize)
	case len(shape) == 2 && shape[1] == dataset.ImageSize:
	case len(shape) >= 3 && shape.NumElements() == shape[0]*dataset.ImageSize:
		input = input.Reshape(shape[0], dataset.ImageSize)
	default:
		panic(fmt.Sprintf("model: input shape %v cannot be flattened to [batch, %d]", shape, dataset.ImageSize))
	}

	x := m.relu.Forward(m.fc1.Forward(input))
	x = m.relu.Forward(m.fc2.Forward(x))
	return m.fc3.Forward(x)
}

// Parameters returns every trainable parameter.
func (m *Net[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 6)
	for _, layer := range m.layers() {
		params = append(params, layer.l.Parameters()...)
	}
	return params
}

// StateDict returns the weights keyed as "<layer>.weight" / "<layer>.bias".
func (m *Net[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, layer := range m.layers() {
		for name, raw := range layer.l.StateDict() {
			state[layer.name+"."+name] = raw
		}
	}
	return state
}

// LoadStateDict copies weights from state. Every layer must be present.
func (m *Net[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, layer := range m.layers() {
		prefix := layer.name + "."
		sub := make(map[string]*tensor.RawTensor)
		for key, raw := range state {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				sub[name] = raw
			}
		}
		if len(sub) == 0 {
			return fmt.Errorf("missing layer %s in state dict", layer.name)
		}
		if err := layer.l.LoadStateDict(sub); err != nil {
			return fmt.Errorf("failed to load layer %s: %w", layer.name, err)
		}
	}
	return nil
}

type namedLinear[B tensor.Backend] struct {
	name string
	l    *nn.Linear[B]
}

func (m *Net[B]) layers() []namedLinear[B] {
	return []namedLinear[B]{{"fc1", m.fc1}, {"fc2", m.fc2}, {"fc3", m.fc3}}
}

// NumParameters counts trainable scalars.
func (m *Net[B]) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().Shape().NumElements()
	}
	return total
}

// Predict returns the arg-max class of each row of logits [batch, classes].
func Predict[B tensor.Backend](logits *tensor.Tensor[float32, B]) []int {
	shape := logits.Shape()
	batchSize, numClasses := shape[0], shape[1]
	data := logits.Raw().AsFloat32()

	out := make([]int, batchSize)
	for b := 0; b < batchSize; b++ {
		row := data[b*numClasses : (b+1)*numClasses]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[b] = best
	}
	return out
}
