package artifact

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/loader"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

func TestWriteWeights_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFile)
	state := map[string]*tensor.RawTensor{
		"fc1.weight": rawFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}),
		"fc1.bias":   rawFromSlice(t, []float32{0.5, -0.5}, tensor.Shape{2}),
	}
	require.NoError(t, writeWeights(path, state, map[string]string{"model_type": "FashionNet"}))

	got, err := readWeights(path, cpu.New())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tensor.Shape{2, 3}, got["fc1.weight"].Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got["fc1.weight"].AsFloat32())
	assert.Equal(t, []float32{0.5, -0.5}, got["fc1.bias"].AsFloat32())

	reader, err := loader.OpenModel(path)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, "FashionNet", reader.Metadata()["model_type"])
}

func TestWriteWeights_HeaderAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFile)
	state := map[string]*tensor.RawTensor{
		"w": rawFromSlice(t, []float32{1}, tensor.Shape{1}),
	}
	require.NoError(t, writeWeights(path, state, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(data[:8])
	assert.Zero(t, headerSize%8)
	assert.Len(t, data, 8+int(headerSize)+4)
}

func TestWriteWeights_RejectsNonFloat(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	err = writeWeights(filepath.Join(t.TempDir(), WeightsFile), map[string]*tensor.RawTensor{"labels": raw}, nil)
	assert.Error(t, err)
}
