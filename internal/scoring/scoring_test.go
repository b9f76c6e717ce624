package scoring

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fashion-endpoint/internal/artifact"
	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/labels"
	"github.com/born-ml/fashion-endpoint/internal/model"
)

func writeImage(t *testing.T, path string, size int, c color.Color) {
	t.Helper()
	img := imaging.New(size, size, c)
	require.NoError(t, imaging.Save(img, path))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "b.png"), 28, color.White)
	writeImage(t, filepath.Join(dir, "a.jpg"), 28, color.Black)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeImage(t, filepath.Join(dir, "nested", "c.png"), 28, color.White)

	paths, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png")}, paths)
}

func TestPreprocess(t *testing.T) {
	white := imaging.New(56, 40, color.White)
	pixels := Preprocess(white)
	require.Len(t, pixels, dataset.ImageSize)
	for _, p := range pixels {
		assert.InDelta(t, 1.0, p, 1e-3)
	}

	img := image.NewGray(image.Rect(0, 0, dataset.ImageCols, dataset.ImageRows))
	img.SetGray(3, 2, color.Gray{Y: 255})
	pixels = Preprocess(img)
	assert.InDelta(t, 1.0, pixels[2*dataset.ImageCols+3], 1e-6)
	assert.InDelta(t, 0.0, pixels[0], 1e-6)
}

func TestLoadImage_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	_, err := LoadImage(path)
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	backend := autodiff.New(cpu.New())
	modelDir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, artifact.Save(modelDir, model.New(backend), artifact.Options{}))

	imagesDir := t.TempDir()
	const n = 5
	for i := 0; i < n; i++ {
		shade := uint8(i * 50)
		writeImage(t, filepath.Join(imagesDir, string(rune('a'+i))+".png"), 28+i*4, color.Gray{Y: shade})
	}

	predictions, err := Score(modelDir, imagesDir, backend, nil)
	require.NoError(t, err)
	require.Len(t, predictions, n)
	for _, p := range predictions {
		assert.True(t, labels.Contains(p.Label), "unexpected label %q", p.Label)
		name, err := labels.Name(p.Class)
		require.NoError(t, err)
		assert.Equal(t, name, p.Label)
	}
	assert.Equal(t, filepath.Join(imagesDir, "a.png"), predictions[0].Path)
}

func TestScore_EmptyDir(t *testing.T) {
	backend := autodiff.New(cpu.New())
	modelDir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, artifact.Save(modelDir, model.New(backend), artifact.Options{}))

	_, err := Score(modelDir, t.TempDir(), backend, nil)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestPredict_Batching(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := model.New(backend)

	images := make([][]float32, 7)
	for i := range images {
		images[i] = make([]float32, dataset.ImageSize)
		images[i][i] = 1
	}
	small, err := Predict(net, images, 3, backend)
	require.NoError(t, err)
	whole, err := Predict(net, images, 0, backend)
	require.NoError(t, err)

	assert.Len(t, small, 7)
	assert.Equal(t, whole, small)
}
