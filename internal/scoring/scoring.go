// Package scoring runs a saved model over a directory of images.
package scoring

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/born/tensor"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/born-ml/fashion-endpoint/internal/artifact"
	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/labels"
	"github.com/born-ml/fashion-endpoint/internal/logging"
	"github.com/born-ml/fashion-endpoint/internal/model"
)

// DefaultBatchSize bounds how many images go through one forward pass.
const DefaultBatchSize = 256

// ErrNoImages is returned when the image directory has no files.
var ErrNoImages = errors.New("no images to score")

// Prediction is the label assigned to one image file.
type Prediction struct {
	Path  string
	Class int
	Label string
}

// ListImages returns the regular files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadImage decodes an image file into 784 grayscale values in [0, 1].
func LoadImage(path string) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return Preprocess(img), nil
}

// Preprocess converts img to grayscale, resizes it to 28x28 and flattens
// it row-major with pixels normalised to [0, 1].
func Preprocess(img image.Image) []float32 {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	var small image.Image = gray
	if b.Dx() != dataset.ImageCols || b.Dy() != dataset.ImageRows {
		small = resize.Resize(dataset.ImageCols, dataset.ImageRows, gray, resize.Bilinear)
	}

	out := make([]float32, dataset.ImageSize)
	sb := small.Bounds()
	for y := 0; y < dataset.ImageRows; y++ {
		for x := 0; x < dataset.ImageCols; x++ {
			r, _, _, _ := small.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
			out[y*dataset.ImageCols+x] = float32(r) / 65535.0
		}
	}
	return out
}

// Predict classifies images in batches of up to batchSize and returns one
// class index per image.
func Predict[B tensor.Backend](net *model.Net[B], images [][]float32, batchSize int, backend B) ([]int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	ds := &dataset.Dataset{Images: images, Labels: make([]int32, len(images))}
	batches, err := dataset.Batches(ds, batchSize, false, nil, backend)
	if err != nil {
		return nil, err
	}

	out := make([]int, 0, len(images))
	for _, batch := range batches {
		out = append(out, model.Predict(net.Forward(batch.Images))...)
	}
	return out, nil
}

// Score loads the model in modelDir, classifies every image in imagesDir
// and maps the class indices to label names.
func Score[B tensor.Backend](modelDir, imagesDir string, backend B, logger *zap.SugaredLogger) ([]Prediction, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	net, desc, err := artifact.Load(modelDir, backend)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	logger.Infow("Loaded model", "path", modelDir, "model_uuid", desc.ModelUUID)

	paths, err := ListImages(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, imagesDir)
	}

	images := make([][]float32, len(paths))
	for i, path := range paths {
		if images[i], err = LoadImage(path); err != nil {
			return nil, err
		}
	}

	classes, err := Predict(net, images, DefaultBatchSize, backend)
	if err != nil {
		return nil, err
	}

	predictions := make([]Prediction, len(paths))
	for i, class := range classes {
		label, err := labels.Name(class)
		if err != nil {
			return nil, err
		}
		predictions[i] = Prediction{Path: paths[i], Class: class, Label: label}
	}
	return predictions, nil
}
