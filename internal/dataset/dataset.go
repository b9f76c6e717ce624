// Package dataset loads FashionMNIST and turns it into Born mini-batches.
//
// The on-disk format is the IDX layout shared by MNIST and FashionMNIST:
//
//	train-images-idx3-ubyte  train-labels-idx1-ubyte
//	t10k-images-idx3-ubyte   t10k-labels-idx1-ubyte
//
// Files may be gzip compressed and may sit either directly in the data
// directory or under FashionMNIST/raw, the layout torchvision downloads to.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/born-ml/fashion-endpoint/internal/labels"
)

// Image geometry.
const (
	ImageRows = 28
	ImageCols = 28
	ImageSize = ImageRows * ImageCols
)

// ErrNotFound is returned when no IDX file matches in any search location.
var ErrNotFound = errors.New("dataset file not found")

// Dataset holds flattened images and their class indices.
type Dataset struct {
	Images [][]float32 // [num_samples, 784], normalised to [0, 1]
	Labels []int32     // [num_samples]
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Images)
}

// Subset returns the samples at the given indices. Image rows are shared.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Images: make([][]float32, len(indices)),
		Labels: make([]int32, len(indices)),
	}
	for i, idx := range indices {
		out.Images[i] = d.Images[idx]
		out.Labels[i] = d.Labels[idx]
	}
	return out
}

// Load reads the FashionMNIST train (60,000) or test (10,000) split.
// maxSamples > 0 truncates the result.
func Load(dataDir string, train bool, maxSamples int) (*Dataset, error) {
	prefix := "t10k"
	if train {
		prefix = "train"
	}

	imagesPath, err := locate(dataDir, prefix+"-images-idx3-ubyte")
	if err != nil {
		return nil, err
	}
	labelsPath, err := locate(dataDir, prefix+"-labels-idx1-ubyte")
	if err != nil {
		return nil, err
	}

	imagesRaw, err := readImagesFile(imagesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load images from %s: %w", imagesPath, err)
	}

	labelsRaw, err := readLabelsFile(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels from %s: %w", labelsPath, err)
	}

	if len(imagesRaw) != len(labelsRaw) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", len(imagesRaw), len(labelsRaw))
	}

	numSamples := len(imagesRaw)
	if maxSamples > 0 && numSamples > maxSamples {
		numSamples = maxSamples
	}

	ds := &Dataset{
		Images: make([][]float32, numSamples),
		Labels: make([]int32, numSamples),
	}
	for i := 0; i < numSamples; i++ {
		if int(labelsRaw[i]) >= labels.NumClasses {
			return nil, fmt.Errorf("label out of range [0, %d) at index %d: %d", labels.NumClasses, i, labelsRaw[i])
		}
		ds.Images[i] = Normalize(imagesRaw[i])
		ds.Labels[i] = int32(labelsRaw[i])
	}
	return ds, nil
}

// Normalize maps 0-255 pixel bytes to [0, 1].
func Normalize(pixels []byte) []float32 {
	out := make([]float32, len(pixels))
	for i, p := range pixels {
		out[i] = float32(p) / 255.0
	}
	return out
}

// locate finds name (or name.gz) in dataDir or dataDir/FashionMNIST/raw.
func locate(dataDir, name string) (string, error) {
	dirs := []string{dataDir, filepath.Join(dataDir, "FashionMNIST", "raw")}
	for _, dir := range dirs {
		for _, candidate := range []string{name, name + ".gz"} {
			path := filepath.Join(dir, candidate)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s under %s", ErrNotFound, name, dataDir)
}

func readImagesFile(path string) (images [][]byte, err error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()
	return readIDXImages(rc, ImageRows, ImageCols)
}

func readLabelsFile(path string) (lbls []byte, err error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()
	return readIDXLabels(rc)
}
