package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
)

// IDX magic numbers.
const (
	imagesMagic = 2051
	labelsMagic = 2049
)

// openIDX opens an IDX file, transparently decompressing *.gz files.
func openIDX(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("gzip %s: %w", path, err), f.Close())
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return multierr.Append(g.Reader.Close(), g.file.Close())
}

// ErrMalformed is returned when an IDX header does not describe the data
// that follows it.
var ErrMalformed = errors.New("malformed IDX file")

// readIDXImages reads an IDX3 image file whose images must be rows x cols.
//
//	magic number: 2051
//	number of images, rows, cols: 4 bytes each (big endian)
//	pixel data: unsigned bytes, row-major
//
// The geometry is validated before reading, and the pixel buffer only grows
// as far as the data actually present.
func readIDXImages(r io.Reader, rows, cols int) ([][]byte, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != imagesMagic {
		return nil, fmt.Errorf("%w: invalid magic number: got %d, want %d", ErrMalformed, header[0], imagesMagic)
	}
	if int64(header[2]) != int64(rows) || int64(header[3]) != int64(cols) {
		return nil, fmt.Errorf("%w: images are %dx%d, want %dx%d", ErrMalformed, header[2], header[3], rows, cols)
	}

	numImages := int64(header[1])
	imageSize := int64(rows * cols)
	pixels, err := io.ReadAll(io.LimitReader(r, numImages*imageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read images: %w", err)
	}
	if int64(len(pixels)) != numImages*imageSize {
		return nil, fmt.Errorf("%w: header declares %d images, file holds %d bytes of pixels",
			ErrMalformed, numImages, len(pixels))
	}

	// Rows are sub-slices of the single pixel buffer.
	images := make([][]byte, numImages)
	for i := range images {
		images[i] = pixels[int64(i)*imageSize : int64(i+1)*imageSize]
	}
	return images, nil
}

// readIDXLabels reads an IDX1 label file.
//
//	magic number: 2049
//	number of labels: 4 bytes (big endian)
//	label data: unsigned bytes
func readIDXLabels(r io.Reader) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != labelsMagic {
		return nil, fmt.Errorf("%w: invalid magic number: got %d, want %d", ErrMalformed, header[0], labelsMagic)
	}

	labels, err := io.ReadAll(io.LimitReader(r, int64(header[1])))
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) != int(header[1]) {
		return nil, fmt.Errorf("%w: header declares %d labels, file holds %d", ErrMalformed, header[1], len(labels))
	}
	return labels, nil
}

// WriteIDX writes images and labels in IDX format. Used to build fixtures
// and to export subsets.
func WriteIDX(imagesOut, labelsOut io.Writer, images [][]byte, labels []byte, rows, cols int) error {
	if len(images) != len(labels) {
		return fmt.Errorf("image count (%d) != label count (%d)", len(images), len(labels))
	}

	header := [4]uint32{imagesMagic, uint32(len(images)), uint32(rows), uint32(cols)}
	if err := binary.Write(imagesOut, binary.BigEndian, header); err != nil {
		return err
	}
	for i, img := range images {
		if len(img) != rows*cols {
			return fmt.Errorf("image %d has %d pixels, want %d", i, len(img), rows*cols)
		}
		if _, err := imagesOut.Write(img); err != nil {
			return err
		}
	}

	if err := binary.Write(labelsOut, binary.BigEndian, [2]uint32{labelsMagic, uint32(len(labels))}); err != nil {
		return err
	}
	_, err := labelsOut.Write(labels)
	return err
}
