package artifact

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/born-ml/born/loader"
	"github.com/born-ml/born/tensor"
	"go.uber.org/multierr"
)

// tensorInfo is one entry of a safetensors header.
type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// writeWeights stores state as a safetensors file:
//
//	header size: 8 bytes (little endian)
//	header: JSON, space padded to 8 byte alignment
//	tensor data: float32 little endian, in header key order
func writeWeights(path string, state map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	names := make([]string, 0, len(state))
	for name, raw := range state {
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("tensor %s: unsupported dtype %v", name, raw.DType())
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := state[name]
		size := int64(raw.Shape().NumElements()) * 4
		header[name] = tensorInfo{
			DType:       "F32",
			Shape:       []int(raw.Shape()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	for len(headerJSON)%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return err
	}
	if _, err := w.Write(headerJSON); err != nil {
		return err
	}
	for _, name := range names {
		if err := binary.Write(w, binary.LittleEndian, state[name].AsFloat32()); err != nil {
			return fmt.Errorf("write tensor %s: %w", name, err)
		}
	}
	return w.Flush()
}

// readWeights loads every tensor of a safetensors file onto backend.
func readWeights(path string, backend tensor.Backend) (state map[string]*tensor.RawTensor, err error) {
	reader, err := loader.OpenModel(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, reader.Close())
	}()

	state = make(map[string]*tensor.RawTensor)
	for _, name := range reader.TensorNames() {
		raw, err := reader.LoadTensor(name, backend)
		if err != nil {
			return nil, fmt.Errorf("load tensor %s: %w", name, err)
		}
		state[name] = raw
	}
	return state, nil
}
