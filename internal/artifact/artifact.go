// Package artifact saves and loads trained models as self-describing
// directories:
//
//	<model_dir>/MLmodel                 YAML descriptor (flavor, signature, labels)
//	<model_dir>/data/model.safetensors  F32 weights, read back by Born's loader
//	<model_dir>/code/...                copies of the configured code paths
//
// A save stages the directory under the OS temp dir and then replaces the
// destination as a whole, so a model directory never mixes files from two
// runs.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/fashion-endpoint/internal/dataset"
	"github.com/born-ml/fashion-endpoint/internal/labels"
	"github.com/born-ml/fashion-endpoint/internal/logging"
	"github.com/born-ml/fashion-endpoint/internal/model"
)

// File layout inside a model directory.
const (
	DescriptorFile = "MLmodel"
	DataDir        = "data"
	WeightsFile    = "model.safetensors"
	CodeDir        = "code"
)

// ErrNotBornModel is returned when a directory has no born flavor.
var ErrNotBornModel = errors.New("not a born model directory")

// MLModel is the YAML descriptor stored at the root of a model directory.
type MLModel struct {
	ArtifactPath   string            `yaml:"artifact_path"`
	ModelUUID      string            `yaml:"model_uuid"`
	UTCTimeCreated string            `yaml:"utc_time_created"`
	RunID          string            `yaml:"run_id,omitempty"`
	Flavors        Flavors           `yaml:"flavors"`
	Signature      Signature         `yaml:"signature"`
	Labels         []string          `yaml:"labels"`
	Metadata       map[string]string `yaml:"metadata,omitempty"`
}

// Flavors lists how the model can be loaded.
type Flavors struct {
	Born *BornFlavor `yaml:"born,omitempty"`
}

// BornFlavor describes the Born weights file.
type BornFlavor struct {
	ModelData string `yaml:"model_data"`
	ModelType string `yaml:"model_type"`
	Code      string `yaml:"code,omitempty"`
}

// Signature describes model inputs and outputs. -1 marks the batch axis.
type Signature struct {
	Inputs  []TensorSpec `yaml:"inputs"`
	Outputs []TensorSpec `yaml:"outputs"`
}

// TensorSpec is a named, typed tensor shape.
type TensorSpec struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	Shape []int  `yaml:"shape"`
}

// Options controls what goes into a saved model.
type Options struct {
	// CodePaths are files or directories copied into code/ next to the
	// weights.
	CodePaths []string
	// RunID links the model to a tracked run.
	RunID    string
	Metadata map[string]string
	Logger   *zap.SugaredLogger
}

// Save writes net to modelDir, fully replacing any previous contents.
func Save[B tensor.Backend](modelDir string, net *model.Net[B], opts Options) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	stage := filepath.Join(os.TempDir(), uuid.NewString())
	defer func() {
		err = multierr.Append(err, os.RemoveAll(stage))
	}()

	logger.Infow("Saving model", "path", stage)
	if err := write(stage, net, opts); err != nil {
		return err
	}

	logger.Infow("Copying model", "path", modelDir)
	return replaceDir(stage, modelDir)
}

func write[B tensor.Backend](dir string, net *model.Net[B], opts Options) error {
	if err := os.MkdirAll(filepath.Join(dir, DataDir), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	weights := filepath.Join(dir, DataDir, WeightsFile)
	meta := map[string]string{"model_type": model.TypeName}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	if err := writeWeights(weights, net.StateDict(), meta); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}

	desc := MLModel{
		ArtifactPath:   "model",
		ModelUUID:      uuid.NewString(),
		UTCTimeCreated: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
		RunID:          opts.RunID,
		Flavors: Flavors{Born: &BornFlavor{
			ModelData: filepath.ToSlash(filepath.Join(DataDir, WeightsFile)),
			ModelType: model.TypeName,
		}},
		Signature: Signature{
			Inputs:  []TensorSpec{{Name: "image", DType: "float32", Shape: []int{-1, dataset.ImageSize}}},
			Outputs: []TensorSpec{{Name: "logits", DType: "float32", Shape: []int{-1, labels.NumClasses}}},
		},
		Labels:   labels.Names(),
		Metadata: opts.Metadata,
	}

	if len(opts.CodePaths) > 0 {
		codeDir := filepath.Join(dir, CodeDir)
		if err := os.MkdirAll(codeDir, 0o755); err != nil {
			return err
		}
		for _, src := range opts.CodePaths {
			if err := copyPath(src, filepath.Join(codeDir, filepath.Base(src))); err != nil {
				return fmt.Errorf("copy code path %s: %w", src, err)
			}
		}
		desc.Flavors.Born.Code = CodeDir
	}

	data, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, DescriptorFile), data, 0o644)
}

// ReadDescriptor parses the MLmodel file of modelDir.
func ReadDescriptor(modelDir string) (*MLModel, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, DescriptorFile))
	if err != nil {
		return nil, err
	}
	var desc MLModel
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", DescriptorFile, err)
	}
	if desc.Flavors.Born == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBornModel, modelDir)
	}
	return &desc, nil
}

// Load rebuilds the network stored in modelDir on backend.
func Load[B tensor.Backend](modelDir string, backend B) (*model.Net[B], *MLModel, error) {
	desc, err := ReadDescriptor(modelDir)
	if err != nil {
		return nil, nil, err
	}
	if desc.Flavors.Born.ModelType != model.TypeName {
		return nil, nil, fmt.Errorf("%w: model type %q", ErrNotBornModel, desc.Flavors.Born.ModelType)
	}

	net := model.New(backend)
	weights := filepath.Join(modelDir, filepath.FromSlash(desc.Flavors.Born.ModelData))
	state, err := readWeights(weights, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("load weights: %w", err)
	}
	if err := net.LoadStateDict(state); err != nil {
		return nil, nil, fmt.Errorf("load weights: %w", err)
	}
	return net, desc, nil
}
