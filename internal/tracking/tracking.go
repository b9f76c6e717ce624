// Package tracking records training runs on the local filesystem.
//
// The layout follows MLflow's file store so existing tooling can read it:
//
//	<root>/<experiment-id>/meta.yaml
//	<root>/<experiment-id>/<run-id>/meta.yaml
//	<root>/<experiment-id>/<run-id>/metrics/<key>   "<unix-millis> <value> <step>" per line
//	<root>/<experiment-id>/<run-id>/params/<key>
package tracking

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Run statuses.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// ErrInvalidMetric is returned for NaN or infinite metric values.
var ErrInvalidMetric = errors.New("invalid metric value")

// ExperimentMeta is the content of an experiment's meta.yaml.
type ExperimentMeta struct {
	ExperimentID   string `yaml:"experiment_id"`
	Name           string `yaml:"name"`
	ArtifactLoc    string `yaml:"artifact_location"`
	LifecycleStage string `yaml:"lifecycle_stage"`
	CreationTime   int64  `yaml:"creation_time"`
}

// RunMeta is the content of a run's meta.yaml.
type RunMeta struct {
	RunID          string `yaml:"run_id"`
	ExperimentID   string `yaml:"experiment_id"`
	Status         string `yaml:"status"`
	StartTime      int64  `yaml:"start_time"`
	EndTime        int64  `yaml:"end_time,omitempty"`
	ArtifactURI    string `yaml:"artifact_uri"`
	LifecycleStage string `yaml:"lifecycle_stage"`
}

// Experiment groups runs under a named directory.
type Experiment struct {
	Meta ExperimentMeta
	dir  string
}

// Metric is one recorded metric value.
type Metric struct {
	Timestamp int64
	Value     float64
	Step      int
}

// Open returns the experiment called name under root, creating it when
// it does not exist yet.
func Open(root, name string) (*Experiment, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create tracking root: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	maxID := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta ExperimentMeta
		if err := readYAML(filepath.Join(root, e.Name(), "meta.yaml"), &meta); err != nil {
			continue
		}
		if meta.Name == name {
			return &Experiment{Meta: meta, dir: filepath.Join(root, e.Name())}, nil
		}
		if id, err := strconv.Atoi(meta.ExperimentID); err == nil && id > maxID {
			maxID = id
		}
	}

	id := strconv.Itoa(maxID + 1)
	dir := filepath.Join(root, id)
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	meta := ExperimentMeta{
		ExperimentID:   id,
		Name:           name,
		ArtifactLoc:    absDir,
		LifecycleStage: "active",
		CreationTime:   nowMillis(),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := writeYAML(filepath.Join(dir, "meta.yaml"), meta); err != nil {
		return nil, err
	}
	return &Experiment{Meta: meta, dir: dir}, nil
}

// StartRun creates a new run in the RUNNING state.
func (e *Experiment) StartRun() (*Run, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := filepath.Join(e.dir, id)
	for _, sub := range []string{"metrics", "params", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}
	r := &Run{
		Meta: RunMeta{
			RunID:          id,
			ExperimentID:   e.Meta.ExperimentID,
			Status:         StatusRunning,
			StartTime:      nowMillis(),
			ArtifactURI:    filepath.Join(e.Meta.ArtifactLoc, id, "artifacts"),
			LifecycleStage: "active",
		},
		dir: dir,
	}
	if err := r.writeMeta(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithRun starts a run, records params and calls fn with it. The run ends
// FINISHED when fn returns nil and FAILED on any error, including one from
// logging the params.
func (e *Experiment) WithRun(params map[string]string, fn func(*Run) error) (err error) {
	r, err := e.StartRun()
	if err != nil {
		return err
	}
	defer func() {
		status := StatusFinished
		if err != nil {
			status = StatusFailed
		}
		err = multierr.Append(err, r.End(status))
	}()

	if err := r.LogParams(params); err != nil {
		return err
	}
	return fn(r)
}

// Run is a single tracked training run.
type Run struct {
	Meta RunMeta
	dir  string
}

// Dir returns the run directory.
func (r *Run) Dir() string {
	return r.dir
}

// LogParams records string parameters.
func (r *Run) LogParams(params map[string]string) error {
	for key, value := range params {
		if err := validKey(key); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(r.dir, "params", key), []byte(value), 0o644); err != nil {
			return fmt.Errorf("log param %s: %w", key, err)
		}
	}
	return nil
}

// LogMetrics appends one value per metric at the given step.
func (r *Run) LogMetrics(metrics map[string]float64, step int) error {
	keys := make([]string, 0, len(metrics))
	for key, value := range metrics {
		if err := validKey(key); err != nil {
			return err
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidMetric, key, value)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ts := nowMillis()
	for _, key := range keys {
		line := fmt.Sprintf("%d %s %d\n", ts, strconv.FormatFloat(metrics[key], 'g', -1, 64), step)
		if err := appendFile(filepath.Join(r.dir, "metrics", key), line); err != nil {
			return fmt.Errorf("log metric %s: %w", key, err)
		}
	}
	return nil
}

// ReadMetric returns the history of a metric in logging order.
func (r *Run) ReadMetric(key string) (history []Metric, err error) {
	f, err := os.Open(filepath.Join(r.dir, "metrics", key))
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s line %d: want 3 fields, got %d", key, lineNo, len(fields))
		}
		var m Metric
		if m.Timestamp, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", key, lineNo, err)
		}
		if m.Value, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", key, lineNo, err)
		}
		if m.Step, err = strconv.Atoi(fields[2]); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", key, lineNo, err)
		}
		history = append(history, m)
	}
	return history, scanner.Err()
}

// End marks the run finished with the given status.
func (r *Run) End(status string) error {
	r.Meta.Status = status
	r.Meta.EndTime = nowMillis()
	return r.writeMeta()
}

func (r *Run) writeMeta() error {
	return writeYAML(filepath.Join(r.dir, "meta.yaml"), r.Meta)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func appendFile(path, s string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	_, err = f.WriteString(s)
	return err
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
