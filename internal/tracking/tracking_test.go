package tracking

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_ReusesExperimentByName(t *testing.T) {
	root := t.TempDir()

	first, err := Open(root, "fashion")
	require.NoError(t, err)
	assert.Equal(t, "0", first.Meta.ExperimentID)

	other, err := Open(root, "digits")
	require.NoError(t, err)
	assert.Equal(t, "1", other.Meta.ExperimentID)

	again, err := Open(root, "fashion")
	require.NoError(t, err)
	assert.Equal(t, first.Meta, again.Meta)
}

func TestRun_LogMetrics(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)
	run, err := exp.StartRun()
	require.NoError(t, err)

	for step := 0; step < 3; step++ {
		require.NoError(t, run.LogMetrics(map[string]float64{
			"training_loss":     1.0 / float64(step+1),
			"training_accuracy": 0.5 + 0.1*float64(step),
		}, step))
	}

	history, err := run.ReadMetric("training_loss")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, m := range history {
		assert.Equal(t, i, m.Step)
		assert.InDelta(t, 1.0/float64(i+1), m.Value, 1e-12)
		assert.Positive(t, m.Timestamp)
	}
}

func TestRun_LogMetricsRejectsNaN(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)
	run, err := exp.StartRun()
	require.NoError(t, err)

	err = run.LogMetrics(map[string]float64{"validation_loss": math.NaN()}, 0)
	assert.ErrorIs(t, err, ErrInvalidMetric)

	err = run.LogMetrics(map[string]float64{"../escape": 1}, 0)
	assert.Error(t, err)
}

func TestRun_ParamsAndEnd(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)
	run, err := exp.StartRun()
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Meta.Status)

	require.NoError(t, run.LogParams(map[string]string{"epochs": "5"}))
	data, err := os.ReadFile(filepath.Join(run.Dir(), "params", "epochs"))
	require.NoError(t, err)
	assert.Equal(t, "5", string(data))

	require.NoError(t, run.End(StatusFinished))
	var meta RunMeta
	require.NoError(t, readYAML(filepath.Join(run.Dir(), "meta.yaml"), &meta))
	assert.Equal(t, StatusFinished, meta.Status)
	assert.GreaterOrEqual(t, meta.EndTime, meta.StartTime)
	assert.Equal(t, run.Meta.RunID, meta.RunID)
}

func runStatuses(t *testing.T, exp *Experiment) []string {
	t.Helper()
	entries, err := os.ReadDir(exp.dir)
	require.NoError(t, err)
	var statuses []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta RunMeta
		require.NoError(t, readYAML(filepath.Join(exp.dir, e.Name(), "meta.yaml"), &meta))
		statuses = append(statuses, meta.Status)
	}
	return statuses
}

func TestWithRun_Finished(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)

	var seen *Run
	err = exp.WithRun(map[string]string{"epochs": "5"}, func(r *Run) error {
		seen = r
		return r.LogMetrics(map[string]float64{"training_loss": 0.4}, 0)
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, StatusFinished, seen.Meta.Status)
	assert.Equal(t, []string{StatusFinished}, runStatuses(t, exp))
}

func TestWithRun_FailedWork(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = exp.WithRun(nil, func(*Run) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{StatusFailed}, runStatuses(t, exp))
}

func TestWithRun_ParamsFailureEndsRun(t *testing.T) {
	exp, err := Open(t.TempDir(), "fashion")
	require.NoError(t, err)

	called := false
	err = exp.WithRun(map[string]string{"bad/key": "x"}, func(*Run) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, []string{StatusFailed}, runStatuses(t, exp))
}
