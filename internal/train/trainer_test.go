package train

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasbrambrink/deepvariant/internal/config"
	"github.com/lucasbrambrink/deepvariant/internal/sink"
	"github.com/lucasbrambrink/deepvariant/pkg/check"
	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/modeling"
	"github.com/lucasbrambrink/deepvariant/pkg/ptrs"
)

func writeDatasetConfig(t *testing.T, dir, name string, numExamples int) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	body := fmt.Sprintf("name: %s\npath: synthetic\nnum_examples: %d\n", name, numExamples)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// newRunConfig builds a small synthetic run rooted in dir: 30 examples, batch
// size 10, so each epoch is 3 steps.
func newRunConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	conf := config.DefaultConfig()
	conf.ExperimentDir = filepath.Join(dir, "experiment")
	conf.TrainDataset = writeDatasetConfig(t, dir, "train", 30)
	conf.TuneDataset = writeDatasetConfig(t, dir, "tune", 30)
	conf.BatchSize = 10
	conf.NumEpochs = 2
	conf.LogEverySteps = 3
	conf.InitialLearningRate = 0.05
	conf.Seed = 19
	conf.CheckpointStorage.SharedFSConfig = &model.SharedFSConfig{
		HostPath:    dir,
		StoragePath: ptrs.Ptr("checkpoints"),
	}
	require.NoError(t, conf.Resolve())
	require.NoError(t, check.Validate(conf))
	return conf
}

func readMetrics(t *testing.T, experimentDir string) []sink.Record {
	t.Helper()
	bs, err := os.ReadFile(filepath.Join(experimentDir, sink.MetricsFileName))
	require.NoError(t, err)
	var records []sink.Record
	for _, line := range strings.Split(strings.TrimSpace(string(bs)), "\n") {
		if line == "" {
			continue
		}
		var r sink.Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		records = append(records, r)
	}
	return records
}

func TestTrainerRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	conf := newRunConfig(t, dir)
	ctx := context.Background()

	trainer, err := NewTrainer(ctx, conf, "run-1")
	require.NoError(t, err)
	require.NoError(t, trainer.Run(ctx))
	require.NoError(t, trainer.Close())

	// The sidecar was copied into the experiment directory.
	_, err = os.Stat(filepath.Join(conf.ExperimentDir, model.ExampleInfoName))
	require.NoError(t, err)

	// Exactly one export, holding the weights and the sidecar.
	exports, err := os.ReadDir(filepath.Join(conf.ExperimentDir, "export"))
	require.NoError(t, err)
	require.Len(t, exports, 1)
	exportDir := filepath.Join(conf.ExperimentDir, "export", exports[0].Name())
	_, err = os.Stat(filepath.Join(exportDir, modeling.WeightsFileName))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(exportDir, model.ExampleInfoName))
	require.NoError(t, err)

	// Both metric families were published, and the final train window flushed
	// on the last step of the run.
	records := readMetrics(t, conf.ExperimentDir)
	require.NotEmpty(t, records)
	var sawTune bool
	var lastTrainStep int64
	for _, r := range records {
		if _, ok := r.Scalars["train/loss"]; ok {
			lastTrainStep = r.Step
			require.Contains(t, r.Scalars, "train/learning_rate")
			require.Contains(t, r.Scalars, "epoch")
		}
		if _, ok := r.Scalars["tune/f1_weighted"]; ok {
			sawTune = true
		}
	}
	require.True(t, sawTune)
	require.EqualValues(t, 6, lastTrainStep)

	// At least one tune pass improved on the empty baseline.
	ckpts, err := os.ReadDir(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	require.NotEmpty(t, ckpts)
}

func TestTrainerResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	conf := newRunConfig(t, dir)
	ctx := context.Background()

	first, err := NewTrainer(ctx, conf, "run-1")
	require.NoError(t, err)
	require.NoError(t, first.Run(ctx))
	require.NoError(t, first.Close())

	// Lengthening the run and relaunching continues from the saved step
	// instead of starting over.
	conf.NumEpochs = 4
	second, err := NewTrainer(ctx, conf, "run-2")
	require.NoError(t, err)
	resumedAt := second.state.GlobalStep
	require.Positive(t, resumedAt)
	require.EqualValues(t, 12, second.numTrainSteps)

	require.NoError(t, second.Run(ctx))
	require.NoError(t, second.Close())

	// The extended run flushed a train window at its final step.
	var lastTrainStep int64
	for _, r := range readMetrics(t, conf.ExperimentDir) {
		if _, ok := r.Scalars["train/loss"]; ok && r.Step > lastTrainStep {
			lastTrainStep = r.Step
		}
	}
	require.EqualValues(t, 12, lastTrainStep)
}

func TestTrainerEarlyStoppingEndsRun(t *testing.T) {
	dir := t.TempDir()
	conf := newRunConfig(t, dir)
	conf.NumEpochs = 50
	conf.TuneEverySteps = 1
	conf.EarlyStoppingPatience = 2
	ctx := context.Background()

	trainer, err := NewTrainer(ctx, conf, "run-1")
	require.NoError(t, err)
	require.NoError(t, trainer.Run(ctx))
	require.NoError(t, trainer.Close())

	// With a tune pass after every step and patience 2, the run stops at the
	// second consecutive plateau instead of grinding through 150 steps.
	var lastTuneStep int64
	for _, r := range readMetrics(t, conf.ExperimentDir) {
		if _, ok := r.Scalars["tune/f1_weighted"]; ok && r.Step > lastTuneStep {
			lastTuneStep = r.Step
			require.Contains(t, r.Scalars, "tune/early_stopping")
		}
	}
	require.Positive(t, lastTuneStep)
	require.Less(t, lastTuneStep, int64(150))
}

func TestTrainerMissingDatasetIsFatal(t *testing.T) {
	conf := newRunConfig(t, t.TempDir())
	conf.TrainDataset = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := NewTrainer(context.Background(), conf, "run-1")
	require.Error(t, err)
	require.False(t, IsTransient(err))
}

func TestTrainerStorageFailureIsTransient(t *testing.T) {
	dir := t.TempDir()
	conf := newRunConfig(t, dir)
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	conf.CheckpointStorage.SharedFSConfig = &model.SharedFSConfig{HostPath: blocker}

	_, err := NewTrainer(context.Background(), conf, "run-1")
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestTrainerRejectsUndersizedDatasets(t *testing.T) {
	dir := t.TempDir()
	conf := newRunConfig(t, dir)
	conf.TuneDataset = writeDatasetConfig(t, dir, "tiny", 5)

	_, err := NewTrainer(context.Background(), conf, "run-1")
	require.ErrorContains(t, err, "no full batch")
}
