package train

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lucasbrambrink/deepvariant/internal/config"
	"github.com/lucasbrambrink/deepvariant/internal/sink"
	"github.com/lucasbrambrink/deepvariant/pkg/checkpoint"
	"github.com/lucasbrambrink/deepvariant/pkg/datasets"
	"github.com/lucasbrambrink/deepvariant/pkg/mmath"
	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/modeling"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
	"github.com/lucasbrambrink/deepvariant/pkg/schedule"
)

// Trainer owns one training run: the model and optimizer, the datasets, the
// step executor, the checkpoint policy and the metric sinks. It restores the
// latest checkpoint on construction, so relaunching a crashed process continues
// the run mid-epoch instead of starting over.
type Trainer struct {
	conf *config.Config
	log  *log.Entry

	state    *State
	model    model.Backprop
	opt      optimizer.Optimizer
	sched    schedule.Schedule
	executor *Executor

	info    *model.ExampleInfo
	trainDS model.Dataset
	tuneDS  model.Dataset

	manager    *checkpoint.Manager
	controller *Controller
	shipper    *sink.Shipper
	progress   *Reporter

	stepsPerEpoch int64
	numTrainSteps int64
	stepsPerTune  int64
}

// NewTrainer builds a run from the resolved configuration. Configuration and
// dataset problems are fatal; checkpoint storage problems are transient, since
// the run can resume once the backend recovers.
func NewTrainer(ctx context.Context, conf *config.Config, runID string) (*Trainer, error) {
	t := &Trainer{
		conf: conf,
		log:  log.WithFields(log.Fields{"component": "trainer", "run-id": runID}),
	}

	trainConfig, err := model.ReadDatasetConfig(conf.TrainDataset)
	if err != nil {
		return nil, err
	}
	tuneConfig, err := model.ReadDatasetConfig(conf.TuneDataset)
	if err != nil {
		return nil, err
	}

	if trainConfig.Path == datasets.SyntheticPath {
		t.info = datasets.SyntheticInfo()
	} else if t.info, err = model.ReadExampleInfo(trainConfig.Path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.ExperimentDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating experiment dir %s", conf.ExperimentDir)
	}
	if err := t.info.WriteTo(conf.ExperimentDir); err != nil {
		return nil, err
	}

	t.state = NewState(conf.NumClasses, conf.Seed)
	if t.model, err = modeling.New(
		conf.Model, t.info.FeatureWidth(), conf.NumClasses, t.state.RNG,
	); err != nil {
		return nil, err
	}

	if t.trainDS, err = datasets.Open(
		trainConfig, t.info.FeatureWidth(), conf.NumClasses, conf.Seed,
	); err != nil {
		return nil, err
	}
	// The tune dataset gets its own stream so synthetic tune examples differ
	// from the train ones.
	if t.tuneDS, err = datasets.Open(
		tuneConfig, t.info.FeatureWidth(), conf.NumClasses, conf.Seed+1,
	); err != nil {
		return nil, err
	}

	if err := t.resolveSteps(trainConfig, tuneConfig); err != nil {
		return nil, err
	}

	decaySteps := mmath.Max(int64(math.Round(float64(t.stepsPerEpoch)*conf.NumEpochsPerDecay)), 1)
	t.sched = schedule.New(schedule.Config{
		InitialRate: conf.InitialLearningRate,
		DecayRate:   conf.LearningRateDecay,
		DecaySteps:  decaySteps,
		WarmupSteps: conf.WarmupSteps,
	})
	if t.opt, err = optimizer.New(conf.Optimizer, conf.OptimizerParams); err != nil {
		return nil, err
	}
	t.executor = NewExecutor(
		t.model, t.opt, t.sched, conf.NumReplicas, conf.BatchSize, conf.LabelSmoothing)

	store, err := checkpoint.New(ctx, &conf.CheckpointStorage)
	if err != nil {
		return nil, Transient(err)
	}
	t.manager = checkpoint.NewManager(store, conf.CheckpointStorage.MaxToKeep)

	if err := t.restoreOrInit(ctx); err != nil {
		_ = t.manager.Close()
		return nil, err
	}

	if t.controller, err = NewController(
		t.manager, t.state, strings.TrimPrefix(conf.BestCheckpointMetric, "tune/"),
		conf.EarlyStoppingPatience,
	); err != nil {
		_ = t.manager.Close()
		return nil, err
	}

	writer, err := sink.NewJSONLWriter(conf.ExperimentDir)
	if err != nil {
		_ = t.manager.Close()
		return nil, err
	}
	sinks := []sink.Sink{writer}
	if conf.MetricsGatewayURL != "" {
		sinks = append(sinks, sink.NewPushgateway(conf.MetricsGatewayURL, runID))
	}
	t.shipper = sink.NewShipper(sinks...)

	t.progress = NewReporter(
		t.numTrainSteps, time.Duration(conf.ProgressEverySeconds)*time.Second)
	return t, nil
}

// resolveSteps derives the step counts of the run from the dataset sizes.
// Partial trailing batches are never formed; datasets wrap around instead.
func (t *Trainer) resolveSteps(trainConfig, tuneConfig *model.DatasetConfig) error {
	trainExamples := trainConfig.NumExamples
	if t.conf.Limit > 0 && t.conf.Limit < trainExamples {
		trainExamples = t.conf.Limit
	}
	t.stepsPerEpoch = int64(trainExamples / t.conf.BatchSize)
	if t.stepsPerEpoch < 1 {
		return errors.Errorf("train dataset %s yields no full batch: %d examples, batch size %d",
			trainConfig.Name, trainExamples, t.conf.BatchSize)
	}
	t.numTrainSteps = t.stepsPerEpoch * int64(t.conf.NumEpochs)

	tuneExamples := tuneConfig.NumExamples
	if t.conf.NumValidationExamples > 0 {
		tuneExamples = t.conf.NumValidationExamples
	}
	if t.conf.Limit > 0 && t.conf.Limit < tuneExamples {
		tuneExamples = t.conf.Limit
	}
	t.stepsPerTune = int64(tuneExamples / t.conf.BatchSize)
	if t.stepsPerTune < 1 {
		return errors.Errorf("tune dataset %s yields no full batch: %d examples, batch size %d",
			tuneConfig.Name, tuneExamples, t.conf.BatchSize)
	}
	return nil
}

// restoreOrInit loads the latest checkpoint into the freshly built
// collaborators, or leaves them at their seeded initialization when the run has
// no checkpoints yet.
func (t *Trainer) restoreOrInit(ctx context.Context) error {
	exists, err := t.manager.Exists(ctx)
	if err != nil {
		return Transient(err)
	}
	if !exists {
		t.log.Info("no checkpoint found, starting fresh run")
		return nil
	}
	snap, err := t.manager.RestoreLatest(ctx)
	if err != nil {
		return Transient(err)
	}
	if err := t.state.Restore(snap.State, t.model, t.opt); err != nil {
		return err
	}
	t.log.WithFields(log.Fields{
		"step":       t.state.GlobalStep,
		"checkpoint": snap.Metadata.ID,
	}).Info("restored checkpoint, resuming run")
	return nil
}

// Run drives the training loop from the current global step to the end of the
// run, then exports the best model.
func (t *Trainer) Run(ctx context.Context) error {
	t.log.WithFields(log.Fields{
		"train-dataset":   t.trainDS.Name(),
		"tune-dataset":    t.tuneDS.Name(),
		"strategy":        t.conf.Strategy,
		"replicas":        t.conf.NumReplicas,
		"steps":           t.numTrainSteps,
		"steps-per-epoch": t.stepsPerEpoch,
	}).Info("starting training loop")

	start := t.state.GlobalStep
	stopped := false
	for step := t.state.GlobalStep; step < t.numTrainSteps && !stopped; step = t.state.GlobalStep {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step%t.stepsPerEpoch == 0 {
			t.log.Infof("starting epoch %d", step/t.stepsPerEpoch+1)
		}

		batch, err := t.trainDS.Batch(int(step), t.conf.BatchSize)
		if err != nil {
			return err
		}
		loss, err := t.executor.TrainStep(ctx, t.state, batch)
		if err != nil {
			return err
		}

		completed := t.state.GlobalStep
		if completed-start <= 5 {
			t.log.WithFields(log.Fields{"step": completed, "loss": loss}).
				Info("finished train step")
		}
		t.progress.Observe(completed)

		isLast := completed >= t.numTrainSteps
		if completed%t.conf.LogEverySteps == 0 || isLast {
			t.flushTrain(completed)
		}
		if t.shouldTune(completed, isLast) {
			decision, err := t.tunePass(ctx, completed)
			if err != nil {
				return err
			}
			if decision.Stop {
				t.log.WithField("step", completed).
					Info("early stopping triggered, ending training")
				stopped = true
			}
		}
	}

	return t.finish(ctx)
}

// shouldTune reports whether a tune pass runs after the given completed step:
// at every epoch boundary, on the optional fixed cadence, and on the final
// step.
func (t *Trainer) shouldTune(step int64, isLast bool) bool {
	if step%t.stepsPerEpoch == 0 {
		return true
	}
	if t.conf.TuneEverySteps > 0 && step%t.conf.TuneEverySteps == 0 {
		return true
	}
	return isLast
}

// flushTrain publishes the train metric window ending at step and starts a new
// window.
func (t *Trainer) flushTrain(step int64) {
	scalars := make(map[string]float64)
	for _, res := range t.state.TrainMetrics.Results() {
		scalars["train/"+res.Name] = res.Value
	}
	scalars["train/learning_rate"] = t.sched.Rate(step)
	scalars["epoch"] = float64(step) / float64(t.stepsPerEpoch)
	t.shipper.Publish(sink.Record{Step: step, Time: time.Now().UTC(), Scalars: scalars})
	t.state.TrainMetrics.Reset()
}

// tunePass evaluates the full tune set, asks the controller for a verdict and
// publishes the tune metrics. The accumulators are reset at the start of the
// pass rather than the end, so a restored snapshot still carries the values the
// controller's baseline was seeded from.
func (t *Trainer) tunePass(ctx context.Context, step int64) (Decision, error) {
	t.state.TuneMetrics.Reset()
	for k := int64(0); k < t.stepsPerTune; k++ {
		batch, err := t.tuneDS.Batch(int(k), t.conf.BatchSize)
		if err != nil {
			return Decision{}, err
		}
		if _, err := t.executor.TuneStep(ctx, t.state, batch); err != nil {
			return Decision{}, err
		}
	}

	decision, err := t.controller.Observe(ctx, t.state, t.model, t.opt)
	if err != nil {
		return Decision{}, err
	}

	scalars := make(map[string]float64)
	for _, res := range t.state.TuneMetrics.Results() {
		scalars["tune/"+res.Name] = res.Value
	}
	if t.conf.EarlyStoppingPatience > 0 {
		scalars["tune/early_stopping"] = float64(t.state.EarlyStoppingCounter)
	}
	t.shipper.Publish(sink.Record{Step: step, Time: time.Now().UTC(), Scalars: scalars})
	return decision, nil
}

// finish restores the best checkpoint and exports a servable model next to the
// run's metrics. A run that never improved exports whatever the live state is,
// with a warning.
func (t *Trainer) finish(ctx context.Context) error {
	snap, err := t.manager.RestoreLatest(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		t.log.Warn("no checkpoint was saved during training, exporting the live state")
	case err != nil:
		return Transient(err)
	default:
		if err := t.state.Restore(snap.State, t.model, t.opt); err != nil {
			return err
		}
		t.log.WithField("step", t.state.GlobalStep).
			Info("restoring best checkpoint for export")
	}

	exporter, ok := t.model.(model.Exporter)
	if !ok {
		return errors.Errorf("model %s does not support export", t.model.Name())
	}
	exportDir := filepath.Join(
		t.conf.ExperimentDir, "export", fmt.Sprintf("model-%d", t.state.GlobalStep))
	if err := exporter.Export(exportDir); err != nil {
		return err
	}
	if err := t.info.WriteTo(exportDir); err != nil {
		return err
	}
	t.log.WithField("dir", exportDir).Info("exported model")
	return nil
}

// Close flushes the metric sinks and releases the checkpoint store.
func (t *Trainer) Close() error {
	var merr *multierror.Error
	merr = multierror.Append(merr, t.shipper.Close())
	merr = multierror.Append(merr, t.manager.Close())
	return merr.ErrorOrNil()
}
