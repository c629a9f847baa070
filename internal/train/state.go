// Package train implements the training driver: the distributed step executor,
// the checkpoint and early-stopping policy, the resumable training state, and
// the supervisor that ties them to the process boundary.
package train

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/metrics"
	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/nprand"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
)

// State is the resumable core of a training run. Everything the loop needs to
// continue mid-epoch after a crash lives here or in the model and optimizer
// snapshots persisted alongside it.
type State struct {
	GlobalStep           int64
	EarlyStoppingCounter int

	TrainMetrics *metrics.Set
	TuneMetrics  *metrics.Set

	RNG *nprand.State
}

// NewState creates the state of a fresh run at step zero.
func NewState(numClasses int, seed uint32) *State {
	return &State{
		TrainMetrics: metrics.DefaultSet(numClasses),
		TuneMetrics:  metrics.DefaultSet(numClasses),
		RNG:          nprand.New(seed),
	}
}

// snapshot is the JSON layout of one checkpointed state blob. The blob is
// written in one piece, so a checkpoint is either complete or absent.
type snapshot struct {
	GlobalStep           int64           `json:"global_step"`
	EarlyStoppingCounter int             `json:"early_stopping_counter"`
	TrainMetrics         json.RawMessage `json:"train_metrics"`
	TuneMetrics          json.RawMessage `json:"tune_metrics"`
	RNG                  *nprand.State   `json:"rng"`
	ModelParams          []float64       `json:"model_params"`
	OptimizerState       json.RawMessage `json:"optimizer_state"`
}

// Snapshot serializes the state together with the model parameters and
// optimizer slots into a single blob.
func (s *State) Snapshot(m model.Model, opt optimizer.Optimizer) ([]byte, error) {
	trainBlob, err := s.TrainMetrics.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "snapshotting train metrics")
	}
	tuneBlob, err := s.TuneMetrics.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "snapshotting tune metrics")
	}
	optBlob, err := opt.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "snapshotting optimizer")
	}
	return json.Marshal(snapshot{
		GlobalStep:           s.GlobalStep,
		EarlyStoppingCounter: s.EarlyStoppingCounter,
		TrainMetrics:         trainBlob,
		TuneMetrics:          tuneBlob,
		RNG:                  s.RNG,
		ModelParams:          m.Parameters(),
		OptimizerState:       optBlob,
	})
}

// Restore loads a blob written by Snapshot into the state, the model and the
// optimizer. The collaborators are restored first so a malformed blob leaves
// the scalar fields untouched.
func (s *State) Restore(blob []byte, m model.Model, opt optimizer.Optimizer) error {
	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return errors.Wrap(err, "parsing training snapshot")
	}
	if err := s.TrainMetrics.Restore(snap.TrainMetrics); err != nil {
		return errors.Wrap(err, "restoring train metrics")
	}
	if err := s.TuneMetrics.Restore(snap.TuneMetrics); err != nil {
		return errors.Wrap(err, "restoring tune metrics")
	}
	if err := m.SetParameters(snap.ModelParams); err != nil {
		return errors.Wrap(err, "restoring model parameters")
	}
	if err := opt.Restore(snap.OptimizerState); err != nil {
		return errors.Wrap(err, "restoring optimizer")
	}
	if snap.RNG == nil {
		return errors.New("training snapshot has no rng state")
	}
	*s.RNG = *snap.RNG
	s.GlobalStep = snap.GlobalStep
	s.EarlyStoppingCounter = snap.EarlyStoppingCounter
	return nil
}
