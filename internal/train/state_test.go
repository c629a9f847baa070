package train

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/modeling"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
)

const (
	testFeatureWidth = 4
	testNumClasses   = 3
)

func newTestFixture(t *testing.T, seed uint32) (*State, model.Backprop, optimizer.Optimizer) {
	t.Helper()
	state := NewState(testNumClasses, seed)
	m, err := modeling.New("linear", testFeatureWidth, testNumClasses, state.RNG)
	require.NoError(t, err)
	opt, err := optimizer.New("nadam", optimizer.DefaultConfig())
	require.NoError(t, err)
	return state, m, opt
}

func TestStateSnapshotRoundTrip(t *testing.T) {
	state, m, opt := newTestFixture(t, 7)

	// Drive the run forward so every persisted field is non-trivial.
	state.TrainMetrics.Update([][]float64{{0.8, 0.1, 0.1}, {0.2, 0.1, 0.7}}, []int{0, 2})
	state.TrainMetrics.ObserveLoss(0.41)
	state.TuneMetrics.Update([][]float64{{0.1, 0.8, 0.1}}, []int{1})
	state.TuneMetrics.ObserveLoss(0.38)
	state.GlobalStep = 1234
	state.EarlyStoppingCounter = 2
	state.RNG.Gauss()

	params := m.Parameters()
	require.NoError(t, opt.Apply(params, make([]float64, len(params)), 0.001))
	require.NoError(t, m.SetParameters(params))

	blob, err := state.Snapshot(m, opt)
	require.NoError(t, err)

	restored, restoredModel, restoredOpt := newTestFixture(t, 99)
	require.NoError(t, restored.Restore(blob, restoredModel, restoredOpt))

	require.Equal(t, state.GlobalStep, restored.GlobalStep)
	require.Equal(t, state.EarlyStoppingCounter, restored.EarlyStoppingCounter)
	require.Equal(t, m.Parameters(), restoredModel.Parameters())
	require.Equal(t, state.TrainMetrics.Results(), restored.TrainMetrics.Results())
	require.Equal(t, state.TuneMetrics.Results(), restored.TuneMetrics.Results())

	// The generator stream continues exactly where the snapshot left it.
	require.Equal(t, state.RNG.Gauss(), restored.RNG.Gauss())

	wantOpt, err := opt.Snapshot()
	require.NoError(t, err)
	gotOpt, err := restoredOpt.Snapshot()
	require.NoError(t, err)
	require.JSONEq(t, string(wantOpt), string(gotOpt))
}

func TestStateRestoreRejectsGarbage(t *testing.T) {
	state, m, opt := newTestFixture(t, 3)
	require.Error(t, state.Restore([]byte("{"), m, opt))
	require.EqualValues(t, 0, state.GlobalStep)
}

func TestStateRestoreRequiresRNG(t *testing.T) {
	state, m, opt := newTestFixture(t, 3)
	trainBlob, err := state.TrainMetrics.Snapshot()
	require.NoError(t, err)
	tuneBlob, err := state.TuneMetrics.Snapshot()
	require.NoError(t, err)
	optBlob, err := opt.Snapshot()
	require.NoError(t, err)

	blob, err := json.Marshal(snapshot{
		GlobalStep:     42,
		TrainMetrics:   trainBlob,
		TuneMetrics:    tuneBlob,
		ModelParams:    m.Parameters(),
		OptimizerState: optBlob,
	})
	require.NoError(t, err)

	err = state.Restore(blob, m, opt)
	require.ErrorContains(t, err, "rng")
	require.EqualValues(t, 0, state.GlobalStep)
}
