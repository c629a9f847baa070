package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasbrambrink/deepvariant/pkg/check"
)

func TestNewByName(t *testing.T) {
	for _, name := range Names {
		opt, err := New(name, DefaultConfig())
		require.NoError(t, err)
		require.Equal(t, name, opt.Name())
	}

	_, err := New("sgd", DefaultConfig())
	require.ErrorContains(t, err, "unsupported optimizer: sgd")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, check.Validate(DefaultConfig()))

	bad := DefaultConfig()
	bad.Beta1 = 1.5
	require.ErrorContains(t, check.Validate(bad), "beta1 must be in [0, 1]")

	bad = DefaultConfig()
	bad.Epsilon = 0
	require.ErrorContains(t, check.Validate(bad), "epsilon must be positive")
}

// With a constant gradient the bias-corrected moments equal the gradient, so the
// Nadam displacement at step t is lr * (beta1 + (1-beta1)/(1-beta1^t)) toward the
// gradient sign: 1.9*lr on the first step, decaying toward lr.
func TestNadamConstantGradient(t *testing.T) {
	opt := NewNadam(0.9, 0.999, 1e-7)
	params := []float64{1, -2}
	grads := []float64{0.5, -0.5}

	require.NoError(t, opt.Apply(params, grads, 0.01))
	require.InDelta(t, 1-0.019, params[0], 1e-6)
	require.InDelta(t, -2+0.019, params[1], 1e-6)

	// Second step: beta1 + (1-beta1)/(1-0.9^2) = 0.9 + 0.1/0.19.
	require.NoError(t, opt.Apply(params, grads, 0.01))
	require.InDelta(t, 1-0.019-0.01*(0.9+0.1/0.19), params[0], 1e-6)
}

func TestRMSPropFirstStep(t *testing.T) {
	opt := NewRMSProp(0.9, 0.9, 1e-7)
	params := []float64{1}
	grads := []float64{0.1}

	require.NoError(t, opt.Apply(params, grads, 0.01))
	// v = (1-rho)*g^2 = 0.001, step = lr*g/(sqrt(v)+eps) = 0.001/0.0316228.
	require.InDelta(t, 1-0.0316227, params[0], 1e-5)
}

func TestApplyShapeMismatch(t *testing.T) {
	opt := NewNadam(0.9, 0.999, 1e-7)
	err := opt.Apply([]float64{1, 2}, []float64{1}, 0.01)
	require.ErrorContains(t, err, "gradient length 1 does not match parameter length 2")

	require.NoError(t, opt.Apply([]float64{1, 2}, []float64{0.1, 0.1}, 0.01))
	err = opt.Apply([]float64{1}, []float64{0.1}, 0.01)
	require.ErrorContains(t, err, "slot length 2 does not match parameter length 1")
}

func TestSnapshotRestoreResumesStream(t *testing.T) {
	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			live, err := New(name, DefaultConfig())
			require.NoError(t, err)

			params := []float64{0.5, -0.5, 1.5}
			grads := []float64{0.1, -0.2, 0.3}
			for i := 0; i < 3; i++ {
				require.NoError(t, live.Apply(params, grads, 0.01))
			}

			blob, err := live.Snapshot()
			require.NoError(t, err)
			restored, err := New(name, DefaultConfig())
			require.NoError(t, err)
			require.NoError(t, restored.Restore(blob))

			fromLive := append([]float64(nil), params...)
			fromRestored := append([]float64(nil), params...)
			require.NoError(t, live.Apply(fromLive, grads, 0.005))
			require.NoError(t, restored.Apply(fromRestored, grads, 0.005))
			require.Equal(t, fromLive, fromRestored)
		})
	}
}
