package optimizer

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Nadam is Adam with Nesterov momentum. The bias-corrected first moment is
// blended with the current gradient before the adaptive scaling, so the update
// looks one momentum step ahead.
type Nadam struct {
	beta1   float64
	beta2   float64
	epsilon float64

	state nadamState
}

type nadamState struct {
	Step int64     `json:"step"`
	M    []float64 `json:"m"`
	V    []float64 `json:"v"`
}

// NewNadam creates a Nadam optimizer.
func NewNadam(beta1, beta2, epsilon float64) *Nadam {
	return &Nadam{beta1: beta1, beta2: beta2, epsilon: epsilon}
}

// Name implements the Optimizer interface.
func (n *Nadam) Name() string { return "nadam" }

// Apply implements the Optimizer interface.
func (n *Nadam) Apply(params, grads []float64, lr float64) error {
	if err := ensureSlots(params, grads, &n.state.M, &n.state.V); err != nil {
		return errors.Wrap(err, "nadam")
	}

	n.state.Step++
	t := float64(n.state.Step)
	mCorr := 1 - math.Pow(n.beta1, t)
	vCorr := 1 - math.Pow(n.beta2, t)

	for i, g := range grads {
		n.state.M[i] = n.beta1*n.state.M[i] + (1-n.beta1)*g
		n.state.V[i] = n.beta2*n.state.V[i] + (1-n.beta2)*g*g

		mHat := n.state.M[i] / mCorr
		vHat := n.state.V[i] / vCorr
		nesterov := n.beta1*mHat + (1-n.beta1)*g/mCorr
		params[i] -= lr * nesterov / (math.Sqrt(vHat) + n.epsilon)
	}
	return nil
}

// Snapshot implements the Optimizer interface.
func (n *Nadam) Snapshot() (json.RawMessage, error) {
	return json.Marshal(n.state)
}

// Restore implements the Optimizer interface.
func (n *Nadam) Restore(snapshot json.RawMessage) error {
	if err := json.Unmarshal(snapshot, &n.state); err != nil {
		return errors.Wrap(err, "restoring nadam state")
	}
	return nil
}
