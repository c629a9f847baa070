package optimizer

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// RMSProp scales gradients by a decaying root-mean-square of their history and
// folds the scaled step into a momentum buffer.
type RMSProp struct {
	rho      float64
	momentum float64
	epsilon  float64

	state rmsPropState
}

type rmsPropState struct {
	V   []float64 `json:"v"`
	Mom []float64 `json:"momentum"`
}

// NewRMSProp creates an RMSProp optimizer.
func NewRMSProp(rho, momentum, epsilon float64) *RMSProp {
	return &RMSProp{rho: rho, momentum: momentum, epsilon: epsilon}
}

// Name implements the Optimizer interface.
func (r *RMSProp) Name() string { return "rmsprop" }

// Apply implements the Optimizer interface.
func (r *RMSProp) Apply(params, grads []float64, lr float64) error {
	if err := ensureSlots(params, grads, &r.state.V, &r.state.Mom); err != nil {
		return errors.Wrap(err, "rmsprop")
	}

	for i, g := range grads {
		r.state.V[i] = r.rho*r.state.V[i] + (1-r.rho)*g*g
		r.state.Mom[i] = r.momentum*r.state.Mom[i] + lr*g/(math.Sqrt(r.state.V[i])+r.epsilon)
		params[i] -= r.state.Mom[i]
	}
	return nil
}

// Snapshot implements the Optimizer interface.
func (r *RMSProp) Snapshot() (json.RawMessage, error) {
	return json.Marshal(r.state)
}

// Restore implements the Optimizer interface.
func (r *RMSProp) Restore(snapshot json.RawMessage) error {
	if err := json.Unmarshal(snapshot, &r.state); err != nil {
		return errors.Wrap(err, "restoring rmsprop state")
	}
	return nil
}
