// Package optimizer implements the parameter-update rules the driver supports.
// Slot state (momentum and variance buffers) is JSON-persistable so optimizer
// history survives checkpoint restore alongside the parameters it refers to.
package optimizer

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/check"
)

// Optimizer applies one gradient step to a flat parameter vector in place.
type Optimizer interface {
	Name() string
	Apply(params, grads []float64, lr float64) error
	Snapshot() (json.RawMessage, error)
	Restore(snapshot json.RawMessage) error
}

// Names lists the supported optimizer names.
var Names = []string{"nadam", "rmsprop"}

// Config holds the optimizer hyperparameters. Beta1/Beta2 drive nadam,
// Rho/Momentum drive rmsprop, Epsilon stabilizes both.
type Config struct {
	Beta1    float64 `json:"beta1"`
	Beta2    float64 `json:"beta2"`
	Rho      float64 `json:"rho"`
	Momentum float64 `json:"momentum"`
	Epsilon  float64 `json:"epsilon"`
}

// DefaultConfig returns the default optimizer hyperparameters.
func DefaultConfig() Config {
	return Config{
		Beta1:    0.9,
		Beta2:    0.999,
		Rho:      0.9,
		Momentum: 0.9,
		Epsilon:  1e-7,
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	return []error{
		check.BetweenInclusive(c.Beta1, 0, 1, "beta1 must be in [0, 1]"),
		check.BetweenInclusive(c.Beta2, 0, 1, "beta2 must be in [0, 1]"),
		check.BetweenInclusive(c.Rho, 0, 1, "rho must be in [0, 1]"),
		check.GreaterThanOrEqualTo(c.Momentum, 0, "momentum must not be negative"),
		check.GreaterThan(c.Epsilon, 0, "epsilon must be positive"),
	}
}

// New creates the named optimizer. An unknown name is a configuration error
// surfaced before any training step runs.
func New(name string, c Config) (Optimizer, error) {
	switch name {
	case "nadam":
		return NewNadam(c.Beta1, c.Beta2, c.Epsilon), nil
	case "rmsprop":
		return NewRMSProp(c.Rho, c.Momentum, c.Epsilon), nil
	default:
		return nil, errors.Errorf("unsupported optimizer: %s", name)
	}
}

// ensureSlots verifies the gradient matches the parameter vector and sizes the
// slot buffers on first use.
func ensureSlots(params, grads []float64, slots ...*[]float64) error {
	if len(params) != len(grads) {
		return errors.Errorf("gradient length %d does not match parameter length %d",
			len(grads), len(params))
	}
	for _, slot := range slots {
		if *slot == nil {
			*slot = make([]float64, len(params))
		} else if len(*slot) != len(params) {
			return errors.Errorf("slot length %d does not match parameter length %d",
				len(*slot), len(params))
		}
	}
	return nil
}
