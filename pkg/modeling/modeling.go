// Package modeling provides the reference classifier the driver trains end to
// end. The model maps flattened example tensors to class logits through one
// dense layer and computes its gradients analytically, which keeps the training
// loop honest without dragging in an autodiff runtime.
package modeling

import (
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/nprand"
)

// Names lists the supported model names.
var Names = []string{"linear"}

// New creates the named model with nprand-seeded initialization. An unknown
// name is a configuration error surfaced before any training step runs.
func New(name string, featureWidth, numClasses int, rng *nprand.State) (model.Backprop, error) {
	switch name {
	case "linear":
		return NewLinear(featureWidth, numClasses, rng), nil
	default:
		return nil, errors.Errorf("unsupported model: %s", name)
	}
}

// Linear is a softmax linear classifier. Parameters flatten row-major weights
// first, bias last, and that layout is shared with optimizer slots and
// snapshots.
type Linear struct {
	featureWidth int
	numClasses   int
	weights      []float64
	bias         []float64
}

// NewLinear creates a linear model with scaled Gaussian weight initialization
// drawn from the provided generator.
func NewLinear(featureWidth, numClasses int, rng *nprand.State) *Linear {
	l := &Linear{
		featureWidth: featureWidth,
		numClasses:   numClasses,
		weights:      make([]float64, featureWidth*numClasses),
		bias:         make([]float64, numClasses),
	}
	scale := 1.0 / float64(featureWidth)
	for i := range l.weights {
		l.weights[i] = scale * rng.Gauss()
	}
	return l
}

// Name implements the model.Model interface.
func (l *Linear) Name() string { return "linear" }

// FeatureWidth implements the model.Model interface.
func (l *Linear) FeatureWidth() int { return l.featureWidth }

// NumClasses implements the model.Model interface.
func (l *Linear) NumClasses() int { return l.numClasses }

// Forward implements the model.Model interface.
func (l *Linear) Forward(features [][]float64) [][]float64 {
	logits := make([][]float64, len(features))
	for i, row := range features {
		out := make([]float64, l.numClasses)
		copy(out, l.bias)
		for j, x := range row {
			if x == 0 {
				continue
			}
			w := l.weights[j*l.numClasses:]
			for c := 0; c < l.numClasses; c++ {
				out[c] += x * w[c]
			}
		}
		logits[i] = out
	}
	return logits
}

// Parameters implements the model.Model interface.
func (l *Linear) Parameters() []float64 {
	params := make([]float64, 0, len(l.weights)+len(l.bias))
	params = append(params, l.weights...)
	return append(params, l.bias...)
}

// SetParameters implements the model.Model interface.
func (l *Linear) SetParameters(params []float64) error {
	if len(params) != len(l.weights)+len(l.bias) {
		return errors.Errorf("model linear expects %d parameters, got %d",
			len(l.weights)+len(l.bias), len(params))
	}
	copy(l.weights, params[:len(l.weights)])
	copy(l.bias, params[len(l.weights):])
	return nil
}

// Backward implements the model.Backprop interface. For logits = X*W + b the
// parameter gradients are dW = X^T * gradLogits and db = colsum(gradLogits).
func (l *Linear) Backward(features [][]float64, gradLogits [][]float64) []float64 {
	grads := make([]float64, len(l.weights)+len(l.bias))
	gradW := grads[:len(l.weights)]
	gradB := grads[len(l.weights):]
	for i, row := range features {
		gl := gradLogits[i]
		for j, x := range row {
			if x == 0 {
				continue
			}
			gw := gradW[j*l.numClasses:]
			for c := 0; c < l.numClasses; c++ {
				gw[c] += x * gl[c]
			}
		}
		for c := 0; c < l.numClasses; c++ {
			gradB[c] += gl[c]
		}
	}
	return grads
}
