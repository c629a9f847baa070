package train

import (
	"math"

	"github.com/pkg/errors"
)

// lossEpsilon keeps the cross-entropy log away from zero probabilities.
const lossEpsilon = 1e-7

// lossHead computes label-smoothed categorical cross-entropy over logits.
// Per-example losses are scaled by the global batch size, not the shard size,
// so summing shard losses across replicas reproduces the global batch mean.
type lossHead struct {
	numClasses      int
	globalBatchSize int
	smoothing       float64
}

// forward returns the shard's contribution to the global batch loss and the
// softmax probabilities the metrics consume.
func (h lossHead) forward(logits [][]float64, labels []int) (float64, [][]float64, error) {
	probs := make([][]float64, len(logits))
	loss := 0.0
	for i, row := range logits {
		if len(row) != h.numClasses {
			return 0, nil, errors.Errorf("logit row has %d classes, expected %d",
				len(row), h.numClasses)
		}
		if labels[i] < 0 || labels[i] >= h.numClasses {
			return 0, nil, errors.Errorf("label %d outside [0, %d)", labels[i], h.numClasses)
		}
		p := softmax(row)
		probs[i] = p
		for class, target := range h.smoothedTargets(labels[i]) {
			loss -= target * math.Log(p[class]+lossEpsilon)
		}
	}
	return loss / float64(h.globalBatchSize), probs, nil
}

// gradient returns dLoss/dLogits for the shard, already scaled for the global
// batch so replica gradients sum into the full-batch gradient.
func (h lossHead) gradient(probs [][]float64, labels []int) [][]float64 {
	grad := make([][]float64, len(probs))
	for i, p := range probs {
		targets := h.smoothedTargets(labels[i])
		row := make([]float64, h.numClasses)
		for class := range row {
			row[class] = (p[class] - targets[class]) / float64(h.globalBatchSize)
		}
		grad[i] = row
	}
	return grad
}

// smoothedTargets returns the label-smoothed one-hot distribution for a label:
// (1 - s) on the true class plus s/numClasses everywhere.
func (h lossHead) smoothedTargets(label int) []float64 {
	targets := make([]float64, h.numClasses)
	uniform := h.smoothing / float64(h.numClasses)
	for class := range targets {
		targets[class] = uniform
	}
	targets[label] += 1 - h.smoothing
	return targets
}

// softmax computes the stable softmax of one logit row.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	exp := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		exp[i] = math.Exp(v - max)
		sum += exp[i]
	}
	for i := range exp {
		exp[i] /= sum
	}
	return exp
}
