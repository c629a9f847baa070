// Package model holds the domain types shared across the training driver: batches,
// the collaborator interfaces the loop drives, and the configuration types for
// checkpoint storage and datasets.
package model

import "github.com/pkg/errors"

// Batch is one batch of labeled examples. Features are row-major, one row per
// example; Labels hold the class index per row.
type Batch struct {
	Features [][]float64
	Labels   []int
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Features)
}

// Shard splits the batch into n contiguous shards for data-parallel replicas.
// Leading shards receive the remainder examples, so shard sizes differ by at
// most one and every example lands in exactly one shard.
func (b Batch) Shard(n int) []Batch {
	shards := make([]Batch, n)
	size := b.Len() / n
	rem := b.Len() % n
	offset := 0
	for i := range shards {
		length := size
		if i < rem {
			length++
		}
		shards[i] = Batch{
			Features: b.Features[offset : offset+length],
			Labels:   b.Labels[offset : offset+length],
		}
		offset += length
	}
	return shards
}

// Model is the inference surface the training loop drives. Parameters are exposed
// as a flat vector so optimizer slot variables and snapshots stay shape-agnostic.
type Model interface {
	Name() string
	FeatureWidth() int
	NumClasses() int

	// Forward computes one logit row per feature row.
	Forward(features [][]float64) [][]float64

	Parameters() []float64
	SetParameters(params []float64) error
}

// Backprop is implemented by models that can turn logit gradients into parameter
// gradients. The loss head lives in the loop, so models only see gradients at
// the logits boundary.
type Backprop interface {
	Model

	// Backward returns dLoss/dParams for the given examples and dLoss/dLogits,
	// aligned with the Parameters vector.
	Backward(features [][]float64, gradLogits [][]float64) []float64
}

// Exporter is implemented by models that can write a servable copy of themselves.
type Exporter interface {
	Export(dir string) error
}

// Dataset yields deterministic batches keyed by index, so a restored run replays
// exactly the batches the interrupted run would have seen.
type Dataset interface {
	Name() string
	NumExamples() int
	Batch(index, size int) (Batch, error)
}

// CheckShape verifies that a batch agrees with the model's feature width.
func CheckShape(m Model, b Batch) error {
	for i, row := range b.Features {
		if len(row) != m.FeatureWidth() {
			return errors.Errorf("example %d has width %d, model %s expects %d",
				i, len(row), m.Name(), m.FeatureWidth())
		}
	}
	if len(b.Labels) != len(b.Features) {
		return errors.Errorf("batch has %d labels for %d examples",
			len(b.Labels), len(b.Features))
	}
	return nil
}
