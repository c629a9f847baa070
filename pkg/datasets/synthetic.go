package datasets

import (
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/nprand"
)

// Synthetic is a generated class-conditional Gaussian dataset. Each class gets a
// mean vector and examples scatter around it, which gives the reference model
// something learnable in tests and smoke runs without any files on disk.
type Synthetic struct {
	name     string
	features [][]float64
	labels   []int
}

// NewSynthetic generates a dataset of numExamples examples over the given shape.
// The same seed always generates the same dataset.
func NewSynthetic(name string, featureWidth, numClasses, numExamples int, seed uint32) *Synthetic {
	rng := nprand.New(seed)

	means := make([][]float64, numClasses)
	for c := range means {
		means[c] = make([]float64, featureWidth)
		for j := range means[c] {
			means[c][j] = 2 * rng.Gauss()
		}
	}

	ds := &Synthetic{
		name:     name,
		features: make([][]float64, numExamples),
		labels:   make([]int, numExamples),
	}
	for i := 0; i < numExamples; i++ {
		label := i % numClasses
		row := make([]float64, featureWidth)
		for j := range row {
			row[j] = means[label][j] + rng.Gauss()
		}
		ds.features[i] = row
		ds.labels[i] = label
	}

	// One shuffle so batches mix classes instead of cycling them.
	rng.Shuffle(numExamples, func(i, j int) {
		ds.features[i], ds.features[j] = ds.features[j], ds.features[i]
		ds.labels[i], ds.labels[j] = ds.labels[j], ds.labels[i]
	})
	return ds
}

// Name implements the model.Dataset interface.
func (ds *Synthetic) Name() string { return ds.name }

// NumExamples implements the model.Dataset interface.
func (ds *Synthetic) NumExamples() int { return len(ds.features) }

// Batch implements the model.Dataset interface.
func (ds *Synthetic) Batch(index, size int) (model.Batch, error) {
	if err := checkBatchArgs(index, size, len(ds.features)); err != nil {
		return model.Batch{}, errors.Wrapf(err, "dataset %s", ds.name)
	}
	batch := model.Batch{
		Features: make([][]float64, 0, size),
		Labels:   make([]int, 0, size),
	}
	for _, i := range wrapIndex(index*size, size, len(ds.features)) {
		batch.Features = append(batch.Features, ds.features[i])
		batch.Labels = append(batch.Labels, ds.labels[i])
	}
	return batch, nil
}
