// Package datasets implements the dataset collaborators of the training loop.
// Both implementations are deterministic functions of (seed, batch index), so a
// resumed run replays exactly the batches the interrupted run would have seen.
package datasets

import (
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
)

// SyntheticPath is the dataset path that selects the in-memory synthetic
// dataset instead of an examples file, for tests and smoke runs.
const SyntheticPath = "synthetic"

// SyntheticInfo returns the example info used for synthetic datasets, which
// have no sidecar file to read it from.
func SyntheticInfo() *model.ExampleInfo {
	return &model.ExampleInfo{
		Version:  "1.4.0",
		Shape:    []int{8},
		Channels: []int{1},
	}
}

// Open creates the dataset described by the config. The shuffle order and any
// generated content derive from the seed alone.
func Open(config *model.DatasetConfig, featureWidth, numClasses int, seed uint32) (model.Dataset, error) {
	if config.Path == SyntheticPath {
		return NewSynthetic(config.Name, featureWidth, numClasses, config.NumExamples, seed), nil
	}
	return OpenJSONL(config, featureWidth, seed)
}

func wrapIndex(start, length, n int) []int {
	idx := make([]int, length)
	for i := range idx {
		idx[i] = (start + i) % n
	}
	return idx
}

func checkBatchArgs(index, size, numExamples int) error {
	if index < 0 {
		return errors.Errorf("batch index %d must not be negative", index)
	}
	if size <= 0 {
		return errors.Errorf("batch size %d must be positive", size)
	}
	if numExamples == 0 {
		return errors.New("dataset is empty")
	}
	return nil
}
