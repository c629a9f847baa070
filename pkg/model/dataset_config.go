package model

import (
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/check"
)

// DatasetConfig describes one examples file: a display name, the path to the
// examples, and how many examples it holds.
type DatasetConfig struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	NumExamples int    `json:"num_examples"`
}

// ReadDatasetConfig loads and validates a dataset config from a YAML file.
func ReadDatasetConfig(path string) (*DatasetConfig, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset config %s", path)
	}
	var config DatasetConfig
	if err := yaml.Unmarshal(bs, &config, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrapf(err, "parsing dataset config %s", path)
	}
	if err := check.Validate(config); err != nil {
		return nil, errors.Wrapf(err, "invalid dataset config %s", path)
	}
	return &config, nil
}

// Validate implements the check.Validatable interface.
func (c DatasetConfig) Validate() []error {
	return []error{
		check.NotEmpty(c.Name, "dataset name must be set"),
		check.NotEmpty(c.Path, "dataset path must be set"),
		check.GreaterThan(c.NumExamples, 0, "num_examples must be positive"),
	}
}
