package modeling

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WeightsFileName is the file a Linear model exports itself to.
const WeightsFileName = "model.json"

type exportedModel struct {
	Name         string    `json:"name"`
	FeatureWidth int       `json:"feature_width"`
	NumClasses   int       `json:"num_classes"`
	Weights      []float64 `json:"weights"`
	Bias         []float64 `json:"bias"`
}

// Export implements the model.Exporter interface, writing a servable JSON copy
// of the weights into dir.
func (l *Linear) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating export dir %s", dir)
	}
	out := exportedModel{
		Name:         l.Name(),
		FeatureWidth: l.featureWidth,
		NumClasses:   l.numClasses,
		Weights:      l.weights,
		Bias:         l.bias,
	}
	bs, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling model weights")
	}
	path := filepath.Join(dir, WeightsFileName)
	if err := os.WriteFile(path, append(bs, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "writing model weights %s", path)
	}
	return nil
}

// Load reads an exported Linear model back from dir.
func Load(dir string) (*Linear, error) {
	path := filepath.Join(dir, WeightsFileName)
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model weights %s", path)
	}
	var in exportedModel
	if err := json.Unmarshal(bs, &in); err != nil {
		return nil, errors.Wrapf(err, "parsing model weights %s", path)
	}
	if in.Name != "linear" {
		return nil, errors.Errorf("unsupported model in %s: %s", path, in.Name)
	}
	if len(in.Weights) != in.FeatureWidth*in.NumClasses || len(in.Bias) != in.NumClasses {
		return nil, errors.Errorf("model weights %s do not match declared shape", path)
	}
	return &Linear{
		featureWidth: in.FeatureWidth,
		numClasses:   in.NumClasses,
		weights:      in.Weights,
		bias:         in.Bias,
	}, nil
}
