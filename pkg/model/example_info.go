package model

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ExampleInfoName is the file name of the sidecar written next to an examples file
// by the make_examples pipeline.
const ExampleInfoName = "example_info.json"

// ExampleInfo is the sidecar metadata describing the tensor layout of an examples
// file. The shape product is the flattened feature width the model must accept.
type ExampleInfo struct {
	Version  string `json:"version"`
	Shape    []int  `json:"shape"`
	Channels []int  `json:"channels"`
}

// SidecarPath returns the expected location of the sidecar for an examples file.
func SidecarPath(examplesPath string) string {
	return filepath.Join(filepath.Dir(examplesPath), ExampleInfoName)
}

// ReadExampleInfo loads the sidecar belonging to the given examples file. A
// missing sidecar is a fatal configuration problem, not a warning: without the
// shape the model input layer cannot be constructed.
func ReadExampleInfo(examplesPath string) (*ExampleInfo, error) {
	path := SidecarPath(examplesPath)
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading example info %s", path)
	}
	var info ExampleInfo
	if err := json.Unmarshal(bs, &info); err != nil {
		return nil, errors.Wrapf(err, "parsing example info %s", path)
	}
	if len(info.Shape) == 0 {
		return nil, errors.Errorf("example info %s has no shape", path)
	}
	for _, dim := range info.Shape {
		if dim <= 0 {
			return nil, errors.Errorf("example info %s has non-positive shape %v", path, info.Shape)
		}
	}
	return &info, nil
}

// FeatureWidth returns the flattened width of one example.
func (e ExampleInfo) FeatureWidth() int {
	width := 1
	for _, dim := range e.Shape {
		width *= dim
	}
	return width
}

// WriteTo writes the sidecar into the given directory.
func (e ExampleInfo) WriteTo(dir string) error {
	bs, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling example info")
	}
	path := filepath.Join(dir, ExampleInfoName)
	if err := os.WriteFile(path, append(bs, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "writing example info %s", path)
	}
	return nil
}
