package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDatasetConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadDatasetConfig(t *testing.T) {
	path := writeDatasetConfig(t, `
name: HG001_train
path: /data/train.examples.jsonl
num_examples: 640000
`)
	config, err := ReadDatasetConfig(path)
	require.NoError(t, err)
	require.Equal(t, "HG001_train", config.Name)
	require.Equal(t, 640000, config.NumExamples)
}

func TestReadDatasetConfigRejectsUnknownField(t *testing.T) {
	path := writeDatasetConfig(t, `
name: HG001_train
path: /data/train.examples.jsonl
num_examples: 640000
num_epochs: 10
`)
	_, err := ReadDatasetConfig(path)
	require.ErrorContains(t, err, "unknown field")
}

func TestReadDatasetConfigValidates(t *testing.T) {
	path := writeDatasetConfig(t, `
name: HG001_train
path: /data/train.examples.jsonl
num_examples: 0
`)
	_, err := ReadDatasetConfig(path)
	require.ErrorContains(t, err, "num_examples must be positive")
}
