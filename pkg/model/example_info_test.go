package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadExampleInfo(t *testing.T) {
	dir := t.TempDir()
	examples := filepath.Join(dir, "train.examples.jsonl")
	sidecar := filepath.Join(dir, ExampleInfoName)
	blob := `{"version": "1.6.1", "shape": [100, 221, 7], "channels": [1, 2, 3, 4, 5, 6, 19]}`
	require.NoError(t, os.WriteFile(sidecar, []byte(blob), 0o644))

	info, err := ReadExampleInfo(examples)
	require.NoError(t, err)
	require.Equal(t, "1.6.1", info.Version)
	require.Equal(t, 100*221*7, info.FeatureWidth())
	require.Len(t, info.Channels, 7)
}

func TestReadExampleInfoMissing(t *testing.T) {
	examples := filepath.Join(t.TempDir(), "train.examples.jsonl")
	_, err := ReadExampleInfo(examples)
	require.ErrorContains(t, err, "reading example info")
}

func TestReadExampleInfoBadShape(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, ExampleInfoName)
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"version":"1.6.1","shape":[]}`), 0o644))
	_, err := ReadExampleInfo(filepath.Join(dir, "x.jsonl"))
	require.ErrorContains(t, err, "has no shape")

	require.NoError(t, os.WriteFile(sidecar, []byte(`{"version":"1.6.1","shape":[4,0]}`), 0o644))
	_, err = ReadExampleInfo(filepath.Join(dir, "x.jsonl"))
	require.ErrorContains(t, err, "non-positive shape")
}

func TestExampleInfoWriteTo(t *testing.T) {
	info := ExampleInfo{Version: "1.6.1", Shape: []int{2, 3}, Channels: []int{1, 2}}
	dir := t.TempDir()
	require.NoError(t, info.WriteTo(dir))

	got, err := ReadExampleInfo(filepath.Join(dir, "anything.jsonl"))
	require.NoError(t, err)
	require.Equal(t, &info, got)
}
