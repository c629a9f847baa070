package datasets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyntheticIsSeedDeterministic(t *testing.T) {
	first := NewSynthetic("train", 4, 3, 24, 42)
	second := NewSynthetic("train", 4, 3, 24, 42)
	require.Equal(t, first.features, second.features)
	require.Equal(t, first.labels, second.labels)

	other := NewSynthetic("train", 4, 3, 24, 7)
	require.NotEqual(t, first.features, other.features)
}

func TestSyntheticCoversAllClasses(t *testing.T) {
	ds := NewSynthetic("train", 4, 3, 30, 42)
	counts := map[int]int{}
	for _, label := range ds.labels {
		require.GreaterOrEqual(t, label, 0)
		require.Less(t, label, 3)
		counts[label]++
	}
	// 30 examples over 3 classes, assigned round-robin before the shuffle.
	require.Equal(t, map[int]int{0: 10, 1: 10, 2: 10}, counts)
}

func TestSyntheticBatchesAreStable(t *testing.T) {
	ds := NewSynthetic("train", 4, 3, 16, 42)

	first, err := ds.Batch(1, 4)
	require.NoError(t, err)
	require.Len(t, first.Features, 4)
	require.Len(t, first.Labels, 4)

	again, err := ds.Batch(1, 4)
	require.NoError(t, err)
	require.Equal(t, first, again)

	next, err := ds.Batch(2, 4)
	require.NoError(t, err)
	require.NotEqual(t, first, next)
}

func TestSyntheticClassesAreSeparated(t *testing.T) {
	// Examples of the same class sit near a shared mean, so the average
	// distance to the own-class centroid must undercut the cross-class one.
	ds := NewSynthetic("train", 8, 2, 100, 42)

	centroids := make([][]float64, 2)
	counts := make([]int, 2)
	for c := range centroids {
		centroids[c] = make([]float64, 8)
	}
	for i, row := range ds.features {
		label := ds.labels[i]
		counts[label]++
		for j, v := range row {
			centroids[label][j] += v
		}
	}
	for c := range centroids {
		for j := range centroids[c] {
			centroids[c][j] /= float64(counts[c])
		}
	}

	dist := func(a, b []float64) float64 {
		var total float64
		for j := range a {
			d := a[j] - b[j]
			total += d * d
		}
		return total
	}

	var own, cross float64
	for i, row := range ds.features {
		own += dist(row, centroids[ds.labels[i]])
		cross += dist(row, centroids[1-ds.labels[i]])
	}
	require.Less(t, own, cross)
}
