package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeBatch(n, width int) Batch {
	b := Batch{
		Features: make([][]float64, n),
		Labels:   make([]int, n),
	}
	for i := range b.Features {
		b.Features[i] = make([]float64, width)
		b.Features[i][0] = float64(i)
		b.Labels[i] = i % 3
	}
	return b
}

func TestBatchShard(t *testing.T) {
	type testCase struct {
		name      string
		examples  int
		replicas  int
		wantSizes []int
	}

	tests := []testCase{
		{"even split", 8, 2, []int{4, 4}},
		{"remainder goes first", 10, 4, []int{3, 3, 2, 2}},
		{"single replica", 5, 1, []int{5}},
		{"more replicas than examples", 2, 4, []int{1, 1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := makeBatch(tt.examples, 4)
			shards := batch.Shard(tt.replicas)
			require.Len(t, shards, tt.replicas)

			total := 0
			next := 0.0
			for i, shard := range shards {
				require.Equal(t, tt.wantSizes[i], shard.Len())
				total += shard.Len()
				for _, row := range shard.Features {
					// Contiguous coverage: every example appears once, in order.
					require.Equal(t, next, row[0])
					next++
				}
			}
			require.Equal(t, tt.examples, total)
		})
	}
}

type fixedShape struct{ width, classes int }

func (f fixedShape) Name() string                         { return "fixed" }
func (f fixedShape) FeatureWidth() int                    { return f.width }
func (f fixedShape) NumClasses() int                      { return f.classes }
func (f fixedShape) Forward(x [][]float64) [][]float64    { return nil }
func (f fixedShape) Parameters() []float64                { return nil }
func (f fixedShape) SetParameters(params []float64) error { return nil }

func TestCheckShape(t *testing.T) {
	m := fixedShape{width: 4, classes: 3}
	require.NoError(t, CheckShape(m, makeBatch(3, 4)))

	bad := makeBatch(3, 5)
	require.ErrorContains(t, CheckShape(m, bad), "width 5, model fixed expects 4")

	short := makeBatch(3, 4)
	short.Labels = short.Labels[:2]
	require.ErrorContains(t, CheckShape(m, short), "2 labels for 3 examples")
}
