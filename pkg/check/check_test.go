package check

import (
	"testing"

	"gotest.tools/assert"
)

func TestTrue(t *testing.T) {
	assert.NilError(t, True(true))
	assert.ErrorContains(t, True(false, "learning rate must decay"),
		"learning rate must decay: expected true, got false")
}

func TestIn(t *testing.T) {
	optimizers := []string{"nadam", "rmsprop"}
	assert.NilError(t, In("nadam", optimizers))
	err := In("sgd", optimizers, "unsupported optimizer")
	assert.ErrorContains(t, err, "unsupported optimizer: sgd not in {nadam, rmsprop}")
}

func TestNotEmpty(t *testing.T) {
	assert.NilError(t, NotEmpty("/tmp/checkpoints"))
	assert.ErrorContains(t, NotEmpty("", "host_path must be set"), "host_path must be set")
}

func TestComparisons(t *testing.T) {
	assert.NilError(t, GreaterThan(10, 0))
	assert.ErrorContains(t, GreaterThan(0, 0, "batch_size"), "0 is not greater than 0")

	assert.NilError(t, GreaterThanOrEqualTo(0.0, 0.0))
	assert.ErrorContains(t, GreaterThanOrEqualTo(-1.0, 0.0, "patience"),
		"-1 is not greater than or equal to 0")

	assert.NilError(t, LessThanOrEqualTo(0.9, 1.0))
	assert.ErrorContains(t, LessThanOrEqualTo(1.5, 1.0, "decay_rate"),
		"1.5 is not less than or equal to 1")

	assert.NilError(t, BetweenInclusive(0.01, 0.0, 1.0))
	assert.ErrorContains(t, BetweenInclusive(1.2, 0.0, 1.0, "label_smoothing"),
		"1.2 is not between 0 and 1")
}

func TestEqual(t *testing.T) {
	assert.NilError(t, Equal([]int{1, 2}, []int{1, 2}))
	assert.ErrorContains(t, Equal(3, 4, "shape mismatch"), "shape mismatch")
}
