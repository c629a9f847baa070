package check

import (
	"testing"

	"gotest.tools/assert"
)

type ptrReceiver struct {
	BatchSize int
}

func (c *ptrReceiver) Validate() []error {
	return []error{
		GreaterThan(c.BatchSize, 0, "batch_size must be positive"),
	}
}

type valueReceiver struct {
	BatchSize int
}

func (c valueReceiver) Validate() []error {
	return []error{
		GreaterThan(c.BatchSize, 0, "batch_size must be positive"),
	}
}

func TestMethodSets(t *testing.T) {
	case1 := ptrReceiver{}
	case2 := valueReceiver{}
	for _, v := range []interface{}{case1, &case1, case2, &case2} {
		err := Validate(v)
		assert.ErrorContains(t, err,
			"error found at root: batch_size must be positive: 0 is not greater than 0")
	}
}

type innerConfig struct {
	Rate float64
}

func (c innerConfig) Validate() []error {
	return []error{
		GreaterThan(c.Rate, 0.0, "rate must be positive"),
	}
}

type outerConfig struct {
	Inner  innerConfig
	Slices []innerConfig
	ByName map[string]innerConfig
	Ptr    *innerConfig
}

func TestValidateWalks(t *testing.T) {
	cfg := outerConfig{
		Inner:  innerConfig{Rate: 1},
		Slices: []innerConfig{{Rate: 1}, {Rate: 0}},
		ByName: map[string]innerConfig{"decay": {Rate: 0}},
		Ptr:    nil,
	}
	err := Validate(cfg)
	assert.ErrorContains(t, err, "error found at root.Slices[1]")
	assert.ErrorContains(t, err, "error found at root.ByName[decay]")

	cfg.Slices[1].Rate = 2
	cfg.ByName["decay"] = innerConfig{Rate: 3}
	assert.NilError(t, Validate(cfg))
}
