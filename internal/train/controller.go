package train

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lucasbrambrink/deepvariant/pkg/checkpoint"
	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
)

// Controller decides after every tune pass whether the run earned a checkpoint
// and whether it should stop early. Only improvements on the tracked tune
// metric are checkpointed, so the newest checkpoint is always the best one.
type Controller struct {
	manager  *checkpoint.Manager
	tracked  string
	patience int
	best     float64

	log *log.Entry
}

// NewController creates a controller tracking the named tune metric. The
// baseline comes from the state's tune accumulators, so a restored run compares
// against the value it had already reached instead of resetting to zero.
func NewController(
	manager *checkpoint.Manager,
	state *State,
	trackedMetric string,
	patience int,
) (*Controller, error) {
	best, ok := state.TuneMetrics.Result(trackedMetric)
	if !ok {
		return nil, errors.Errorf("tracked metric %s is not in the tune set", trackedMetric)
	}
	return &Controller{
		manager:  manager,
		tracked:  trackedMetric,
		patience: patience,
		best:     best,
		log:      log.WithField("component", "checkpoint-controller"),
	}, nil
}

// Decision is the outcome of one tune pass.
type Decision struct {
	Improved bool
	Stop     bool
	Saved    *checkpoint.Metadata
}

// Observe reads the tracked metric from the tune accumulators and either saves
// a checkpoint or advances the early-stopping counter. The counter is zeroed
// before the snapshot is taken, so the persisted counter matches what an
// uninterrupted run would carry.
func (c *Controller) Observe(
	ctx context.Context,
	state *State,
	m model.Model,
	opt optimizer.Optimizer,
) (Decision, error) {
	current, _ := state.TuneMetrics.Result(c.tracked)

	if current > c.best {
		state.EarlyStoppingCounter = 0
		blob, err := state.Snapshot(m, opt)
		if err != nil {
			return Decision{}, err
		}
		meta, err := c.manager.Save(ctx, state.GlobalStep, current, blob)
		if err != nil {
			return Decision{}, Transient(err)
		}
		c.log.WithFields(log.Fields{
			"step":    state.GlobalStep,
			"metric":  c.tracked,
			"current": current,
			"best":    c.best,
		}).Info("saved new best checkpoint")
		c.best = current
		return Decision{Improved: true, Saved: &meta}, nil
	}

	state.EarlyStoppingCounter++
	c.log.WithFields(log.Fields{
		"step":    state.GlobalStep,
		"metric":  c.tracked,
		"current": current,
		"best":    c.best,
		"counter": state.EarlyStoppingCounter,
	}).Info("skipping checkpoint, tune metric did not improve")
	stop := c.patience > 0 && state.EarlyStoppingCounter >= c.patience
	return Decision{Stop: stop}, nil
}
