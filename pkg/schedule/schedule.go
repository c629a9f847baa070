// Package schedule implements the learning-rate schedules the trainer composes:
// staircase exponential decay, optionally wrapped in a linear warmup.
package schedule

import "math"

// Schedule yields the learning rate to apply at a zero-based global step. The
// loop evaluates it before the optimizer applies gradients, so the rate at step
// s always describes the s-th update.
type Schedule interface {
	Rate(step int64) float64
}

// Constant is a fixed learning rate.
type Constant float64

// Rate implements the Schedule interface.
func (c Constant) Rate(int64) float64 { return float64(c) }

// ExponentialDecay is the staircase exponential decay schedule,
// initial * decayRate^floor(step/decaySteps). The rate is constant within each
// window of decaySteps steps and drops by a factor of decayRate at the window
// boundary. decaySteps must be positive.
type ExponentialDecay struct {
	initial    float64
	decayRate  float64
	decaySteps int64
}

// NewExponentialDecay creates a staircase exponential decay schedule.
func NewExponentialDecay(initial, decayRate float64, decaySteps int64) *ExponentialDecay {
	return &ExponentialDecay{
		initial:    initial,
		decayRate:  decayRate,
		decaySteps: decaySteps,
	}
}

// Rate implements the Schedule interface.
func (d *ExponentialDecay) Rate(step int64) float64 {
	return d.initial * math.Pow(d.decayRate, float64(step/d.decaySteps))
}

// LinearWarmup ramps linearly from startRate at step 0 to the base schedule's
// value at warmupSteps, then defers to the base schedule.
type LinearWarmup struct {
	base        Schedule
	startRate   float64
	warmupSteps int64
}

// NewLinearWarmup wraps a base schedule in a linear warmup window.
func NewLinearWarmup(base Schedule, warmupSteps int64, startRate float64) *LinearWarmup {
	return &LinearWarmup{
		base:        base,
		startRate:   startRate,
		warmupSteps: warmupSteps,
	}
}

// Rate implements the Schedule interface.
func (w *LinearWarmup) Rate(step int64) float64 {
	if step >= w.warmupSteps {
		return w.base.Rate(step)
	}
	target := w.base.Rate(w.warmupSteps)
	frac := float64(step) / float64(w.warmupSteps)
	return w.startRate + (target-w.startRate)*frac
}

// Config holds the resolved schedule parameters. DecaySteps and WarmupSteps are
// in optimizer steps; the caller has already folded steps-per-epoch into them.
type Config struct {
	InitialRate float64
	DecayRate   float64
	DecaySteps  int64
	WarmupSteps int64
}

// New composes the trainer's schedule: exponential decay, wrapped in a warmup
// starting at a tenth of the initial rate when WarmupSteps is positive.
func New(c Config) Schedule {
	var s Schedule = NewExponentialDecay(c.InitialRate, c.DecayRate, c.DecaySteps)
	if c.WarmupSteps > 0 {
		s = NewLinearWarmup(s, c.WarmupSteps, c.InitialRate/10)
	}
	return s
}
