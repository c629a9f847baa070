package train

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Reporter logs coarse training progress on a wall-clock cadence, so long runs
// stay observable without flooding the log at full step rate.
type Reporter struct {
	log      *log.Entry
	total    int64
	interval time.Duration

	now      func() time.Time
	started  bool
	lastTime time.Time
	lastStep int64
}

// NewReporter creates a reporter over a run of total steps.
func NewReporter(total int64, interval time.Duration) *Reporter {
	return &Reporter{
		log:      log.WithField("component", "progress"),
		total:    total,
		interval: interval,
		now:      time.Now,
	}
}

// Observe notes that the given step completed. The first observation and the
// final step always log; everything in between is rate-limited to one line per
// interval.
func (r *Reporter) Observe(step int64) {
	now := r.now()
	if r.started && step < r.total && now.Sub(r.lastTime) < r.interval {
		return
	}

	rate := 0.0
	if elapsed := now.Sub(r.lastTime).Seconds(); r.started && elapsed > 0 {
		rate = float64(step-r.lastStep) / elapsed
	}
	r.log.Infof("progress: %.1f%% (step %d of %d, %.1f steps/sec)",
		100*float64(step)/float64(r.total), step, r.total, rate)

	r.started = true
	r.lastTime = now
	r.lastStep = step
}
