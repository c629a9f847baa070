package metrics

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Result is one named metric value at a point in time.
type Result struct {
	Name  string
	Value float64
}

// Set is the ordered metric collection of one phase (train or tune). The last
// metric is the scalar loss mean; every other member consumes predictions.
type Set struct {
	metrics []Metric
}

// NewSet creates a metric set. The final metric must be a ScalarMetric to
// receive the per-step loss.
func NewSet(ms ...Metric) *Set {
	return &Set{metrics: ms}
}

// DefaultSet is the metric family the trainer tracks for both phases.
func DefaultSet(classes int) *Set {
	return NewSet(
		NewCategoricalAccuracy(),
		NewPrecision(),
		NewRecall(),
		NewF1Weighted(classes),
		NewMean("loss"),
	)
}

// Update folds a batch of predictions into every prediction-consuming metric.
func (s *Set) Update(probs [][]float64, labels []int) {
	for _, m := range s.metrics {
		if bm, ok := m.(BatchMetric); ok {
			bm.Update(probs, labels)
		}
	}
}

// ObserveLoss records the reduced step loss on the trailing scalar metric.
func (s *Set) ObserveLoss(value float64) {
	if len(s.metrics) == 0 {
		return
	}
	if sm, ok := s.metrics[len(s.metrics)-1].(ScalarMetric); ok {
		sm.Observe(value)
	}
}

// Results returns the current value of every metric, in set order.
func (s *Set) Results() []Result {
	results := make([]Result, 0, len(s.metrics))
	for _, m := range s.metrics {
		results = append(results, Result{Name: m.Name(), Value: m.Result()})
	}
	return results
}

// Result returns the current value of the named metric.
func (s *Set) Result(name string) (float64, bool) {
	for _, m := range s.metrics {
		if m.Name() == name {
			return m.Result(), true
		}
	}
	return 0, false
}

// Reset clears every metric in the set.
func (s *Set) Reset() {
	for _, m := range s.metrics {
		m.Reset()
	}
}

// Snapshot returns a JSON view of every accumulator's state, keyed by name.
func (s *Set) Snapshot() (json.RawMessage, error) {
	states := make(map[string]json.RawMessage, len(s.metrics))
	for _, m := range s.metrics {
		blob, err := json.Marshal(m)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshotting metric %s", m.Name())
		}
		states[m.Name()] = blob
	}
	return json.Marshal(states)
}

// Restore loads accumulator states saved by Snapshot into the existing metrics.
// Every metric in the set must be present in the snapshot; a partial restore
// would leave the window inconsistent with the restored step.
func (s *Set) Restore(snapshot json.RawMessage) error {
	var states map[string]json.RawMessage
	if err := json.Unmarshal(snapshot, &states); err != nil {
		return errors.Wrap(err, "parsing metric snapshot")
	}
	for _, m := range s.metrics {
		blob, ok := states[m.Name()]
		if !ok {
			return errors.Errorf("metric %s missing from snapshot", m.Name())
		}
		if err := json.Unmarshal(blob, m); err != nil {
			return errors.Wrapf(err, "restoring metric %s", m.Name())
		}
	}
	return nil
}
