// Package metrics implements the streaming metric accumulators the training loop
// folds batch results into. Accumulator state is held in exported JSON-tagged
// fields so a metric window survives inside a training snapshot.
package metrics

// Metric is a streaming metric accumulated across the steps of one window.
// Result before any update yields the neutral value 0, never an error.
type Metric interface {
	Name() string
	Result() float64
	Reset()
}

// BatchMetric consumes per-example class probabilities and true labels.
type BatchMetric interface {
	Metric
	Update(probs [][]float64, labels []int)
}

// ScalarMetric consumes raw scalar observations.
type ScalarMetric interface {
	Metric
	Observe(value float64)
}

// Mean accumulates the running mean of observed scalars.
type Mean struct {
	MetricName string  `json:"name"`
	Total      float64 `json:"total"`
	Count      float64 `json:"count"`
}

// NewMean creates a scalar mean metric.
func NewMean(name string) *Mean {
	return &Mean{MetricName: name}
}

// Name implements the Metric interface.
func (m *Mean) Name() string { return m.MetricName }

// Observe implements the ScalarMetric interface.
func (m *Mean) Observe(value float64) {
	m.Total += value
	m.Count++
}

// Result implements the Metric interface.
func (m *Mean) Result() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Total / m.Count
}

// Reset implements the Metric interface.
func (m *Mean) Reset() {
	m.Total = 0
	m.Count = 0
}

// CategoricalAccuracy is the fraction of examples whose argmax prediction
// matches the label.
type CategoricalAccuracy struct {
	Correct float64 `json:"correct"`
	Count   float64 `json:"count"`
}

// NewCategoricalAccuracy creates a categorical accuracy metric.
func NewCategoricalAccuracy() *CategoricalAccuracy {
	return &CategoricalAccuracy{}
}

// Name implements the Metric interface.
func (c *CategoricalAccuracy) Name() string { return "categorical_accuracy" }

// Update implements the BatchMetric interface.
func (c *CategoricalAccuracy) Update(probs [][]float64, labels []int) {
	for i, row := range probs {
		if argmax(row) == labels[i] {
			c.Correct++
		}
		c.Count++
	}
}

// Result implements the Metric interface.
func (c *CategoricalAccuracy) Result() float64 {
	if c.Count == 0 {
		return 0
	}
	return c.Correct / c.Count
}

// Reset implements the Metric interface.
func (c *CategoricalAccuracy) Reset() {
	c.Correct = 0
	c.Count = 0
}

// threshold is the decision boundary for the binary precision/recall counters,
// matching the framework default the original classifier was tuned against.
const threshold = 0.5

// Precision is micro-averaged binary precision over the one-hot view of the
// predictions: an entry counts as predicted positive when its probability
// exceeds the threshold.
type Precision struct {
	TruePositives  float64 `json:"true_positives"`
	FalsePositives float64 `json:"false_positives"`
}

// NewPrecision creates a precision metric.
func NewPrecision() *Precision {
	return &Precision{}
}

// Name implements the Metric interface.
func (p *Precision) Name() string { return "precision" }

// Update implements the BatchMetric interface.
func (p *Precision) Update(probs [][]float64, labels []int) {
	for i, row := range probs {
		for class, prob := range row {
			if prob <= threshold {
				continue
			}
			if class == labels[i] {
				p.TruePositives++
			} else {
				p.FalsePositives++
			}
		}
	}
}

// Result implements the Metric interface.
func (p *Precision) Result() float64 {
	denom := p.TruePositives + p.FalsePositives
	if denom == 0 {
		return 0
	}
	return p.TruePositives / denom
}

// Reset implements the Metric interface.
func (p *Precision) Reset() {
	p.TruePositives = 0
	p.FalsePositives = 0
}

// Recall is micro-averaged binary recall over the one-hot view of the
// predictions.
type Recall struct {
	TruePositives  float64 `json:"true_positives"`
	FalseNegatives float64 `json:"false_negatives"`
}

// NewRecall creates a recall metric.
func NewRecall() *Recall {
	return &Recall{}
}

// Name implements the Metric interface.
func (r *Recall) Name() string { return "recall" }

// Update implements the BatchMetric interface.
func (r *Recall) Update(probs [][]float64, labels []int) {
	for i, row := range probs {
		if row[labels[i]] > threshold {
			r.TruePositives++
		} else {
			r.FalseNegatives++
		}
	}
}

// Result implements the Metric interface.
func (r *Recall) Result() float64 {
	denom := r.TruePositives + r.FalseNegatives
	if denom == 0 {
		return 0
	}
	return r.TruePositives / denom
}

// Reset implements the Metric interface.
func (r *Recall) Reset() {
	r.TruePositives = 0
	r.FalseNegatives = 0
}

func argmax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
