package metrics

// Confusion tracks a multiclass confusion matrix over argmax predictions and
// derives the weighted F1 score from it. Counts[i][j] is the number of examples
// with true class i predicted as class j.
type Confusion struct {
	Classes int         `json:"classes"`
	Counts  [][]float64 `json:"counts"`
}

// NewConfusion creates a confusion matrix over the given number of classes.
func NewConfusion(classes int) *Confusion {
	c := &Confusion{Classes: classes}
	c.Reset()
	return c
}

// Update implements the BatchMetric interface.
func (c *Confusion) Update(probs [][]float64, labels []int) {
	for i, row := range probs {
		c.Counts[labels[i]][argmax(row)]++
	}
}

// Reset implements the Metric interface.
func (c *Confusion) Reset() {
	c.Counts = make([][]float64, c.Classes)
	for i := range c.Counts {
		c.Counts[i] = make([]float64, c.Classes)
	}
}

// Support returns the number of true examples of the given class.
func (c *Confusion) Support(class int) float64 {
	total := 0.0
	for _, v := range c.Counts[class] {
		total += v
	}
	return total
}

// predicted returns the number of examples predicted as the given class.
func (c *Confusion) predicted(class int) float64 {
	total := 0.0
	for i := 0; i < c.Classes; i++ {
		total += c.Counts[i][class]
	}
	return total
}

// F1 returns the per-class F1 score, 0 when the class was never seen or predicted.
func (c *Confusion) F1(class int) float64 {
	tp := c.Counts[class][class]
	precisionDenom := c.predicted(class)
	recallDenom := c.Support(class)
	if precisionDenom == 0 || recallDenom == 0 {
		return 0
	}
	precision := tp / precisionDenom
	recall := tp / recallDenom
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// F1Weighted is the support-weighted mean of per-class F1 scores.
type F1Weighted struct {
	Confusion
}

// NewF1Weighted creates a weighted F1 metric over the given number of classes.
func NewF1Weighted(classes int) *F1Weighted {
	return &F1Weighted{Confusion: *NewConfusion(classes)}
}

// Name implements the Metric interface.
func (f *F1Weighted) Name() string { return "f1_weighted" }

// Result implements the Metric interface.
func (f *F1Weighted) Result() float64 {
	total := 0.0
	for class := 0; class < f.Classes; class++ {
		total += f.Support(class)
	}
	if total == 0 {
		return 0
	}
	weighted := 0.0
	for class := 0; class < f.Classes; class++ {
		weighted += f.F1(class) * f.Support(class) / total
	}
	return weighted
}
