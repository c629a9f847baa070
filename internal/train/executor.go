package train

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
	"github.com/lucasbrambrink/deepvariant/pkg/schedule"
	"github.com/lucasbrambrink/deepvariant/pkg/syncx/errgroupx"
)

// replicaResult is one replica's contribution to a step: its shard loss, its
// parameter gradient (train only) and the predictions the metrics consume.
type replicaResult struct {
	loss   float64
	grad   []float64
	probs  [][]float64
	labels []int
}

// Executor runs single steps over data-parallel replicas. Each replica computes
// forward and backward passes on its shard; the executor sums losses and
// gradients across replicas and applies exactly one optimizer update per train
// step, so replica count changes throughput but never the math.
type Executor struct {
	model model.Backprop
	opt   optimizer.Optimizer
	sched schedule.Schedule
	head  lossHead

	numReplicas int
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(
	m model.Backprop,
	opt optimizer.Optimizer,
	sched schedule.Schedule,
	numReplicas, globalBatchSize int,
	labelSmoothing float64,
) *Executor {
	return &Executor{
		model: m,
		opt:   opt,
		sched: sched,
		head: lossHead{
			numClasses:      m.NumClasses(),
			globalBatchSize: globalBatchSize,
			smoothing:       labelSmoothing,
		},
		numReplicas: numReplicas,
	}
}

// TrainStep runs one optimizer step on the batch and folds the results into the
// train metrics. The learning rate is evaluated at the pre-update step and the
// global step advances only after the update lands, so a crash between the two
// replays the step instead of skipping it.
func (e *Executor) TrainStep(ctx context.Context, state *State, batch model.Batch) (float64, error) {
	if err := model.CheckShape(e.model, batch); err != nil {
		return 0, err
	}
	results, err := e.fanOut(ctx, batch.Shard(e.numReplicas), true)
	if err != nil {
		return 0, err
	}

	loss := 0.0
	var grad []float64
	for i, res := range results {
		loss += res.loss
		if res.grad == nil {
			continue
		}
		if grad == nil {
			grad = make([]float64, len(res.grad))
		} else if len(res.grad) != len(grad) {
			return 0, errors.Errorf("replica %d returned a gradient of length %d, expected %d",
				i, len(res.grad), len(grad))
		}
		for j, v := range res.grad {
			grad[j] += v
		}
	}
	if grad == nil {
		return 0, errors.New("train step produced no gradient")
	}

	params := e.model.Parameters()
	if err := e.opt.Apply(params, grad, e.sched.Rate(state.GlobalStep)); err != nil {
		return 0, err
	}
	if err := e.model.SetParameters(params); err != nil {
		return 0, err
	}

	for _, res := range results {
		state.TrainMetrics.Update(res.probs, res.labels)
	}
	state.TrainMetrics.ObserveLoss(loss)

	state.GlobalStep++
	return loss, nil
}

// TuneStep evaluates the batch without touching the parameters or the global
// step and folds the results into the tune metrics.
func (e *Executor) TuneStep(ctx context.Context, state *State, batch model.Batch) (float64, error) {
	if err := model.CheckShape(e.model, batch); err != nil {
		return 0, err
	}
	results, err := e.fanOut(ctx, batch.Shard(e.numReplicas), false)
	if err != nil {
		return 0, err
	}

	loss := 0.0
	for _, res := range results {
		loss += res.loss
		state.TuneMetrics.Update(res.probs, res.labels)
	}
	state.TuneMetrics.ObserveLoss(loss)
	return loss, nil
}

// fanOut runs the forward pass, and optionally the backward pass, on every
// non-empty shard concurrently. Results keep replica order so metric updates
// stay deterministic.
func (e *Executor) fanOut(ctx context.Context, shards []model.Batch, backward bool) ([]replicaResult, error) {
	results := make([]replicaResult, len(shards))
	g := errgroupx.WithContext(ctx).WithRecover()
	for i, shard := range shards {
		if shard.Len() == 0 {
			continue
		}
		g.Go(func(ctx context.Context) error {
			logits := e.model.Forward(shard.Features)
			loss, probs, err := e.head.forward(logits, shard.Labels)
			if err != nil {
				return errors.Wrapf(err, "replica %d", i)
			}
			res := replicaResult{loss: loss, probs: probs, labels: shard.Labels}
			if backward {
				res.grad = e.model.Backward(shard.Features, e.head.gradient(probs, shard.Labels))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
