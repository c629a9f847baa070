package sink

import (
	"context"
	"sync"
	"time"

	back "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/lucasbrambrink/deepvariant/pkg/mmath"
)

const (
	maxRecordBatchSize = 10

	backoffAttempts = 2
	backoffInterval = time.Second
	backoffMax      = time.Minute
)

// Shipper decouples the training loop from sink delivery. Published records
// queue in memory; a worker drains the queue, retrying each delivery with
// capped exponential backoff. A single worker keeps the sinks' record order
// identical to publish order.
type Shipper struct {
	// System dependencies.
	log   *log.Entry
	sinks []Sink

	// Internal state.
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Record
	busy    bool

	wake   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewShipper starts the delivery worker over the given sinks.
func NewShipper(sinks ...Sink) *Shipper {
	ctx, cancel := context.WithCancel(context.Background()) // Shipper-lifetime scoped context.

	s := &Shipper{
		log:    log.WithField("component", "metrics-shipper"),
		sinks:  sinks,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	s.wake <- struct{}{} // Always attempt to process existing records.

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.work(ctx)
	}()
	return s
}

// Publish enqueues a record and wakes the worker. It never blocks on delivery.
func (s *Shipper) Publish(r Record) {
	s.mu.Lock()
	s.pending = append(s.pending, r)
	s.mu.Unlock()
	s.wakeWorker()
}

func (s *Shipper) wakeWorker() {
	select {
	case s.wake <- struct{}{}:
	default:
		// A wake is already queued. That wake runs after this record was
		// enqueued and consumes the whole queue, so dropping this one is safe.
	}
}

// Flush blocks until every record published so far has been handed to the
// sinks. Call before process exit so the final tune scalars hit disk.
func (s *Shipper) Flush() {
	s.wakeWorker()
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 || s.busy {
		s.cond.Wait()
	}
}

// Close drains outstanding records, stops the worker, and closes the sinks.
func (s *Shipper) Close() error {
	s.Flush()
	s.cancel()
	s.wg.Wait()

	var merr *multierror.Error
	for _, sink := range s.sinks {
		merr = multierror.Append(merr, sink.Close())
	}
	return merr.ErrorOrNil()
}

func (s *Shipper) work(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("uncaught error, metrics shipper crashed: %v", rec)
		}
	}()

	for {
		select {
		case <-s.wake:
			s.ship()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Shipper) ship() {
	for {
		batch := s.takeBatch()
		if len(batch) == 0 {
			return
		}
		for _, r := range batch {
			s.deliver(r)
		}
	}
}

// takeBatch pops up to maxRecordBatchSize records. An empty queue marks the
// worker idle and signals any Flush callers.
func (s *Shipper) takeBatch() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := mmath.Min(len(s.pending), maxRecordBatchSize)
	if n == 0 {
		s.busy = false
		s.cond.Broadcast()
		return nil
	}
	s.busy = true
	batch := make([]Record, n)
	copy(batch, s.pending[:n])
	s.pending = s.pending[n:]
	return batch
}

func (s *Shipper) deliver(r Record) {
	for _, sink := range s.sinks {
		if err := back.Retry(
			func() error { return sink.Publish(r) },
			shipperBackoff(),
		); err != nil {
			s.log.WithError(err).Error("failed to deliver metrics record")
		}
	}
}

func shipperBackoff() back.BackOff {
	bf := back.NewExponentialBackOff()
	bf.InitialInterval = backoffInterval
	bf.MaxInterval = backoffMax
	return back.WithMaxRetries(bf, backoffAttempts)
}
