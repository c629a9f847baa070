package sink

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu       sync.Mutex
	records  []Record
	failures int
	closed   bool
}

func (c *captureSink) Publish(r Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return errors.New("collector unavailable")
	}
	c.records = append(c.records, r)
	return nil
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSink) captured() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func record(step int64) Record {
	return Record{
		Step:    step,
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Scalars: map[string]float64{"train/loss": 1.0 / float64(step+1)},
	}
}

func TestShipperDeliversInPublishOrder(t *testing.T) {
	capture := &captureSink{}
	shipper := NewShipper(capture)

	// More records than one batch holds.
	var published []Record
	for step := int64(0); step < 25; step++ {
		r := record(step)
		published = append(published, r)
		shipper.Publish(r)
	}
	shipper.Flush()

	require.Equal(t, published, capture.captured())
	require.NoError(t, shipper.Close())
	require.True(t, capture.closed)
}

func TestShipperFansOutToAllSinks(t *testing.T) {
	first, second := &captureSink{}, &captureSink{}
	shipper := NewShipper(first, second)

	shipper.Publish(record(1))
	shipper.Publish(record(2))
	require.NoError(t, shipper.Close())

	require.Len(t, first.captured(), 2)
	require.Equal(t, first.captured(), second.captured())
}

func TestShipperRetriesFailedDelivery(t *testing.T) {
	capture := &captureSink{failures: 1}
	shipper := NewShipper(capture)

	shipper.Publish(record(7))
	shipper.Flush()
	require.NoError(t, shipper.Close())

	records := capture.captured()
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].Step)
}

func TestShipperFlushOnEmptyQueueReturns(t *testing.T) {
	shipper := NewShipper(&captureSink{})
	shipper.Flush()
	require.NoError(t, shipper.Close())
}
