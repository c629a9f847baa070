// Package sink delivers training scalars to local files and optional remote
// collectors. The trainer publishes records through an async shipper so a slow
// or flaky collector never stalls the training loop.
package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MetricsFileName is the scalar log written into the experiment directory.
const MetricsFileName = "metrics.jsonl"

// Record is one flush of scalar values at a global step. Scalar names carry
// their namespace, e.g. "train/loss" or "tune/f1_weighted".
type Record struct {
	Step    int64              `json:"step"`
	Time    time.Time          `json:"time"`
	Scalars map[string]float64 `json:"scalars"`
}

// Sink receives scalar records.
type Sink interface {
	Publish(Record) error
	Close() error
}

// JSONLWriter appends records to a JSON-lines file, one record per line.
type JSONLWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewJSONLWriter opens (or resumes) the metrics file under dir.
func NewJSONLWriter(dir string) (*JSONLWriter, error) {
	path := filepath.Join(dir, MetricsFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening metrics file %s", path)
	}
	return &JSONLWriter{f: f, enc: json.NewEncoder(f)}, nil
}

// Publish implements the Sink interface.
func (w *JSONLWriter) Publish(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.enc.Encode(r), "writing metrics record")
}

// Close implements the Sink interface.
func (w *JSONLWriter) Close() error {
	return errors.Wrap(w.f.Close(), "closing metrics file")
}
