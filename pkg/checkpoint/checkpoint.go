// Package checkpoint persists training state snapshots to the configured
// storage backend. Checkpoints are keyed by the global step at which they were
// taken; each consists of a state blob plus a small metadata document, and a
// checkpoint is only visible once its metadata has been written.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
)

// DefaultPartSize is the transfer part size for bucket backends.
const DefaultPartSize = units.MiB * 5

const (
	stateFile    = "state.json"
	metadataFile = "metadata.json"
)

// ErrNotFound is returned when no checkpoint matches the request.
var ErrNotFound = errors.New("checkpoint not found")

// Metadata identifies a saved checkpoint.
type Metadata struct {
	ID      string    `json:"id"`
	Step    int64     `json:"step"`
	Metric  float64   `json:"metric"`
	SavedAt time.Time `json:"saved_at"`
}

// Snapshot pairs a checkpoint's metadata with its serialized training state.
type Snapshot struct {
	Metadata Metadata
	State    []byte
}

// Store persists checkpoints in one storage backend.
type Store interface {
	Save(ctx context.Context, meta Metadata, state []byte) error
	Load(ctx context.Context, step int64) (*Snapshot, error)
	List(ctx context.Context) ([]Metadata, error)
	Delete(ctx context.Context, step int64) error
	Close() error
}

// New creates the store selected by the storage config.
func New(ctx context.Context, config *model.CheckpointStorageConfig) (Store, error) {
	switch {
	case config.SharedFSConfig != nil:
		return NewSharedFS(config.SharedFSConfig)
	case config.S3Config != nil:
		return NewS3(config.S3Config)
	case config.GCSConfig != nil:
		return NewGCS(ctx, config.GCSConfig)
	default:
		return nil, errors.New("no checkpoint storage backend configured")
	}
}

func stepKey(step int64) string {
	return fmt.Sprintf("ckpt-%d", step)
}
