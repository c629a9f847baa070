package checkpoint

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
)

// GCS stores checkpoints as objects under a bucket prefix.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCS creates a GCS store using ambient application credentials.
func NewGCS(ctx context.Context, config *model.GCSConfig) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcs client")
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(config.Bucket),
		prefix: keyPrefix(config.Prefix),
	}, nil
}

// Save implements the Store interface. The metadata object is written last so
// partially saved checkpoints stay invisible to List.
func (g *GCS) Save(ctx context.Context, meta Metadata, state []byte) error {
	key := g.prefix + stepKey(meta.Step) + "/"
	if err := g.upload(ctx, key+stateFile, state); err != nil {
		return err
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshaling checkpoint metadata")
	}
	return g.upload(ctx, key+metadataFile, blob)
}

// Load implements the Store interface.
func (g *GCS) Load(ctx context.Context, step int64) (*Snapshot, error) {
	key := g.prefix + stepKey(step) + "/"
	blob, err := g.download(ctx, key+metadataFile)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return nil, errors.Wrapf(err, "parsing checkpoint metadata for step %d", step)
	}
	state, err := g.download(ctx, key+stateFile)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Metadata: meta, State: state}, nil
}

// List implements the Store interface.
func (g *GCS) List(ctx context.Context) ([]Metadata, error) {
	var metas []Metadata
	items := g.bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		item, err := items.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "listing checkpoints under gs://%s", g.prefix)
		}
		if !strings.HasSuffix(item.Name, "/"+metadataFile) {
			continue
		}
		blob, err := g.download(ctx, item.Name)
		if err != nil {
			return nil, err
		}
		var meta Metadata
		if err := json.Unmarshal(blob, &meta); err != nil {
			return nil, errors.Wrapf(err, "parsing checkpoint metadata %s", item.Name)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// Delete implements the Store interface.
func (g *GCS) Delete(ctx context.Context, step int64) error {
	prefix := g.prefix + stepKey(step) + "/"
	items := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		item, err := items.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "listing checkpoint objects under %s", prefix)
		}
		if err := g.bucket.Object(item.Name).Delete(ctx); err != nil {
			return errors.Wrapf(err, "deleting gs://%s", item.Name)
		}
	}
}

// Close implements the Store interface.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) upload(ctx context.Context, key string, data []byte) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ChunkSize = int(DefaultPartSize)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "uploading gs://%s", key)
	}
	return errors.Wrapf(w.Close(), "uploading gs://%s", key)
}

func (g *GCS) download(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "downloading gs://%s", key)
	}
	defer func() {
		_ = r.Close()
	}()
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "downloading gs://%s", key)
	}
	return blob, nil
}
