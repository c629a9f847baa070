package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
)

// SharedFS stores checkpoints as directories on a filesystem every replica can
// reach, one directory per step under the resolved host path.
type SharedFS struct {
	root string
}

// NewSharedFS creates the storage root if needed and returns the store.
func NewSharedFS(config *model.SharedFSConfig) (*SharedFS, error) {
	root := config.PathOnHost()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating checkpoint root %s", root)
	}
	return &SharedFS{root: root}, nil
}

// Save implements the Store interface. The state is written before the
// metadata, so a checkpoint interrupted mid-save never shows up in List.
func (s *SharedFS) Save(ctx context.Context, meta Metadata, state []byte) error {
	dir := filepath.Join(s.root, stepKey(meta.Step))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating checkpoint directory %s", dir)
	}
	if err := writeFileAtomic(filepath.Join(dir, stateFile), state); err != nil {
		return err
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshaling checkpoint metadata")
	}
	return writeFileAtomic(filepath.Join(dir, metadataFile), blob)
}

// Load implements the Store interface.
func (s *SharedFS) Load(ctx context.Context, step int64) (*Snapshot, error) {
	dir := filepath.Join(s.root, stepKey(step))
	meta, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	state, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint state for step %d", step)
	}
	return &Snapshot{Metadata: meta, State: state}, nil
}

// List implements the Store interface. Directories without a readable metadata
// document are incomplete saves and are skipped.
func (s *SharedFS) List(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "listing checkpoint root %s", s.root)
	}
	var metas []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(s.root, entry.Name()))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// Delete implements the Store interface.
func (s *SharedFS) Delete(ctx context.Context, step int64) error {
	dir := filepath.Join(s.root, stepKey(step))
	return errors.Wrapf(os.RemoveAll(dir), "deleting checkpoint %s", dir)
}

// Close implements the Store interface.
func (s *SharedFS) Close() error { return nil }

func readMetadata(dir string) (Metadata, error) {
	blob, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if os.IsNotExist(err) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "reading checkpoint metadata in %s", dir)
	}
	var meta Metadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return Metadata{}, errors.Wrapf(err, "parsing checkpoint metadata in %s", dir)
	}
	return meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "closing temp file for %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "renaming temp file to %s", path)
	}
	return nil
}
