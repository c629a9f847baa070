package checkpoint

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Manager layers save and restore policy over a Store: a fresh ID and
// timestamp per save, newest-step restore, and max_to_keep retention.
type Manager struct {
	store     Store
	maxToKeep int
	log       *log.Entry
}

// NewManager wraps the store. maxToKeep 0 keeps every checkpoint.
func NewManager(store Store, maxToKeep int) *Manager {
	return &Manager{
		store:     store,
		maxToKeep: maxToKeep,
		log:       log.WithField("component", "checkpoint-manager"),
	}
}

// Save persists the state keyed by step, then prunes beyond the retention
// limit. The tracked metric value rides along in the metadata.
func (m *Manager) Save(ctx context.Context, step int64, metric float64, state []byte) (Metadata, error) {
	meta := Metadata{
		ID:      uuid.New().String(),
		Step:    step,
		Metric:  metric,
		SavedAt: time.Now().UTC(),
	}
	if err := m.store.Save(ctx, meta, state); err != nil {
		return Metadata{}, err
	}
	m.log.WithFields(log.Fields{"step": step, "checkpoint-id": meta.ID}).Info("saved checkpoint")
	if err := m.prune(ctx); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Latest returns the metadata of the newest checkpoint by step, or ErrNotFound
// when none has been saved.
func (m *Manager) Latest(ctx context.Context) (Metadata, error) {
	metas, err := m.store.List(ctx)
	if err != nil {
		return Metadata{}, err
	}
	if len(metas) == 0 {
		return Metadata{}, ErrNotFound
	}
	latest := metas[0]
	for _, meta := range metas[1:] {
		if meta.Step > latest.Step {
			latest = meta
		}
	}
	return latest, nil
}

// RestoreLatest loads the newest checkpoint, or ErrNotFound.
func (m *Manager) RestoreLatest(ctx context.Context) (*Snapshot, error) {
	meta, err := m.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.Load(ctx, meta.Step)
}

// Exists reports whether any checkpoint has been saved, distinguishing a fresh
// run from a resumed one.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	_, err := m.Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) prune(ctx context.Context) error {
	if m.maxToKeep <= 0 {
		return nil
	}
	metas, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	if len(metas) <= m.maxToKeep {
		return nil
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Step > metas[j].Step })
	for _, meta := range metas[m.maxToKeep:] {
		if err := m.store.Delete(ctx, meta.Step); err != nil {
			return err
		}
		m.log.WithField("step", meta.Step).Debug("pruned checkpoint")
	}
	return nil
}
