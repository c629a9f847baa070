package checkpoint

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
)

func testManager(t *testing.T, maxToKeep int) *Manager {
	t.Helper()
	store, err := NewSharedFS(&model.SharedFSConfig{HostPath: t.TempDir()})
	require.NoError(t, err)
	return NewManager(store, maxToKeep)
}

func TestManagerFreshRunHasNoCheckpoint(t *testing.T) {
	ctx := context.Background()
	m := testManager(t, 0)

	exists, err := m.Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = m.RestoreLatest(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRestoreLatestPicksMaxStep(t *testing.T) {
	ctx := context.Background()
	m := testManager(t, 0)

	// Saved out of order on purpose.
	for _, step := range []int64{300, 100, 200} {
		_, err := m.Save(ctx, step, 0.5, []byte(stepKey(step)))
		require.NoError(t, err)
	}

	exists, err := m.Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)

	snap, err := m.RestoreLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(300), snap.Metadata.Step)
	require.Equal(t, []byte("ckpt-300"), snap.State)
}

func TestManagerSaveAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	m := testManager(t, 0)

	first, err := m.Save(ctx, 100, 0.7, []byte("{}"))
	require.NoError(t, err)
	second, err := m.Save(ctx, 200, 0.8, []byte("{}"))
	require.NoError(t, err)

	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.False(t, first.SavedAt.IsZero())
	require.Equal(t, 0.7, first.Metric)
}

func TestManagerRetention(t *testing.T) {
	ctx := context.Background()
	m := testManager(t, 2)

	for _, step := range []int64{100, 200, 300, 400} {
		_, err := m.Save(ctx, step, 0.5, []byte("{}"))
		require.NoError(t, err)
	}

	metas, err := m.store.List(ctx)
	require.NoError(t, err)
	steps := make([]int64, 0, len(metas))
	for _, meta := range metas {
		steps = append(steps, meta.Step)
	}
	require.ElementsMatch(t, []int64{300, 400}, steps)

	// The newest checkpoint always survives pruning.
	snap, err := m.RestoreLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(400), snap.Metadata.Step)
}

func TestManagerZeroKeepsEverything(t *testing.T) {
	ctx := context.Background()
	m := testManager(t, 0)

	for _, step := range []int64{100, 200, 300, 400, 500, 600} {
		_, err := m.Save(ctx, step, 0.5, []byte("{}"))
		require.NoError(t, err)
	}

	metas, err := m.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 6)
}
