package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointLoadEmpty(t *testing.T) {
	cp := NewCheckpoint(newMemSyncStore())

	block, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), block)
}

func TestCheckpointAdvance(t *testing.T) {
	ctx := context.Background()
	cp := NewCheckpoint(newMemSyncStore())

	require.NoError(t, cp.Advance(ctx, 500))

	block, ok, err := cp.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(500), block)
}

func TestCheckpointAdvanceMonotonic(t *testing.T) {
	ctx := context.Background()
	cp := NewCheckpoint(newMemSyncStore())

	require.NoError(t, cp.Advance(ctx, 500))
	require.NoError(t, cp.Advance(ctx, 480))
	require.NoError(t, cp.Advance(ctx, 500))

	block, _, err := cp.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), block, "lower or equal writes must not regress the marker")

	require.NoError(t, cp.Advance(ctx, 501))
	block, _, err = cp.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(501), block)
}

func TestCheckpointLoadMalformed(t *testing.T) {
	store := newMemSyncStore()
	require.NoError(t, store.SetSyncState(context.Background(), TradesLastBlockKey, "not-a-number"))

	cp := NewCheckpoint(store)
	_, _, err := cp.Load(context.Background())
	assert.Error(t, err)
}
