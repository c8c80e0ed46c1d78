package indexer

import (
	"context"
	"fmt"
	"strconv"

	"swapledger/internal/storage"
)

// TradesLastBlockKey is the sync marker holding the highest block number for
// which a trade has been durably persisted.
const TradesLastBlockKey = "trades_last_block"

// Checkpoint is the durable block-height marker backed by the sync store.
// Advance is monotonic: a lower block number never overwrites a higher one.
type Checkpoint struct {
	store storage.SyncStore
	key   string
}

func NewCheckpoint(store storage.SyncStore) *Checkpoint {
	return &Checkpoint{store: store, key: TradesLastBlockKey}
}

// Load reads the stored block height. ok is false when no marker exists yet.
func (c *Checkpoint) Load(ctx context.Context) (uint64, bool, error) {
	value, err := c.store.GetSyncState(ctx, c.key, "")
	if err != nil {
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	if value == "" {
		return 0, false, nil
	}
	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %q: %w", value, err)
	}
	return block, true, nil
}

// Advance moves the marker forward to block. Writes at or below the stored
// value are dropped, so interleaved backfill and live inserts cannot regress it.
func (c *Checkpoint) Advance(ctx context.Context, block uint64) error {
	stored, ok, err := c.Load(ctx)
	if err != nil {
		return err
	}
	if ok && block <= stored {
		return nil
	}
	if err := c.store.SetSyncState(ctx, c.key, strconv.FormatUint(block, 10)); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}
