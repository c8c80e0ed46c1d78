// Package storage defines the durable store contracts shared by the indexer
// components. The store is the single point of arbitration between the backfill
// path, the live path, and the confirmation sweeper.
package storage

import (
	"context"

	"swapledger/internal/model"
)

// TradeStore is the append-only trade ledger.
type TradeStore interface {
	// InsertTrade persists a trade row. A duplicate (tx hash, log index) is
	// treated as success: backfill and live delivery may observe the same log.
	InsertTrade(ctx context.Context, record model.TradeRecord) error

	// MarkConfirmed promotes a pending trade to confirmed. Already-confirmed
	// or absent rows are a no-op.
	MarkConfirmed(ctx context.Context, txHash string) error

	// ListPending returns up to limit pending trades at or below maxBlock.
	ListPending(ctx context.Context, maxBlock uint64, limit int) ([]model.PendingTrade, error)

	// ListTrades serves reporting reads filtered by maker/pool/status/since.
	ListTrades(ctx context.Context, filter model.TradeFilter) ([]model.TradeRecord, error)
}

// SyncStore is the key/value checkpoint store. Last write wins.
type SyncStore interface {
	GetSyncState(ctx context.Context, key, fallback string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error
}
