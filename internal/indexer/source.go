package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapledger/internal/dex"
)

// LogSource is the point-query side of the chain log source.
type LogSource interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Conn is one live connection to the chain event source. The stream manager
// owns its lifecycle; backfill, ingestion, and the sweeper borrow it.
type Conn interface {
	LogSource
	dex.ContractCaller

	HeadBlock(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

// DialFunc establishes a fresh connection. Called once per connect attempt.
type DialFunc func(ctx context.Context) (Conn, error)
