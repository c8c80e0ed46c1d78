package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapledger/internal/dex"
	"swapledger/internal/model"
	"swapledger/internal/observability"
	"swapledger/internal/storage"
	"swapledger/internal/trade"
)

// MetaResolver resolves pool metadata, memoizing per pool.
type MetaResolver interface {
	Resolve(ctx context.Context, caller dex.ContractCaller, pool common.Address) (model.PoolMeta, error)
}

// IngestConfig holds the per-log pipeline settings.
type IngestConfig struct {
	Chain        string
	TrackedToken string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Ingestor is the shared per-log pipeline: resolve metadata, decode, derive,
// persist, advance the checkpoint. Both the backfill runner and the live
// subscription feed it, so overlapping delivery of the same log is safe through
// the store's idempotent insert.
type Ingestor struct {
	cfg        IngestConfig
	decoder    *dex.SwapDecoder
	meta       MetaResolver
	trades     storage.TradeStore
	checkpoint *Checkpoint
	logger     *zap.Logger
}

func NewIngestor(
	cfg IngestConfig,
	decoder *dex.SwapDecoder,
	meta MetaResolver,
	trades storage.TradeStore,
	checkpoint *Checkpoint,
	logger *zap.Logger,
) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		cfg:        cfg,
		decoder:    decoder,
		meta:       meta,
		trades:     trades,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// HandleLog runs one log through the pipeline. Errors are scoped to the log:
// callers log them and move on, never aborting the stream or the chunk.
func (in *Ingestor) HandleLog(ctx context.Context, conn Conn, lg types.Log, backfill bool) error {
	meta, err := in.meta.Resolve(ctx, conn, lg.Address)
	if err != nil {
		observability.RecordLogSkipped("pool_meta")
		return fmt.Errorf("pool meta %s: %w", lg.Address.Hex(), err)
	}

	swap, err := in.decoder.Decode(lg)
	if err != nil {
		observability.RecordLogSkipped("decode")
		return fmt.Errorf("decode log %s/%d: %w", lg.TxHash.Hex(), lg.Index, err)
	}

	timestamp, err := in.blockTimestamp(ctx, conn, lg.BlockNumber)
	if err != nil {
		observability.RecordLogSkipped("block_timestamp")
		return fmt.Errorf("block timestamp %d: %w", lg.BlockNumber, err)
	}

	derived := trade.Derive(meta, swap, in.cfg.TrackedToken)

	raw, err := json.Marshal(model.RawPayload{
		LogIndex: uint64(lg.Index),
		Removed:  lg.Removed,
		Backfill: backfill,
		Swap:     swap,
		PoolMeta: meta,
	})
	if err != nil {
		return fmt.Errorf("marshal raw payload: %w", err)
	}

	record := model.TradeRecord{
		Chain:         in.cfg.Chain,
		TxHash:        strings.ToLower(lg.TxHash.Hex()),
		LogIndex:      uint64(lg.Index),
		BlockNumber:   lg.BlockNumber,
		BlockTime:     time.Unix(int64(timestamp), 0).UTC(),
		PoolAddress:   strings.ToLower(lg.Address.Hex()),
		Side:          derived.Side,
		TrackedAmount: derived.TrackedAmount,
		QuoteSymbol:   derived.QuoteSymbol,
		QuoteAmount:   derived.QuoteAmount,
		Maker:         strings.ToLower(swap.Sender),
		Status:        model.StatusPending,
		Raw:           raw,
	}

	if err := in.trades.InsertTrade(ctx, record); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	observability.RecordTradeInserted(derived.Side)

	if err := in.checkpoint.Advance(ctx, lg.BlockNumber); err != nil {
		return err
	}
	observability.SetCheckpointBlock(lg.BlockNumber)

	in.logger.Debug("trade ingested",
		zap.String("tx_hash", record.TxHash),
		zap.Uint64("block", record.BlockNumber),
		zap.String("side", record.Side),
		zap.Bool("backfill", backfill),
	)
	return nil
}

func (in *Ingestor) blockTimestamp(ctx context.Context, conn Conn, number uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, in.cfg.MaxRetries, in.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = conn.BlockTimestamp(ctx, number)
		return err
	})
	return ts, err
}
