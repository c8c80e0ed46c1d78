package indexer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapledger/internal/observability"
)

// BackfillConfig tunes the historical replay loop.
type BackfillConfig struct {
	Addresses    []common.Address
	Topic0       []common.Hash
	ChunkSize    uint64
	ChunkDelay   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Backfiller replays a closed block range through the ingest pipeline in
// ascending chunks. A chunk that still fails after retries is logged and
// skipped; the cursor advances regardless. A skipped chunk is therefore lost
// until an operator replays the range (at-least-effort, not at-least-once).
type Backfiller struct {
	cfg    BackfillConfig
	ingest *Ingestor
	logger *zap.Logger
}

func NewBackfiller(cfg BackfillConfig, ingest *Ingestor, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{cfg: cfg, ingest: ingest, logger: logger}
}

// Run processes [fromBlock, toBlock] inclusive. Only context cancellation and
// an invalid range abort the run; chunk and log failures are contained.
func (b *Backfiller) Run(ctx context.Context, conn Conn, fromBlock, toBlock uint64) error {
	ranges, err := SplitRange(fromBlock, toBlock, b.cfg.ChunkSize)
	if err != nil {
		return err
	}

	b.logger.Info("backfill start",
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("chunks", len(ranges)),
	)

	total := 0
	for _, chunk := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := b.filterLogsWithRetry(ctx, conn, chunk.From, chunk.To)
		if err != nil {
			observability.RecordChunkFailed()
			b.logger.Error("backfill chunk failed",
				zap.Uint64("from", chunk.From),
				zap.Uint64("to", chunk.To),
				zap.Error(err),
			)
		} else {
			total += len(logs)
			b.processChunk(ctx, conn, logs)
		}

		if b.cfg.ChunkDelay > 0 {
			timer := time.NewTimer(b.cfg.ChunkDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	b.logger.Info("backfill done", zap.Int("logs", total))
	return nil
}

func (b *Backfiller) processChunk(ctx context.Context, conn Conn, logs []types.Log) {
	for _, lg := range logs {
		if err := b.ingest.HandleLog(ctx, conn, lg, true); err != nil {
			b.logger.Warn("backfill log skipped",
				zap.String("address", lg.Address.Hex()),
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint64("block", lg.BlockNumber),
				zap.Error(err),
			)
		}
	}
}

func (b *Backfiller) filterLogsWithRetry(ctx context.Context, conn Conn, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, b.cfg.MaxRetries, b.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = conn.FilterLogs(ctx, fromBlock, toBlock, b.cfg.Addresses, b.cfg.Topic0)
		if err != nil {
			b.logger.Warn("filter logs failed",
				zap.Uint64("from", fromBlock),
				zap.Uint64("to", toBlock),
				zap.Error(err),
			)
		}
		return err
	})
	return logs, err
}
