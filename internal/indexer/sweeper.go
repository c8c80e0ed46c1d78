package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"swapledger/internal/observability"
	"swapledger/internal/storage"
)

// HeadFunc reports the current chain head, failing while no source is
// available.
type HeadFunc func(ctx context.Context) (uint64, error)

// SweeperConfig tunes the confirmation loop.
type SweeperConfig struct {
	Confirmations uint64
	Interval      time.Duration
	BatchSize     int
}

// Sweeper periodically promotes pending trades to confirmed once their block is
// at least Confirmations blocks behind head. It only talks to the store and the
// head source, so it runs independently of connection state: when the head is
// unavailable it waits for the next tick instead of failing.
type Sweeper struct {
	cfg    SweeperConfig
	trades storage.TradeStore
	head   HeadFunc
	logger *zap.Logger
}

func NewSweeper(cfg SweeperConfig, trades storage.TradeStore, head HeadFunc, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Sweeper{cfg: cfg, trades: trades, head: head, logger: logger}
}

// Run loops until the context is cancelled. Cycle errors are logged, never
// propagated: a missed cycle just leaves trades pending until the next one.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if errors.Is(err, ErrNotConnected) {
					s.logger.Debug("confirmation sweep waiting for connection")
				} else {
					s.logger.Error("confirmation sweep failed", zap.Error(err))
				}
			}
		}
	}
}

// Sweep runs one confirmation cycle. Confirmation is monotone: re-sweeping an
// already confirmed trade is a no-op at the store.
func (s *Sweeper) Sweep(ctx context.Context) error {
	head, err := s.head(ctx)
	if err != nil {
		return err
	}

	if head <= s.cfg.Confirmations {
		return nil
	}
	cutoff := head - s.cfg.Confirmations

	pending, err := s.trades.ListPending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	confirmed := 0
	for _, row := range pending {
		if err := s.trades.MarkConfirmed(ctx, row.TxHash); err != nil {
			s.logger.Warn("mark confirmed failed",
				zap.String("tx_hash", row.TxHash),
				zap.Uint64("block", row.BlockNumber),
				zap.Error(err),
			)
			continue
		}
		confirmed++
		observability.RecordTradeConfirmed()
	}

	if confirmed > 0 {
		s.logger.Info("trades confirmed",
			zap.Int("count", confirmed),
			zap.Uint64("cutoff", cutoff),
		)
	}
	return nil
}
