package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"swapledger/internal/chain"
	"swapledger/internal/config"
	"swapledger/internal/dex"
	"swapledger/internal/indexer"
	"swapledger/internal/observability"
	"swapledger/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "listener",
		Short:        "Swap trade ledger indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the swap listener",
		RunE:  runListener,
	}

	runCmd.Flags().String("rpc", "", "websocket RPC URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("chain", "base", "chain label stored on trade rows")
	runCmd.Flags().String("tracked-token", "", "address of the token classified as buy/sell")
	runCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	runCmd.Flags().Uint64("confirmations", 10, "blocks before a trade is confirmed")
	runCmd.Flags().Uint64("log-chunk", 500, "blocks per backfill range query")
	runCmd.Flags().Uint64("backfill-window", 5000, "max blocks to replay when no checkpoint exists")
	runCmd.Flags().Duration("chunk-delay", 150*time.Millisecond, "pause between backfill chunks")
	runCmd.Flags().Duration("reconnect-delay", 3*time.Second, "delay before reconnect after a transport error")
	runCmd.Flags().Duration("connect-error-delay", 5*time.Second, "delay before retrying a failed connect")
	runCmd.Flags().Duration("sweep-interval", 5*time.Second, "confirmation sweep interval")
	runCmd.Flags().Int("sweep-batch", 500, "max pending trades confirmed per sweep")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for point queries")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("rpc-timeout", 15*time.Second, "per-call RPC timeout")
	runCmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics listen address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListener(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	trackedToken, err := indexer.ParseTrackedToken(cfg.TrackedToken)
	if err != nil {
		return err
	}
	pools := indexer.ParsePoolAddresses(cfg.Pools, logger)
	if len(pools) == 0 {
		return fmt.Errorf("no valid pool addresses configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		return err
	}

	metaCache := dex.NewPoolMetaCache(logger)
	checkpoint := indexer.NewCheckpoint(store)

	ingest := indexer.NewIngestor(indexer.IngestConfig{
		Chain:        cfg.Chain,
		TrackedToken: trackedToken,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, decoder, metaCache, store, checkpoint, logger)

	topics := dex.SwapTopics()

	backfill := indexer.NewBackfiller(indexer.BackfillConfig{
		Addresses:    pools,
		Topic0:       topics,
		ChunkSize:    cfg.LogChunk,
		ChunkDelay:   cfg.ChunkDelay,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, ingest, logger)

	dial := func(ctx context.Context) (indexer.Conn, error) {
		return chain.Dial(ctx, cfg.RPCURL, cfg.RPCTimeout)
	}

	manager := indexer.NewStreamManager(indexer.StreamConfig{
		Addresses:         pools,
		Topic0:            topics,
		BackfillWindow:    cfg.BackfillWindow,
		ReconnectDelay:    cfg.ReconnectDelay,
		ConnectErrorDelay: cfg.ConnectErrorDelay,
	}, dial, ingest, backfill, checkpoint, logger)

	sweeper := indexer.NewSweeper(indexer.SweeperConfig{
		Confirmations: cfg.Confirmations,
		Interval:      cfg.SweepInterval,
		BatchSize:     cfg.SweepBatch,
	}, store, manager.Head, logger)

	logger.Info("listener start",
		zap.String("chain", cfg.Chain),
		zap.String("tracked_token", trackedToken),
		zap.Int("pools", len(pools)),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Uint64("log_chunk", cfg.LogChunk),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gCtx) })
	g.Go(func() error { return sweeper.Run(gCtx) })
	g.Go(func() error { return serveMetrics(gCtx, cfg.MetricsAddr, logger) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
			return err
		}
		return nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
