package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapledger/internal/observability"
)

// Stream manager states.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by Head while no live connection exists.
var ErrNotConnected = errors.New("no live connection")

// StreamConfig tunes the live connection lifecycle.
type StreamConfig struct {
	Addresses []common.Address
	Topic0    []common.Hash

	// BackfillWindow bounds how far back the first run replays when no
	// checkpoint exists.
	BackfillWindow uint64

	// ReconnectDelay follows a transport error on an established connection;
	// ConnectErrorDelay follows a failed connect attempt. Both prevent
	// tight-loop reconnect storms.
	ReconnectDelay    time.Duration
	ConnectErrorDelay time.Duration

	SubscribeBuffer int
}

// StreamManager owns the single persistent connection to the chain event
// source. On every (re)connect it closes the gap between the stored checkpoint
// and the current head via backfill before registering the live subscription,
// so no block between the two delivery modes is missed. The supervising loop
// runs in one goroutine, which keeps at most one connection attempt in flight.
type StreamManager struct {
	cfg        StreamConfig
	dial       DialFunc
	ingest     *Ingestor
	backfill   *Backfiller
	checkpoint *Checkpoint
	logger     *zap.Logger

	mu    sync.Mutex
	conn  Conn
	state State
}

func NewStreamManager(
	cfg StreamConfig,
	dial DialFunc,
	ingest *Ingestor,
	backfill *Backfiller,
	checkpoint *Checkpoint,
	logger *zap.Logger,
) *StreamManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubscribeBuffer <= 0 {
		cfg.SubscribeBuffer = 256
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.ConnectErrorDelay <= 0 {
		cfg.ConnectErrorDelay = 5 * time.Second
	}
	return &StreamManager{
		cfg:        cfg,
		dial:       dial,
		ingest:     ingest,
		backfill:   backfill,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// Run drives the connection state machine until the context is cancelled.
func (m *StreamManager) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("connect failed", zap.Error(err))
			observability.RecordReconnect("connect_error")
			if err := sleepCtx(ctx, m.cfg.ConnectErrorDelay); err != nil {
				return err
			}
			continue
		}

		err = m.serve(ctx, conn)

		m.setConn(nil)
		conn.Close()
		m.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Warn("stream disconnected, scheduling reconnect", zap.Error(err))
		observability.RecordReconnect("transport_error")
		if err := sleepCtx(ctx, m.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

// serve closes the checkpoint gap, then consumes live logs until the
// subscription or the context fails.
func (m *StreamManager) serve(ctx context.Context, conn Conn) error {
	head, err := conn.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("head block: %w", err)
	}
	observability.SetHeadBlock(head)

	stored, hasCheckpoint, err := m.checkpoint.Load(ctx)
	if err != nil {
		return err
	}

	start := backfillStart(stored, hasCheckpoint, head, m.cfg.BackfillWindow)
	if head > 0 && start <= head-1 {
		if err := m.backfill.Run(ctx, conn, start, head-1); err != nil {
			return fmt.Errorf("gap backfill: %w", err)
		}
	}

	ch := make(chan types.Log, m.cfg.SubscribeBuffer)
	sub, err := conn.SubscribeLogs(ctx, m.cfg.Addresses, m.cfg.Topic0, ch)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	m.setConn(conn)
	m.setState(StateReady)
	m.logger.Info("live subscription established", zap.Uint64("head", head))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case lg := <-ch:
			if err := m.ingest.HandleLog(ctx, conn, lg, false); err != nil {
				m.logger.Warn("live log skipped",
					zap.String("address", lg.Address.Hex()),
					zap.String("tx_hash", lg.TxHash.Hex()),
					zap.Uint64("block", lg.BlockNumber),
					zap.Error(err),
				)
			}
		}
	}
}

// Head reports the current chain head over the live connection. It fails with
// ErrNotConnected while the manager is between connections.
func (m *StreamManager) Head(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.HeadBlock(ctx)
}

// CurrentState reports the state machine position.
func (m *StreamManager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StreamManager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *StreamManager) setConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// backfillStart picks the first block to replay on connect: resume right after
// the checkpoint, but never further back than window blocks behind head.
func backfillStart(checkpoint uint64, hasCheckpoint bool, head, window uint64) uint64 {
	var floor uint64
	if head > window {
		floor = head - window
	}
	if !hasCheckpoint {
		return floor
	}
	start := checkpoint + 1
	if start < floor {
		start = floor
	}
	return start
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
