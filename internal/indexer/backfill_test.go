package indexer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapledger/internal/dex"
)

func newTestBackfiller(t *testing.T, trades *memTradeStore, chunkSize uint64) *Backfiller {
	t.Helper()
	ingest := newTestIngestor(t, trades, &stubResolver{meta: testPoolMeta()})
	return NewBackfiller(BackfillConfig{
		Addresses:    []common.Address{testPool},
		Topic0:       dex.SwapTopics(),
		ChunkSize:    chunkSize,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	}, ingest, nil)
}

func TestBackfillerChunkQueries(t *testing.T) {
	trades := newMemTradeStore()
	backfill := newTestBackfiller(t, trades, 8)
	conn := newFakeConn(200)

	require.NoError(t, backfill.Run(context.Background(), conn, 100, 117))

	want := []BlockRange{{From: 100, To: 107}, {From: 108, To: 115}, {From: 116, To: 117}}
	assert.Equal(t, want, conn.calls())
}

func TestBackfillerIngestsLogs(t *testing.T) {
	trades := newMemTradeStore()
	backfill := newTestBackfiller(t, trades, 50)
	conn := newFakeConn(200)
	conn.logs = append(conn.logs,
		makeV3SwapLog(testPool, 103,
			common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000010"),
			0, big.NewInt(-100), big.NewInt(200)),
		makeV3SwapLog(testPool, 148,
			common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000011"),
			1, big.NewInt(100), big.NewInt(-200)),
	)

	require.NoError(t, backfill.Run(context.Background(), conn, 100, 150))
	assert.Equal(t, 2, trades.count())
}

func TestBackfillerFailedChunkAdvances(t *testing.T) {
	trades := newMemTradeStore()
	backfill := newTestBackfiller(t, trades, 8)
	conn := newFakeConn(200)
	conn.failFroms[108] = true
	conn.logs = append(conn.logs,
		makeV3SwapLog(testPool, 116,
			common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000012"),
			0, big.NewInt(-100), big.NewInt(200)),
	)

	require.NoError(t, backfill.Run(context.Background(), conn, 100, 117),
		"a failed chunk must not abort the run")

	assert.Len(t, conn.calls(), 3, "the cursor must advance past the failed chunk")
	assert.Equal(t, 1, trades.count(), "chunks after the failure must still be processed")
}

func TestBackfillerBadLogDoesNotAbortChunk(t *testing.T) {
	trades := newMemTradeStore()
	backfill := newTestBackfiller(t, trades, 50)
	conn := newFakeConn(200)

	bad := makeV3SwapLog(testPool, 105,
		common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000013"),
		0, big.NewInt(-1), big.NewInt(1))
	bad.Data = []byte{0x01, 0x02}
	conn.logs = append(conn.logs,
		bad,
		makeV3SwapLog(testPool, 110,
			common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000014"),
			0, big.NewInt(-100), big.NewInt(200)),
	)

	require.NoError(t, backfill.Run(context.Background(), conn, 100, 150))
	assert.Equal(t, 1, trades.count(), "the undecodable log is skipped, the rest of the chunk persists")
}

func TestBackfillerCancellation(t *testing.T) {
	trades := newMemTradeStore()
	backfill := newTestBackfiller(t, trades, 8)
	conn := newFakeConn(200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backfill.Run(ctx, conn, 100, 117)
	assert.ErrorIs(t, err, context.Canceled)
}
