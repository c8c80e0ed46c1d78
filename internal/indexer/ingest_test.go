package indexer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapledger/internal/dex"
	"swapledger/internal/model"
)

const (
	testTrackedToken = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testQuoteToken   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var testPool = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testPoolMeta() model.PoolMeta {
	return model.PoolMeta{
		Token0:         testTrackedToken,
		Token1:         testQuoteToken,
		Token0Symbol:   "TKN",
		Token1Symbol:   "USDC",
		Token0Decimals: 18,
		Token1Decimals: 6,
	}
}

func newTestIngestor(t *testing.T, trades *memTradeStore, resolver MetaResolver) *Ingestor {
	t.Helper()
	decoder, err := dex.NewSwapDecoder()
	require.NoError(t, err)
	return NewIngestor(IngestConfig{
		Chain:        "base",
		TrackedToken: testTrackedToken,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, decoder, resolver, trades, NewCheckpoint(newMemSyncStore()), nil)
}

func TestIngestorHandleLog(t *testing.T) {
	ctx := context.Background()
	trades := newMemTradeStore()
	ingest := newTestIngestor(t, trades, &stubResolver{meta: testPoolMeta()})
	conn := newFakeConn(100)

	txHash := common.HexToHash("0xABCDEF0000000000000000000000000000000000000000000000000000000001")
	lg := makeV3SwapLog(testPool, 95, txHash, 7,
		new(big.Int).Neg(big.NewInt(1000000000000000000)),
		big.NewInt(500000000),
	)

	require.NoError(t, ingest.HandleLog(ctx, conn, lg, true))

	row, ok := trades.get("0xabcdef0000000000000000000000000000000000000000000000000000000001", 7)
	require.True(t, ok, "trade row should be persisted")

	assert.Equal(t, "base", row.Chain)
	assert.Equal(t, uint64(95), row.BlockNumber)
	assert.Equal(t, time.Unix(1700000095, 0).UTC(), row.BlockTime)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", row.PoolAddress)
	assert.Equal(t, model.SideBuy, row.Side)
	require.NotNil(t, row.TrackedAmount)
	assert.Equal(t, "1", *row.TrackedAmount)
	require.NotNil(t, row.QuoteSymbol)
	assert.Equal(t, "USDC", *row.QuoteSymbol)
	require.NotNil(t, row.QuoteAmount)
	assert.Equal(t, "0.5", *row.QuoteAmount)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", row.Maker)
	assert.Equal(t, model.StatusPending, row.Status)
	assert.NotEmpty(t, row.Raw)
}

func TestIngestorDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	trades := newMemTradeStore()
	ingest := newTestIngestor(t, trades, &stubResolver{meta: testPoolMeta()})
	conn := newFakeConn(100)

	txHash := common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000002")
	lg := makeV3SwapLog(testPool, 90, txHash, 3, big.NewInt(100), big.NewInt(-200))

	// Backfill and the live subscription can both deliver the same log.
	require.NoError(t, ingest.HandleLog(ctx, conn, lg, true))
	require.NoError(t, ingest.HandleLog(ctx, conn, lg, false))

	assert.Equal(t, 1, trades.count(), "duplicate delivery must produce exactly one row")
	assert.Equal(t, 2, trades.insertCalls)
}

func TestIngestorAdvancesCheckpoint(t *testing.T) {
	ctx := context.Background()
	trades := newMemTradeStore()
	decoder, err := dex.NewSwapDecoder()
	require.NoError(t, err)
	cp := NewCheckpoint(newMemSyncStore())
	ingest := NewIngestor(IngestConfig{
		Chain:        "base",
		TrackedToken: testTrackedToken,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, decoder, &stubResolver{meta: testPoolMeta()}, trades, cp, nil)
	conn := newFakeConn(100)

	first := makeV3SwapLog(testPool, 80,
		common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000003"),
		0, big.NewInt(-100), big.NewInt(200))
	second := makeV3SwapLog(testPool, 75,
		common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000004"),
		1, big.NewInt(100), big.NewInt(-200))

	require.NoError(t, ingest.HandleLog(ctx, conn, first, true))
	require.NoError(t, ingest.HandleLog(ctx, conn, second, true))

	block, ok, err := cp.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(80), block, "an out-of-order lower block must not regress the checkpoint")
}

func TestIngestorMetaFailureSkipsLog(t *testing.T) {
	ctx := context.Background()
	trades := newMemTradeStore()
	ingest := newTestIngestor(t, trades, &stubResolver{err: errors.New("pool unreachable")})
	conn := newFakeConn(100)

	lg := makeV3SwapLog(testPool, 90,
		common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000005"),
		0, big.NewInt(-1), big.NewInt(1))

	err := ingest.HandleLog(ctx, conn, lg, false)
	assert.Error(t, err)
	assert.Equal(t, 0, trades.count(), "a log without pool metadata must not be persisted")
}
