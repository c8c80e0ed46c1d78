package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapledger/internal/dex"
	"swapledger/internal/model"
)

type memSyncStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemSyncStore() *memSyncStore {
	return &memSyncStore{data: make(map[string]string)}
}

func (s *memSyncStore) GetSyncState(_ context.Context, key, fallback string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.data[key]; ok {
		return value, nil
	}
	return fallback, nil
}

func (s *memSyncStore) SetSyncState(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type memTradeStore struct {
	mu          sync.Mutex
	rows        map[string]model.TradeRecord
	insertCalls int
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{rows: make(map[string]model.TradeRecord)}
}

func tradeKey(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}

func (s *memTradeStore) InsertTrade(_ context.Context, record model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	key := tradeKey(record.TxHash, record.LogIndex)
	if _, ok := s.rows[key]; ok {
		return nil
	}
	s.rows[key] = record
	return nil
}

func (s *memTradeStore) MarkConfirmed(_ context.Context, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, row := range s.rows {
		if row.TxHash == txHash && row.Status == model.StatusPending {
			row.Status = model.StatusConfirmed
			s.rows[key] = row
		}
	}
	return nil
}

func (s *memTradeStore) ListPending(_ context.Context, maxBlock uint64, limit int) ([]model.PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []model.PendingTrade
	for _, row := range s.rows {
		if row.Status == model.StatusPending && row.BlockNumber <= maxBlock {
			pending = append(pending, model.PendingTrade{TxHash: row.TxHash, BlockNumber: row.BlockNumber})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].BlockNumber < pending[j].BlockNumber })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *memTradeStore) ListTrades(_ context.Context, filter model.TradeFilter) ([]model.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var trades []model.TradeRecord
	for _, row := range s.rows {
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.Maker != "" && row.Maker != filter.Maker {
			continue
		}
		if filter.Pool != "" && row.PoolAddress != filter.Pool {
			continue
		}
		trades = append(trades, row)
	}
	return trades, nil
}

func (s *memTradeStore) get(txHash string, logIndex uint64) (model.TradeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[tradeKey(txHash, logIndex)]
	return row, ok
}

func (s *memTradeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type stubResolver struct {
	meta model.PoolMeta
	err  error
}

func (r *stubResolver) Resolve(context.Context, dex.ContractCaller, common.Address) (model.PoolMeta, error) {
	return r.meta, r.err
}

type fakeSub struct {
	errCh chan error
}

func newFakeSub() *fakeSub {
	return &fakeSub{errCh: make(chan error, 1)}
}

func (s *fakeSub) Err() <-chan error { return s.errCh }
func (s *fakeSub) Unsubscribe()      {}

type fakeConn struct {
	mu sync.Mutex

	head    uint64
	headErr error
	logs    []types.Log

	filterCalls []BlockRange
	failFroms   map[uint64]bool

	sub    *fakeSub
	liveCh chan<- types.Log
}

func newFakeConn(head uint64) *fakeConn {
	return &fakeConn{head: head, failFroms: make(map[uint64]bool), sub: newFakeSub()}
}

func (c *fakeConn) FilterLogs(_ context.Context, fromBlock, toBlock uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls = append(c.filterCalls, BlockRange{From: fromBlock, To: toBlock})
	if c.failFroms[fromBlock] {
		return nil, errors.New("range query failed")
	}
	var out []types.Log
	for _, lg := range c.logs {
		if lg.BlockNumber >= fromBlock && lg.BlockNumber <= toBlock {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (c *fakeConn) HeadBlock(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.headErr
}

func (c *fakeConn) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number, nil
}

func (c *fakeConn) SubscribeLogs(_ context.Context, _ []common.Address, _ []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveCh = ch
	return c.sub, nil
}

func (c *fakeConn) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (c *fakeConn) Close() {}

func (c *fakeConn) pushLive(lg types.Log) {
	c.mu.Lock()
	ch := c.liveCh
	c.mu.Unlock()
	ch <- lg
}

func (c *fakeConn) calls() []BlockRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BlockRange, len(c.filterCalls))
	copy(out, c.filterCalls)
	return out
}

// makeV3SwapLog packs a V3 Swap log the way the pool contract emits it.
func makeV3SwapLog(pool common.Address, block uint64, txHash common.Hash, index uint, amount0, amount1 *big.Int) types.Log {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		panic(err)
	}
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		amount0,
		amount1,
		big.NewInt(1),
		big.NewInt(1),
		big.NewInt(0),
	)
	if err != nil {
		panic(err)
	}
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	return types.Log{
		Address: pool,
		Topics: []common.Hash{
			common.HexToHash(dex.V3SwapTopic),
			common.BytesToHash(common.LeftPadBytes(sender.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(recipient.Bytes(), 32)),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}
