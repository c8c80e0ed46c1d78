package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapledger/internal/model"
)

// ContractCaller abstracts eth_call so the cache can be exercised against a
// live client or a test stub.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolMetaCache resolves and memoizes pool metadata for the process lifetime.
// Concurrent misses for the same pool may resolve redundantly; the second write
// is identical, so no coordination beyond the map lock is needed.
type PoolMetaCache struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[string]model.PoolMeta

	tokenMu sync.RWMutex
	tokens  map[string]model.TokenMeta
}

// NewPoolMetaCache builds an empty cache.
func NewPoolMetaCache(logger *zap.Logger) *PoolMetaCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolMetaCache{
		logger: logger,
		pools:  make(map[string]model.PoolMeta),
		tokens: make(map[string]model.TokenMeta),
	}
}

// Resolve returns the pool's metadata, fetching it on first sight. token0 or
// token1 failing is fatal for the pool; symbol and decimals failures degrade to
// an empty symbol and 18 decimals.
func (c *PoolMetaCache) Resolve(ctx context.Context, caller ContractCaller, pool common.Address) (model.PoolMeta, error) {
	key := strings.ToLower(pool.Hex())

	c.mu.RLock()
	meta, ok := c.pools[key]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("contract caller is nil")
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	token0, err := callAddressMethod(ctx, caller, pool, poolABI, "token0")
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := callAddressMethod(ctx, caller, pool, poolABI, "token1")
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("token1: %w", err)
	}

	meta0 := c.tokenMeta(ctx, caller, token0)
	meta1 := c.tokenMeta(ctx, caller, token1)

	meta = model.PoolMeta{
		Token0:         strings.ToLower(token0.Hex()),
		Token1:         strings.ToLower(token1.Hex()),
		Token0Symbol:   meta0.Symbol,
		Token1Symbol:   meta1.Symbol,
		Token0Decimals: meta0.Decimals,
		Token1Decimals: meta1.Decimals,
	}

	c.mu.Lock()
	c.pools[key] = meta
	c.mu.Unlock()

	return meta, nil
}

func (c *PoolMetaCache) tokenMeta(ctx context.Context, caller ContractCaller, token common.Address) model.TokenMeta {
	key := strings.ToLower(token.Hex())

	c.tokenMu.RLock()
	meta, ok := c.tokens[key]
	c.tokenMu.RUnlock()
	if ok {
		return meta
	}

	meta = fetchTokenMeta(ctx, caller, token, c.logger)

	c.tokenMu.Lock()
	c.tokens[key] = meta
	c.tokenMu.Unlock()

	return meta
}

// fetchTokenMeta never fails: symbol degrades to "" and decimals to 18.
func fetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) model.TokenMeta {
	meta := model.TokenMeta{Decimals: 18}

	stringABI, err := erc20StringABI()
	if err != nil {
		logger.Warn("erc20 abi parse failed", zap.Error(err))
		return meta
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "decimals"); err == nil {
		if decimals, err := asUint8(values[0]); err == nil {
			meta.Decimals = decimals
		}
	} else {
		logger.Debug("erc20 decimals call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if b32ABI, abiErr := erc20Bytes32ABI(); abiErr == nil {
		if values, err := callMethod(ctx, caller, token, b32ABI, "symbol"); err == nil {
			if symbol, ok := bytes32ToString(values[0]); ok {
				meta.Symbol = symbol
			}
		} else {
			logger.Debug("erc20 symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
		}
	}

	return meta
}

func callMethod(ctx context.Context, caller ContractCaller, target common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func callAddressMethod(ctx context.Context, caller ContractCaller, target common.Address, parsed abi.ABI, method string) (common.Address, error) {
	values, err := callMethod(ctx, caller, target, parsed, method)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}
