package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapledger/internal/model"
)

// Swap event signatures (topic0, lowercased).
const (
	V3SwapTopic = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
	V2SwapTopic = "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"
)

// SwapTopics returns the topic0 filter covering both supported encodings.
func SwapTopics() []common.Hash {
	return []common.Hash{
		common.HexToHash(V3SwapTopic),
		common.HexToHash(V2SwapTopic),
	}
}

// SwapDecoder parses raw swap logs into normalized records. Pure; no I/O.
type SwapDecoder struct {
	poolABI abi.ABI
	pairABI abi.ABI
}

// NewSwapDecoder builds a decoder for both swap encodings.
func NewSwapDecoder() (*SwapDecoder, error) {
	pool, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	pair, err := V2PairABI()
	if err != nil {
		return nil, err
	}
	return &SwapDecoder{poolABI: pool, pairABI: pair}, nil
}

// Decode dispatches on topic0. A log with a topic outside the two known swap
// signatures is a decode error: the subscription filter should never deliver
// one, so a mismatch signals a caller bug rather than data to ignore.
func (d *SwapDecoder) Decode(lg types.Log) (model.DecodedSwap, error) {
	if len(lg.Topics) == 0 {
		return model.DecodedSwap{}, fmt.Errorf("missing topics")
	}

	switch strings.ToLower(lg.Topics[0].Hex()) {
	case V3SwapTopic:
		return d.decodeV3(lg)
	case V2SwapTopic:
		return d.decodeV2(lg)
	default:
		return model.DecodedSwap{}, fmt.Errorf("unrecognized swap topic0: %s", lg.Topics[0].Hex())
	}
}

func (d *SwapDecoder) decodeV3(lg types.Log) (model.DecodedSwap, error) {
	event := d.poolABI.Events["Swap"]
	if len(lg.Topics) != 3 {
		return model.DecodedSwap{}, fmt.Errorf("v3 swap: expected 3 topics, got %d", len(lg.Topics))
	}

	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), lg.Topics[1:]); err != nil {
		return model.DecodedSwap{}, fmt.Errorf("v3 swap topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return model.DecodedSwap{}, fmt.Errorf("v3 swap data: %w", err)
	}
	if len(values) != 5 {
		return model.DecodedSwap{}, fmt.Errorf("v3 swap: unexpected value count %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.DecodedSwap{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.DecodedSwap{}, err
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return model.DecodedSwap{}, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return model.DecodedSwap{}, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.DecodedSwap{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.DecodedSwap{}, err
	}

	return model.DecodedSwap{
		Kind:         model.SwapKindV3,
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      amount0.String(),
		Amount1:      amount1.String(),
		SqrtPriceX96: sqrtPrice.String(),
		Liquidity:    liquidity.String(),
		Tick:         tick,
	}, nil
}

func (d *SwapDecoder) decodeV2(lg types.Log) (model.DecodedSwap, error) {
	event := d.pairABI.Events["Swap"]
	if len(lg.Topics) != 3 {
		return model.DecodedSwap{}, fmt.Errorf("v2 swap: expected 3 topics, got %d", len(lg.Topics))
	}

	var indexed struct {
		Sender common.Address
		To     common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), lg.Topics[1:]); err != nil {
		return model.DecodedSwap{}, fmt.Errorf("v2 swap topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return model.DecodedSwap{}, fmt.Errorf("v2 swap data: %w", err)
	}
	if len(values) != 4 {
		return model.DecodedSwap{}, fmt.Errorf("v2 swap: unexpected value count %d", len(values))
	}

	amounts := make([]*big.Int, 4)
	for i, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return model.DecodedSwap{}, err
		}
		amounts[i] = amount
	}

	return model.DecodedSwap{
		Kind:       model.SwapKindV2,
		Sender:     indexed.Sender.Hex(),
		Recipient:  indexed.To.Hex(),
		Amount0In:  amounts[0].String(),
		Amount1In:  amounts[1].String(),
		Amount0Out: amounts[2].String(),
		Amount1Out: amounts[3].String(),
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
