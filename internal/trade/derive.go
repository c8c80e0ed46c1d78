// Package trade classifies decoded swaps as buys or sells of the tracked token.
package trade

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"swapledger/internal/model"
)

// Derive computes the trade side and human-scaled amounts relative to the
// tracked token. Pools that do not contain the tracked token still produce a
// record, with side unknown and nil amounts.
func Derive(meta model.PoolMeta, swap model.DecodedSwap, trackedToken string) model.DerivedTrade {
	trackedToken = strings.ToLower(trackedToken)
	tracked0 := meta.Token0 == trackedToken
	tracked1 := meta.Token1 == trackedToken
	if !tracked0 && !tracked1 {
		return model.DerivedTrade{Side: model.SideUnknown}
	}

	if swap.Kind == model.SwapKindV3 {
		return deriveV3(meta, swap, tracked0)
	}
	return deriveV2(meta, swap, tracked0)
}

// V3 deltas are from the pool's point of view: a negative tracked delta means
// the pool paid the token out to the trader, so the trader bought it.
func deriveV3(meta model.PoolMeta, swap model.DecodedSwap, tracked0 bool) model.DerivedTrade {
	trackedRaw, quoteRaw := swap.Amount0, swap.Amount1
	if !tracked0 {
		trackedRaw, quoteRaw = swap.Amount1, swap.Amount0
	}

	trackedDelta, ok := new(big.Int).SetString(trackedRaw, 10)
	if !ok {
		trackedDelta = new(big.Int)
	}
	quoteDelta, ok := new(big.Int).SetString(quoteRaw, 10)
	if !ok {
		quoteDelta = new(big.Int)
	}

	side := model.SideUnknown
	switch trackedDelta.Sign() {
	case -1:
		side = model.SideBuy
	case 1:
		side = model.SideSell
	}

	trackedDecimals, quoteDecimals, quoteSymbol := poolSides(meta, tracked0)
	trackedAbs := new(big.Int).Abs(trackedDelta)
	quoteAbs := new(big.Int).Abs(quoteDelta)

	return model.DerivedTrade{
		Side:          side,
		TrackedAmount: scaleNonZero(trackedAbs, trackedDecimals),
		QuoteSymbol:   &quoteSymbol,
		QuoteAmount:   scaleNonZero(quoteAbs, quoteDecimals),
	}
}

// V2 legs are unsigned: the tracked token leaving the pool (amountOut) means a
// buy, entering (amountIn) means a sell. The pairing is symmetric on whichever
// side holds the tracked token.
func deriveV2(meta model.PoolMeta, swap model.DecodedSwap, tracked0 bool) model.DerivedTrade {
	var trackedIn, trackedOut, quoteIn, quoteOut string
	if tracked0 {
		trackedIn, trackedOut = swap.Amount0In, swap.Amount0Out
		quoteIn, quoteOut = swap.Amount1In, swap.Amount1Out
	} else {
		trackedIn, trackedOut = swap.Amount1In, swap.Amount1Out
		quoteIn, quoteOut = swap.Amount0In, swap.Amount0Out
	}

	trackedInNum := parseAmount(trackedIn)
	trackedOutNum := parseAmount(trackedOut)
	quoteInNum := parseAmount(quoteIn)
	quoteOutNum := parseAmount(quoteOut)

	side := model.SideUnknown
	if trackedOutNum.Sign() > 0 {
		side = model.SideBuy
	} else if trackedInNum.Sign() > 0 {
		side = model.SideSell
	}

	trackedAmount := trackedInNum
	if trackedOutNum.Sign() > 0 {
		trackedAmount = trackedOutNum
	}
	quoteAmount := quoteInNum
	if quoteOutNum.Sign() > 0 {
		quoteAmount = quoteOutNum
	}

	trackedDecimals, quoteDecimals, quoteSymbol := poolSides(meta, tracked0)

	return model.DerivedTrade{
		Side:          side,
		TrackedAmount: scaleNonZero(trackedAmount, trackedDecimals),
		QuoteSymbol:   &quoteSymbol,
		QuoteAmount:   scaleNonZero(quoteAmount, quoteDecimals),
	}
}

func poolSides(meta model.PoolMeta, tracked0 bool) (trackedDecimals, quoteDecimals uint8, quoteSymbol string) {
	if tracked0 {
		return meta.Token0Decimals, meta.Token1Decimals, meta.Token1Symbol
	}
	return meta.Token1Decimals, meta.Token0Decimals, meta.Token0Symbol
}

func parseAmount(raw string) *big.Int {
	if raw == "" {
		return new(big.Int)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return new(big.Int)
	}
	return value
}

// scaleNonZero returns nil for zero legs rather than "0".
func scaleNonZero(value *big.Int, decimals uint8) *string {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	scaled := FormatAmount(value.String(), decimals)
	return &scaled
}

// FormatAmount scales a raw integer string by the token's decimals. A malformed
// input falls back to the raw string rather than failing the trade.
func FormatAmount(raw string, decimals uint8) string {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return value.Shift(-int32(decimals)).String()
}
