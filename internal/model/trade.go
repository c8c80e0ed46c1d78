package model

import (
	"encoding/json"
	"time"
)

// Trade sides.
const (
	SideBuy     = "buy"
	SideSell    = "sell"
	SideUnknown = "unknown"
)

// Trade lifecycle statuses. A trade is created pending and moves to confirmed
// exactly once; no other transitions exist.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// DerivedTrade is the buy/sell classification of a decoded swap relative to the
// tracked token. Amounts are human-scaled decimal strings; nil means the leg was
// zero or the pool does not contain the tracked token.
type DerivedTrade struct {
	Side          string  `json:"side"`
	TrackedAmount *string `json:"tracked_amount"`
	QuoteSymbol   *string `json:"quote_symbol"`
	QuoteAmount   *string `json:"quote_amount"`
}

// TradeRecord is one row of the trade ledger, keyed by (tx hash, log index).
type TradeRecord struct {
	Chain         string          `json:"chain"`
	TxHash        string          `json:"tx_hash"`
	LogIndex      uint64          `json:"log_index"`
	BlockNumber   uint64          `json:"block_number"`
	BlockTime     time.Time       `json:"block_time"`
	PoolAddress   string          `json:"pool_address"`
	Side          string          `json:"side"`
	TrackedAmount *string         `json:"tracked_amount"`
	QuoteSymbol   *string         `json:"quote_symbol"`
	QuoteAmount   *string         `json:"quote_amount"`
	Maker         string          `json:"maker"`
	Status        string          `json:"status"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// RawPayload is the audit snapshot stored alongside each trade: the original log
// position, the decoded swap, and the pool metadata used to derive it.
type RawPayload struct {
	LogIndex uint64      `json:"log_index"`
	Removed  bool        `json:"removed"`
	Backfill bool        `json:"backfill"`
	Swap     DecodedSwap `json:"swap"`
	PoolMeta PoolMeta    `json:"pool_meta"`
}

// PendingTrade is the projection the confirmation sweeper works from.
type PendingTrade struct {
	TxHash      string
	BlockNumber uint64
}

// TradeFilter narrows trade listings for reporting reads.
type TradeFilter struct {
	Maker  string
	Pool   string
	Status string
	Since  time.Time
	Limit  int
}
