package model

// SwapKind tags the two supported swap event encodings.
type SwapKind string

const (
	SwapKindV2 SwapKind = "v2"
	SwapKindV3 SwapKind = "v3"
)

// DecodedSwap is a normalized swap event. Kind selects which amount fields are
// populated: V3 carries signed pool deltas, V2 carries in/out pairs. All numeric
// fields are decimal strings to avoid precision loss.
type DecodedSwap struct {
	Kind      SwapKind `json:"kind"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`

	// V3 fields. Amounts are twos-complement deltas from the pool's point of
	// view: positive means the pool received the token, negative means it sent it.
	Amount0      string `json:"amount0,omitempty"`
	Amount1      string `json:"amount1,omitempty"`
	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	Tick         int32  `json:"tick,omitempty"`

	// V2 fields.
	Amount0In  string `json:"amount0_in,omitempty"`
	Amount1In  string `json:"amount1_in,omitempty"`
	Amount0Out string `json:"amount0_out,omitempty"`
	Amount1Out string `json:"amount1_out,omitempty"`
}
