package model

// PoolMeta captures immutable pool metadata resolved once per process lifetime.
// Addresses are stored lowercased.
type PoolMeta struct {
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Token0Symbol   string `json:"token0_symbol"`
	Token1Symbol   string `json:"token1_symbol"`
	Token0Decimals uint8  `json:"token0_decimals"`
	Token1Decimals uint8  `json:"token1_decimals"`
}

// TokenMeta captures ERC-20 metadata for one side of a pool. Symbol may be empty
// and Decimals defaults to 18 when introspection fails.
type TokenMeta struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}
