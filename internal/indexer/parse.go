package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ParsePoolAddresses converts configured pool addresses, skipping invalid
// entries with a warning. An empty result is the caller's fatal config error.
func ParsePoolAddresses(inputs []string, logger *zap.Logger) []common.Address {
	if logger == nil {
		logger = zap.NewNop()
	}
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			logger.Warn("invalid pool address skipped", zap.String("address", input))
			continue
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses
}

// ParseTrackedToken validates and lowercases the tracked token address.
func ParseTrackedToken(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("invalid tracked token address: %s", input)
	}
	return strings.ToLower(common.HexToAddress(input).Hex()), nil
}
