package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidAddress reports whether address is a 20-byte hex EVM address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// NormalizeAddress returns the EIP-55 checksummed form, or "" if invalid
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}
