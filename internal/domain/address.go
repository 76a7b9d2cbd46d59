package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress parses a hex address, rejecting anything that is not a
// 20-byte hex string. The returned value formats with EIP-55 checksum
// casing via Hex(); comparison is byte-wise, so equality is
// case-insensitive with respect to the input form.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseTxHash parses a transaction hash: 0x prefix plus 64 hex digits.
func ParseTxHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q", s)
	}
	if _, err := hexutil.Decode(s); err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: %w", s, err)
	}
	return common.HexToHash(s), nil
}
