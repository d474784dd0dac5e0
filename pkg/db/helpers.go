package db

import (
	"encoding/hex"
	"math/big"
	"strings"
)

func Bytes32ToHex(value [32]byte) string {
	return "0x" + hex.EncodeToString(value[:])
}

// NormalizeHex lowercases a hex string and ensures the 0x prefix.
func NormalizeHex(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if !strings.HasPrefix(value, "0x") {
		value = "0x" + value
	}
	return value
}

func BigIntString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
