package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func convertToAddressSlice(addresses []string) []common.Address {
	result := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		result[i] = common.HexToAddress(addr)
	}
	return result
}

// parseBig reads a decimal or 0x hex number; empty means nil.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
