// Package byte4 names the method a piece of calldata targets, so a batch can
// be previewed before it is signed.
package byte4

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC20ABI covers the token methods a smart account usually batches.
const ERC20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		panic(fmt.Errorf("invalid erc20 abi: %w", err))
	}
	return parsed
}()

// Selector is the first 4 bytes of keccak256 of a canonical signature such as
// "transfer(address,uint256)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// GetMethodFromCalldata returns the method of parsedABI whose selector
// prefixes data.
func GetMethodFromCalldata(parsedABI abi.ABI, data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(data))
	}
	var sel [4]byte
	copy(sel[:], data[:4])

	for _, method := range parsedABI.Methods {
		if Selector(method.Sig) == sel {
			m := method
			return &m, nil
		}
	}
	return nil, fmt.Errorf("no matching method found for selector: %s", hexutil.Encode(sel[:]))
}

// Describe renders calldata for display: the method signature when one of
// abis (ERC-20 when none are given) knows the selector, the bare selector
// otherwise. Empty calldata is a plain value transfer.
func Describe(data []byte, abis ...abi.ABI) string {
	if len(data) == 0 {
		return "transfer"
	}
	if len(abis) == 0 {
		abis = []abi.ABI{erc20}
	}
	for _, parsed := range abis {
		if m, err := GetMethodFromCalldata(parsed, data); err == nil {
			return m.Sig
		}
	}
	if len(data) < 4 {
		return hexutil.Encode(data)
	}
	return hexutil.Encode(data[:4])
}
