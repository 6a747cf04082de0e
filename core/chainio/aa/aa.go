// Package aa reads the on chain state smart accounts depend on: entry point
// nonces, factory counterfactual addresses and deployed code.
package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

// ChainReader is the subset of an ethclient the account layer needs.
type ChainReader interface {
	ethereum.ContractCaller
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

var maxNonceKey = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 192), big.NewInt(1))

// GetInitCode returns factory‖factoryData, the 0.6 initCode.
func GetInitCode(factory common.Address, factoryData []byte) []byte {
	data := make([]byte, 0, common.AddressLength+len(factoryData))
	data = append(data, factory.Bytes()...)
	return append(data, factoryData...)
}

// GetNonce reads the entry point nonce for sender in the sequence space key.
// A nil key is the default space 0.
func GetNonce(ctx context.Context, conn ChainReader, ep entrypoint.EntryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}
	if key.Sign() < 0 || key.Cmp(maxNonceKey) > 0 {
		return nil, fmt.Errorf("nonce key %s does not fit in uint192", key)
	}

	var nonce *big.Int
	if err := callView(ctx, conn, ep.Address, ep.ABI, &nonce, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("cannot determine nonce for %s: %w", sender.Hex(), err)
	}
	return nonce, nil
}

// IsDeployed probes code at address once.
func IsDeployed(ctx context.Context, conn ChainReader, address common.Address) (bool, error) {
	code, err := conn.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("cannot read code at %s: %w", address.Hex(), err)
	}
	return len(code) > 0, nil
}

// callView packs method, runs an eth_call against the latest block and
// unpacks the single return value into out.
func callView(ctx context.Context, conn ChainReader, to common.Address, contractABI abi.ABI, out any, method string, args ...any) error {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := conn.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return err
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("%s returned %d values", method, len(values))
	}
	return contractABI.Methods[method].Outputs.Copy(out, values)
}
