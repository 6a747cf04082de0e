package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)
)

var (
	hashArgsV06 = abi.Arguments{
		{Type: addressTy}, // sender
		{Type: uint256Ty}, // nonce
		{Type: bytes32Ty}, // hashInitCode
		{Type: bytes32Ty}, // hashCallData
		{Type: uint256Ty}, // callGasLimit
		{Type: uint256Ty}, // verificationGasLimit
		{Type: uint256Ty}, // preVerificationGas
		{Type: uint256Ty}, // maxFeePerGas
		{Type: uint256Ty}, // maxPriorityFeePerGas
		{Type: bytes32Ty}, // hashPaymasterAndData
	}
	hashArgsV07 = abi.Arguments{
		{Type: addressTy}, // sender
		{Type: uint256Ty}, // nonce
		{Type: bytes32Ty}, // hashInitCode
		{Type: bytes32Ty}, // hashCallData
		{Type: bytes32Ty}, // accountGasLimits
		{Type: uint256Ty}, // preVerificationGas
		{Type: bytes32Ty}, // gasFees
		{Type: bytes32Ty}, // hashPaymasterAndData
	}
	outerHashArgs = abi.Arguments{
		{Type: bytes32Ty}, // inner hash
		{Type: addressTy}, // entry point
		{Type: uint256Ty}, // chain id
	}
)

// Hash computes the protocol user operation hash the account signs and the
// bundler reports back. Undefined fields count as zero or empty.
func (op *UserOperation) Hash(ep entrypoint.EntryPoint, chainID *big.Int) (common.Hash, error) {
	if err := op.Validate(ep.Version); err != nil {
		return common.Hash{}, err
	}
	inner, err := op.innerHash(ep.Version)
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := outerHashArgs.Pack(inner, ep.Address, orZero(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot encode user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

func (op *UserOperation) innerHash(version entrypoint.Version) (common.Hash, error) {
	hashInitCode := crypto.Keccak256Hash(op.PackedInitCode(version))
	hashCallData := crypto.Keccak256Hash(nonNil(op.CallData))
	pmd, err := op.PackedPaymasterAndData(version)
	if err != nil {
		return common.Hash{}, err
	}
	hashPaymasterAndData := crypto.Keccak256Hash(pmd)

	var encoded []byte
	switch version {
	case entrypoint.V06:
		encoded, err = hashArgsV06.Pack(
			op.sender(),
			orZero(op.Nonce),
			hashInitCode,
			hashCallData,
			orZero(op.CallGasLimit),
			orZero(op.VerificationGasLimit),
			orZero(op.PreVerificationGas),
			orZero(op.MaxFeePerGas),
			orZero(op.MaxPriorityFeePerGas),
			hashPaymasterAndData,
		)
	case entrypoint.V07:
		var accountGasLimits, gasFees [32]byte
		accountGasLimits, err = entrypoint.PackUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
		if err != nil {
			return common.Hash{}, fmt.Errorf("accountGasLimits: %w", err)
		}
		gasFees, err = entrypoint.PackUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gasFees: %w", err)
		}
		encoded, err = hashArgsV07.Pack(
			op.sender(),
			orZero(op.Nonce),
			hashInitCode,
			hashCallData,
			accountGasLimits,
			orZero(op.PreVerificationGas),
			gasFees,
			hashPaymasterAndData,
		)
	default:
		return common.Hash{}, fmt.Errorf("%w: %q", entrypoint.ErrUnsupportedVersion, version)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot encode user operation: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
