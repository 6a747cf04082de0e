package userop

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

func (op *UserOperation) PackV06() (entrypoint.UserOperationV06, error) {
	if err := op.Validate(entrypoint.V06); err != nil {
		return entrypoint.UserOperationV06{}, err
	}
	return entrypoint.UserOperationV06{
		Sender:               op.sender(),
		Nonce:                orZero(op.Nonce),
		InitCode:             nonNil(op.InitCode),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         orZero(op.CallGasLimit),
		VerificationGasLimit: orZero(op.VerificationGasLimit),
		PreVerificationGas:   orZero(op.PreVerificationGas),
		MaxFeePerGas:         orZero(op.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(op.MaxPriorityFeePerGas),
		PaymasterAndData:     nonNil(op.PaymasterAndData),
		Signature:            nonNil(op.Signature),
	}, nil
}

// PackV07 folds the discrete 0.7 gas, fee, factory and paymaster fields into
// the PackedUserOperation words.
func (op *UserOperation) PackV07() (entrypoint.PackedUserOperation, error) {
	if err := op.Validate(entrypoint.V07); err != nil {
		return entrypoint.PackedUserOperation{}, err
	}
	accountGasLimits, err := entrypoint.PackUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return entrypoint.PackedUserOperation{}, fmt.Errorf("accountGasLimits: %w", err)
	}
	gasFees, err := entrypoint.PackUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return entrypoint.PackedUserOperation{}, fmt.Errorf("gasFees: %w", err)
	}
	pmd, err := op.PackedPaymasterAndData(entrypoint.V07)
	if err != nil {
		return entrypoint.PackedUserOperation{}, err
	}
	return entrypoint.PackedUserOperation{
		Sender:             op.sender(),
		Nonce:              orZero(op.Nonce),
		InitCode:           op.PackedInitCode(entrypoint.V07),
		CallData:           nonNil(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: orZero(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   pmd,
		Signature:          nonNil(op.Signature),
	}, nil
}

// HandleOpsCallData encodes the entry point handleOps call for ops, the raw
// call data a bundler ends up sending on chain.
func HandleOpsCallData(ep entrypoint.EntryPoint, ops []*UserOperation, beneficiary common.Address) ([]byte, error) {
	switch ep.Version {
	case entrypoint.V06:
		packed := make([]entrypoint.UserOperationV06, 0, len(ops))
		for i, op := range ops {
			p, err := op.PackV06()
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			packed = append(packed, p)
		}
		return ep.ABI.Pack("handleOps", packed, beneficiary)
	case entrypoint.V07:
		packed := make([]entrypoint.PackedUserOperation, 0, len(ops))
		for i, op := range ops {
			p, err := op.PackV07()
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			packed = append(packed, p)
		}
		return ep.ABI.Pack("handleOps", packed, beneficiary)
	}
	return nil, fmt.Errorf("%w: %q", entrypoint.ErrUnsupportedVersion, ep.Version)
}
