// Package userop holds the user operation draft shared by every stage of the
// pipeline. A nil field is undefined: it has not been filled and will not be
// sent. An empty, non nil byte slice is an explicit "0x".
package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

var ErrVersionMismatch = errors.New("user operation field does not belong to entrypoint version")

// UserOperation carries the union of the 0.6 and 0.7 field layouts. Which
// half is legal is decided by the entry point version, see Validate.
type UserOperation struct {
	Sender   *common.Address
	Nonce    *big.Int
	CallData []byte

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Signature []byte

	// 0.6
	InitCode         []byte
	PaymasterAndData []byte

	// 0.7
	Factory                       *common.Address
	FactoryData                   []byte
	Paymaster                     *common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int

	// Blob sidecars travel next to the operation and are never part of its
	// wire encoding or hash.
	Sidecars *types.BlobTxSidecar
}

// Validate checks the draft only uses fields of the given version.
func (op *UserOperation) Validate(version entrypoint.Version) error {
	var offending []string
	switch version {
	case entrypoint.V06:
		if op.Factory != nil {
			offending = append(offending, "factory")
		}
		if op.FactoryData != nil {
			offending = append(offending, "factoryData")
		}
		if op.Paymaster != nil {
			offending = append(offending, "paymaster")
		}
		if op.PaymasterData != nil {
			offending = append(offending, "paymasterData")
		}
		if op.PaymasterVerificationGasLimit != nil {
			offending = append(offending, "paymasterVerificationGasLimit")
		}
		if op.PaymasterPostOpGasLimit != nil {
			offending = append(offending, "paymasterPostOpGasLimit")
		}
	case entrypoint.V07:
		if op.InitCode != nil {
			offending = append(offending, "initCode")
		}
		if op.PaymasterAndData != nil {
			offending = append(offending, "paymasterAndData")
		}
	default:
		return fmt.Errorf("%w: %q", entrypoint.ErrUnsupportedVersion, version)
	}
	if len(offending) > 0 {
		return fmt.Errorf("%w %s: %v", ErrVersionMismatch, version, offending)
	}
	return nil
}

// Clone returns a deep copy. Sidecars are shared since they are immutable
// once computed.
func (op *UserOperation) Clone() *UserOperation {
	if op == nil {
		return nil
	}
	c := *op
	c.Sender = cloneAddress(op.Sender)
	c.Factory = cloneAddress(op.Factory)
	c.Paymaster = cloneAddress(op.Paymaster)
	c.Nonce = cloneBig(op.Nonce)
	c.CallGasLimit = cloneBig(op.CallGasLimit)
	c.VerificationGasLimit = cloneBig(op.VerificationGasLimit)
	c.PreVerificationGas = cloneBig(op.PreVerificationGas)
	c.MaxFeePerGas = cloneBig(op.MaxFeePerGas)
	c.MaxPriorityFeePerGas = cloneBig(op.MaxPriorityFeePerGas)
	c.PaymasterVerificationGasLimit = cloneBig(op.PaymasterVerificationGasLimit)
	c.PaymasterPostOpGasLimit = cloneBig(op.PaymasterPostOpGasLimit)
	c.CallData = cloneBytes(op.CallData)
	c.Signature = cloneBytes(op.Signature)
	c.InitCode = cloneBytes(op.InitCode)
	c.PaymasterAndData = cloneBytes(op.PaymasterAndData)
	c.FactoryData = cloneBytes(op.FactoryData)
	c.PaymasterData = cloneBytes(op.PaymasterData)
	return &c
}

// PackedInitCode is what the entry point sees as initCode: the 0.6 field as
// is, or factory‖factoryData for 0.7.
func (op *UserOperation) PackedInitCode(version entrypoint.Version) []byte {
	if version == entrypoint.V06 {
		return nonNil(op.InitCode)
	}
	if op.Factory == nil {
		return []byte{}
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PackedPaymasterAndData is the on chain paymasterAndData. For 0.7 it is
// paymaster ‖ uint128 verificationGas ‖ uint128 postOpGas ‖ paymasterData.
func (op *UserOperation) PackedPaymasterAndData(version entrypoint.Version) ([]byte, error) {
	if version == entrypoint.V06 {
		return nonNil(op.PaymasterAndData), nil
	}
	if op.Paymaster == nil {
		return []byte{}, nil
	}
	gas, err := entrypoint.PackUint128Pair(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)
	if err != nil {
		return nil, fmt.Errorf("paymaster gas limits: %w", err)
	}
	out := make([]byte, 0, common.AddressLength+32+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, gas[:]...)
	return append(out, op.PaymasterData...), nil
}

func (op *UserOperation) sender() common.Address {
	if op.Sender == nil {
		return common.Address{}
	}
	return *op.Sender
}

func cloneAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
