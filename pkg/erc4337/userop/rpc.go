package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

// RPCUserOperation is the JSON-RPC shape of a user operation. Undefined
// fields are omitted so a bundler can apply its own defaults.
type RPCUserOperation struct {
	Sender   *common.Address `json:"sender,omitempty"`
	Nonce    *hexutil.Big    `json:"nonce,omitempty"`
	Factory  *common.Address `json:"factory,omitempty"`
	InitCode *hexutil.Bytes  `json:"initCode,omitempty"`

	FactoryData *hexutil.Bytes `json:"factoryData,omitempty"`
	CallData    *hexutil.Bytes `json:"callData,omitempty"`

	CallGasLimit         *hexutil.Big `json:"callGasLimit,omitempty"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit,omitempty"`
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas,omitempty"`
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`

	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	PaymasterAndData              *hexutil.Bytes  `json:"paymasterAndData,omitempty"`

	Signature *hexutil.Bytes `json:"signature,omitempty"`
}

// ToRPC renders op in the request shape of the given entry point version.
// For 0.7 the factory and paymaster groups are only sent when their address
// is set.
func (op *UserOperation) ToRPC(version entrypoint.Version) (*RPCUserOperation, error) {
	if err := op.Validate(version); err != nil {
		return nil, err
	}
	r := &RPCUserOperation{
		Sender:               cloneAddress(op.Sender),
		Nonce:                toHexBig(op.Nonce),
		CallData:             toHexBytes(op.CallData),
		CallGasLimit:         toHexBig(op.CallGasLimit),
		VerificationGasLimit: toHexBig(op.VerificationGasLimit),
		PreVerificationGas:   toHexBig(op.PreVerificationGas),
		MaxFeePerGas:         toHexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(op.MaxPriorityFeePerGas),
		Signature:            toHexBytes(op.Signature),
	}
	switch version {
	case entrypoint.V06:
		r.InitCode = toHexBytes(op.InitCode)
		r.PaymasterAndData = toHexBytes(op.PaymasterAndData)
	case entrypoint.V07:
		if op.Factory != nil {
			r.Factory = cloneAddress(op.Factory)
			r.FactoryData = toHexBytes(nonNil(op.FactoryData))
		}
		if op.Paymaster != nil {
			r.Paymaster = cloneAddress(op.Paymaster)
			r.PaymasterData = toHexBytes(nonNil(op.PaymasterData))
			r.PaymasterVerificationGasLimit = toHexBig(op.PaymasterVerificationGasLimit)
			r.PaymasterPostOpGasLimit = toHexBig(op.PaymasterPostOpGasLimit)
		}
	}
	return r, nil
}

// FromRPC converts a decoded JSON-RPC operation back into a draft.
func FromRPC(r *RPCUserOperation) *UserOperation {
	if r == nil {
		return nil
	}
	return &UserOperation{
		Sender:                        cloneAddress(r.Sender),
		Nonce:                         fromHexBig(r.Nonce),
		CallData:                      fromHexBytes(r.CallData),
		CallGasLimit:                  fromHexBig(r.CallGasLimit),
		VerificationGasLimit:          fromHexBig(r.VerificationGasLimit),
		PreVerificationGas:            fromHexBig(r.PreVerificationGas),
		MaxFeePerGas:                  fromHexBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas:          fromHexBig(r.MaxPriorityFeePerGas),
		Signature:                     fromHexBytes(r.Signature),
		InitCode:                      fromHexBytes(r.InitCode),
		PaymasterAndData:              fromHexBytes(r.PaymasterAndData),
		Factory:                       cloneAddress(r.Factory),
		FactoryData:                   fromHexBytes(r.FactoryData),
		Paymaster:                     cloneAddress(r.Paymaster),
		PaymasterData:                 fromHexBytes(r.PaymasterData),
		PaymasterVerificationGasLimit: fromHexBig(r.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(r.PaymasterPostOpGasLimit),
	}
}

func toHexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v.ToInt())
}

func toHexBytes(b []byte) *hexutil.Bytes {
	if b == nil {
		return nil
	}
	h := hexutil.Bytes(cloneBytes(b))
	return &h
}

func fromHexBytes(b *hexutil.Bytes) []byte {
	if b == nil {
		return nil
	}
	return cloneBytes(*b)
}
