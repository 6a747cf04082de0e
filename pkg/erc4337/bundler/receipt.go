package bundler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

// TransactionReceipt is the bundle transaction that included an operation.
type TransactionReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockHash       common.Hash    `json:"blockHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	From            common.Address `json:"from"`
	GasUsed         *hexutil.Big   `json:"gasUsed"`
	Status          hexutil.Uint64 `json:"status"`
}

// UserOperationReceipt is the eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash    common.Hash         `json:"userOpHash"`
	EntryPoint    common.Address      `json:"entryPoint"`
	Sender        common.Address      `json:"sender"`
	Nonce         *hexutil.Big        `json:"nonce"`
	Paymaster     *common.Address     `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big        `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big        `json:"actualGasUsed"`
	Success       bool                `json:"success"`
	Reason        string              `json:"reason,omitempty"`
	Logs          []*types.Log        `json:"logs"`
	Receipt       *TransactionReceipt `json:"receipt"`
}

// UserOperationByHash is the eth_getUserOperationByHash result.
type UserOperationByHash struct {
	UserOperation   *userop.RPCUserOperation `json:"userOperation"`
	EntryPoint      common.Address           `json:"entryPoint"`
	TransactionHash *common.Hash             `json:"transactionHash"`
	BlockHash       *common.Hash             `json:"blockHash"`
	BlockNumber     *hexutil.Big             `json:"blockNumber"`
}
