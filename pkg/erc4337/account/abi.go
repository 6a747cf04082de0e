package account

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
)

// 65 byte ECDSA placeholder with a low s and v = 28.
var ecdsaStubSignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

const executeABI = `{
	"inputs": [
		{"internalType": "address", "name": "dest", "type": "address"},
		{"internalType": "uint256", "name": "value", "type": "uint256"},
		{"internalType": "bytes", "name": "func", "type": "bytes"}
	],
	"name": "execute",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}`

// SimpleAccount 0.6 batches carry no values.
const simpleAccountV06ABI = `[` + executeABI + `,
{
	"inputs": [
		{"internalType": "address[]", "name": "dest", "type": "address[]"},
		{"internalType": "bytes[]", "name": "func", "type": "bytes[]"}
	],
	"name": "executeBatch",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const simpleAccountV07ABI = `[` + executeABI + `,
{
	"inputs": [
		{"internalType": "address[]", "name": "dest", "type": "address[]"},
		{"internalType": "uint256[]", "name": "value", "type": "uint256[]"},
		{"internalType": "bytes[]", "name": "func", "type": "bytes[]"}
	],
	"name": "executeBatch",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const coinbaseSmartWalletABI = `[
{
	"inputs": [
		{"internalType": "address", "name": "target", "type": "address"},
		{"internalType": "uint256", "name": "value", "type": "uint256"},
		{"internalType": "bytes", "name": "data", "type": "bytes"}
	],
	"name": "execute",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
},
{
	"inputs": [
		{
			"components": [
				{"internalType": "address", "name": "target", "type": "address"},
				{"internalType": "uint256", "name": "value", "type": "uint256"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			],
			"internalType": "struct CoinbaseSmartWallet.Call[]",
			"name": "calls",
			"type": "tuple[]"
		}
	],
	"name": "executeBatch",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
}]`

var (
	simpleAccountV06 = mustParseABI(simpleAccountV06ABI)
	simpleAccountV07 = mustParseABI(simpleAccountV07ABI)
	coinbaseWallet   = mustParseABI(coinbaseSmartWalletABI)

	simpleFactory   = mustParseABI(aa.SimpleAccountFactoryABI)
	coinbaseFactory = mustParseABI(aa.CoinbaseSmartWalletFactoryABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Errorf("Invalid account ABI: %w", err))
	}
	return parsed
}

// methodFor looks up the method a calldata selector targets.
func methodFor(contractABI abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	m, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", m.Name, err)
	}
	return m, args, nil
}
