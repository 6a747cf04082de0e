package aa

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	SimpleAccountFactoryV06 = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	SimpleAccountFactoryV07 = common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985")

	CoinbaseSmartWalletFactoryV1   = common.HexToAddress("0x0BA5ED0c6AA8c49038F819E587E2633c4A9F428a")
	CoinbaseSmartWalletFactoryV1_1 = common.HexToAddress("0xba5ed110efdba3d005bfc882d75358acbbb85842")
)

const SimpleAccountFactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "salt", "type": "uint256"}
		],
		"name": "createAccount",
		"outputs": [{"internalType": "contract SimpleAccount", "name": "ret", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "salt", "type": "uint256"}
		],
		"name": "getAddress",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const CoinbaseSmartWalletFactoryABI = `[
	{
		"inputs": [
			{"internalType": "bytes[]", "name": "owners", "type": "bytes[]"},
			{"internalType": "uint256", "name": "nonce", "type": "uint256"}
		],
		"name": "createAccount",
		"outputs": [{"internalType": "contract CoinbaseSmartWallet", "name": "account", "type": "address"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes[]", "name": "owners", "type": "bytes[]"},
			{"internalType": "uint256", "name": "nonce", "type": "uint256"}
		],
		"name": "getAddress",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
