package entrypoint

const userOperationEventABI = `{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "internalType": "bytes32", "name": "userOpHash", "type": "bytes32"},
		{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
		{"indexed": true, "internalType": "address", "name": "paymaster", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"},
		{"indexed": false, "internalType": "bool", "name": "success", "type": "bool"},
		{"indexed": false, "internalType": "uint256", "name": "actualGasCost", "type": "uint256"},
		{"indexed": false, "internalType": "uint256", "name": "actualGasUsed", "type": "uint256"}
	],
	"name": "UserOperationEvent",
	"type": "event"
}`

const getNonceABI = `{
	"inputs": [
		{"internalType": "address", "name": "sender", "type": "address"},
		{"internalType": "uint192", "name": "key", "type": "uint192"}
	],
	"name": "getNonce",
	"outputs": [{"internalType": "uint256", "name": "nonce", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}`

const balanceOfABI = `{
	"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}`

const userOperationV06Components = `[
	{"internalType": "address", "name": "sender", "type": "address"},
	{"internalType": "uint256", "name": "nonce", "type": "uint256"},
	{"internalType": "bytes", "name": "initCode", "type": "bytes"},
	{"internalType": "bytes", "name": "callData", "type": "bytes"},
	{"internalType": "uint256", "name": "callGasLimit", "type": "uint256"},
	{"internalType": "uint256", "name": "verificationGasLimit", "type": "uint256"},
	{"internalType": "uint256", "name": "preVerificationGas", "type": "uint256"},
	{"internalType": "uint256", "name": "maxFeePerGas", "type": "uint256"},
	{"internalType": "uint256", "name": "maxPriorityFeePerGas", "type": "uint256"},
	{"internalType": "bytes", "name": "paymasterAndData", "type": "bytes"},
	{"internalType": "bytes", "name": "signature", "type": "bytes"}
]`

const packedUserOperationComponents = `[
	{"internalType": "address", "name": "sender", "type": "address"},
	{"internalType": "uint256", "name": "nonce", "type": "uint256"},
	{"internalType": "bytes", "name": "initCode", "type": "bytes"},
	{"internalType": "bytes", "name": "callData", "type": "bytes"},
	{"internalType": "bytes32", "name": "accountGasLimits", "type": "bytes32"},
	{"internalType": "uint256", "name": "preVerificationGas", "type": "uint256"},
	{"internalType": "bytes32", "name": "gasFees", "type": "bytes32"},
	{"internalType": "bytes", "name": "paymasterAndData", "type": "bytes"},
	{"internalType": "bytes", "name": "signature", "type": "bytes"}
]`

const entryPointV06ABI = `[` + getNonceABI + `,` + balanceOfABI + `,` + userOperationEventABI + `,
{
	"inputs": [
		{"components": ` + userOperationV06Components + `, "internalType": "struct UserOperation", "name": "userOp", "type": "tuple"}
	],
	"name": "getUserOpHash",
	"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
	"stateMutability": "view",
	"type": "function"
},
{
	"inputs": [
		{"components": ` + userOperationV06Components + `, "internalType": "struct UserOperation[]", "name": "ops", "type": "tuple[]"},
		{"internalType": "address payable", "name": "beneficiary", "type": "address"}
	],
	"name": "handleOps",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const entryPointV07ABI = `[` + getNonceABI + `,` + balanceOfABI + `,` + userOperationEventABI + `,
{
	"inputs": [
		{"components": ` + packedUserOperationComponents + `, "internalType": "struct PackedUserOperation", "name": "userOp", "type": "tuple"}
	],
	"name": "getUserOpHash",
	"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
	"stateMutability": "view",
	"type": "function"
},
{
	"inputs": [
		{"components": ` + packedUserOperationComponents + `, "internalType": "struct PackedUserOperation[]", "name": "ops", "type": "tuple[]"},
		{"internalType": "address payable", "name": "beneficiary", "type": "address"}
	],
	"name": "handleOps",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`
