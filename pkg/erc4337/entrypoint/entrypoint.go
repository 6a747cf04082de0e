// Package entrypoint describes the two supported ERC-4337 entry point
// versions: their canonical address, ABI and the struct layouts handleOps
// expects.
package entrypoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type Version string

const (
	V06 Version = "0.6"
	V07 Version = "0.7"
)

var ErrUnsupportedVersion = errors.New("unsupported entrypoint version")

var (
	AddressV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	AddressV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	// topic of UserOperationEvent, identical for both versions
	UserOperationEventTopic = common.HexToHash("0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f")
)

func ParseVersion(v string) (Version, error) {
	switch Version(strings.TrimPrefix(v, "v")) {
	case V06:
		return V06, nil
	case V07:
		return V07, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
}

func (v Version) String() string { return string(v) }

// EntryPoint is the static descriptor of one entry point deployment.
type EntryPoint struct {
	Version Version
	Address common.Address
	ABI     abi.ABI
}

var (
	abiV06 = mustParseABI(entryPointV06ABI)
	abiV07 = mustParseABI(entryPointV07ABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("entrypoint: invalid abi: %v", err))
	}
	return parsed
}

// Get returns the canonical descriptor for version.
func Get(version Version) (EntryPoint, error) {
	switch version {
	case V06:
		return EntryPoint{Version: V06, Address: AddressV06, ABI: abiV06}, nil
	case V07:
		return EntryPoint{Version: V07, Address: AddressV07, ABI: abiV07}, nil
	}
	return EntryPoint{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
}

func MustGet(version Version) EntryPoint {
	ep, err := Get(version)
	if err != nil {
		panic(err)
	}
	return ep
}

// WithAddress returns a copy of the descriptor pointing at a non canonical
// deployment, e.g. a local devnet.
func (ep EntryPoint) WithAddress(address common.Address) EntryPoint {
	ep.Address = address
	return ep
}

func (ep EntryPoint) IsV06() bool { return ep.Version == V06 }
func (ep EntryPoint) IsV07() bool { return ep.Version == V07 }

// UserOperationV06 mirrors the UserOperation tuple of entry point 0.6.
type UserOperationV06 struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PackedUserOperation mirrors the PackedUserOperation tuple of entry point 0.7.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// PackUint128Pair packs hi and lo into one word, 16 bytes each. nil counts as
// zero. Values wider than 128 bits are rejected.
func PackUint128Pair(hi, lo *big.Int) ([32]byte, error) {
	var word [32]byte
	for i, v := range []*big.Int{hi, lo} {
		if v == nil {
			continue
		}
		if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
			return word, fmt.Errorf("value %s does not fit in uint128", v)
		}
		v.FillBytes(word[i*16 : (i+1)*16])
	}
	return word, nil
}

func UnpackUint128Pair(word [32]byte) (hi, lo *big.Int) {
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}
