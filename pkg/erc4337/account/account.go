// Package account describes smart contract accounts: how their address is
// derived, whether they are deployed, how calls are encoded and how the owner
// signature is wrapped for the account contract.
package account

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

var (
	ErrMissingOwner          = errors.New("account: owner is required")
	ErrMissingClient         = errors.New("account: chain client is required")
	ErrMissingChainID        = errors.New("account: chain id is required")
	ErrUnsupportedEntryPoint = errors.New("account: entrypoint version not supported by this account")
	ErrOwnerCannotSign       = errors.New("account: owner cannot sign")
	ErrEmptyCalls            = errors.New("account: at least one call is required")
)

// UnsupportedKeyTypeError is returned when an owner key type cannot be
// wrapped into a signature the account contract understands.
type UnsupportedKeyTypeError struct {
	Account string
	Type    signer.KeyType
}

func (e *UnsupportedKeyTypeError) Error() string {
	return fmt.Sprintf("account %s: unsupported signer key type %q", e.Account, e.Type)
}

// Call is one call the account executes.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// FactoryArgs is empty (both fields nil) once the account is deployed.
type FactoryArgs struct {
	Factory     *common.Address
	FactoryData []byte
}

// GasOverrides is the subset of gas fields an account hook or a paymaster
// wants to force. nil fields are left to the next source.
type GasOverrides struct {
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

// Hooks override the default behaviour of an account.
type Hooks struct {
	GetNonce    func(ctx context.Context, key *big.Int) (*big.Int, error)
	EstimateGas func(ctx context.Context, op *userop.UserOperation) (*GasOverrides, error)
	EncodeCalls func(calls []Call) ([]byte, error)
	DecodeCalls func(data []byte) ([]Call, error)
}

// implementation is the contract specific half of an account.
type implementation interface {
	name() string
	factoryArgs() (common.Address, []byte, error)
	deriveAddress(ctx context.Context) (common.Address, error)
	encodeCalls(calls []Call) ([]byte, error)
	decodeCalls(data []byte) ([]Call, error)
	stubSignature() ([]byte, error)
	signUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error)
	signMessage(ctx context.Context, a *Account, message []byte) ([]byte, error)
	signTypedData(ctx context.Context, a *Account, data apitypes.TypedData) ([]byte, error)
	estimateGas(ctx context.Context, op *userop.UserOperation) (*GasOverrides, error)
}

// Account is constructed once per logical account and reused across many
// operations. It is safe for concurrent use.
type Account struct {
	impl       implementation
	entryPoint entrypoint.EntryPoint
	conn       aa.ChainReader
	chainID    *big.Int
	nonceKey   *big.Int
	hooks      Hooks
	logger     logger.Logger

	addrMu   sync.Mutex
	address  *common.Address
	explicit bool

	deployed atomic.Bool
}

type baseConfig struct {
	conn       aa.ChainReader
	chainID    *big.Int
	entryPoint entrypoint.EntryPoint
	address    *common.Address
	nonceKey   *big.Int
	hooks      Hooks
	logger     logger.Logger
}

func newAccount(impl implementation, cfg baseConfig) *Account {
	a := &Account{
		impl:       impl,
		entryPoint: cfg.entryPoint,
		conn:       cfg.conn,
		chainID:    new(big.Int).Set(cfg.chainID),
		nonceKey:   cfg.nonceKey,
		hooks:      cfg.hooks,
		logger:     logger.EnsureLogger(cfg.logger),
	}
	if cfg.address != nil {
		addr := *cfg.address
		a.address = &addr
		a.explicit = true
	}
	return a
}

func (a *Account) Name() string                      { return a.impl.name() }
func (a *Account) EntryPoint() entrypoint.EntryPoint { return a.entryPoint }
func (a *Account) ChainID() *big.Int                 { return new(big.Int).Set(a.chainID) }

// NonceKey is the sequence space the account uses by default; nil means 0.
func (a *Account) NonceKey() *big.Int {
	if a.nonceKey == nil {
		return nil
	}
	return new(big.Int).Set(a.nonceKey)
}

// Address returns the explicit address verbatim, or derives the
// counterfactual address once and caches it.
func (a *Account) Address(ctx context.Context) (common.Address, error) {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	if a.address != nil {
		return *a.address, nil
	}
	addr, err := a.impl.deriveAddress(ctx)
	if err != nil {
		return common.Address{}, err
	}
	a.address = &addr
	a.logger.Debug("derived smart account address", "account", a.impl.name(), "address", addr.Hex())
	return addr, nil
}

// IsDeployed probes the chain until the account is seen deployed. A positive
// result is cached; a negative one is not, since the factory may deploy the
// account at any time.
func (a *Account) IsDeployed(ctx context.Context) (bool, error) {
	if a.deployed.Load() {
		return true, nil
	}
	addr, err := a.Address(ctx)
	if err != nil {
		return false, err
	}
	deployed, err := aa.IsDeployed(ctx, a.conn, addr)
	if err != nil {
		return false, err
	}
	if deployed {
		a.deployed.Store(true)
	}
	return deployed, nil
}

// RecheckDeployment drops the cached deployment state and probes again.
func (a *Account) RecheckDeployment(ctx context.Context) (bool, error) {
	a.deployed.Store(false)
	return a.IsDeployed(ctx)
}

// FactoryArgs returns the factory call that deploys the account, or empty
// args when it already exists.
func (a *Account) FactoryArgs(ctx context.Context) (*FactoryArgs, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, err
	}
	if deployed {
		return &FactoryArgs{}, nil
	}
	factory, data, err := a.impl.factoryArgs()
	if err != nil {
		return nil, err
	}
	return &FactoryArgs{Factory: &factory, FactoryData: data}, nil
}

// StubSignature has the byte length of a real signature from this account's
// owner configuration.
func (a *Account) StubSignature() ([]byte, error) {
	return a.impl.stubSignature()
}

func (a *Account) EncodeCalls(calls []Call) ([]byte, error) {
	if a.hooks.EncodeCalls != nil {
		return a.hooks.EncodeCalls(calls)
	}
	if len(calls) == 0 {
		return nil, ErrEmptyCalls
	}
	return a.impl.encodeCalls(calls)
}

func (a *Account) DecodeCalls(data []byte) ([]Call, error) {
	if a.hooks.DecodeCalls != nil {
		return a.hooks.DecodeCalls(data)
	}
	return a.impl.decodeCalls(data)
}

// GetNonce reads the entry point nonce for key, or the account nonce key
// when key is nil.
func (a *Account) GetNonce(ctx context.Context, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = a.nonceKey
	}
	if a.hooks.GetNonce != nil {
		return a.hooks.GetNonce(ctx, key)
	}
	addr, err := a.Address(ctx)
	if err != nil {
		return nil, err
	}
	return aa.GetNonce(ctx, a.conn, a.entryPoint, addr, key)
}

// EstimateGas returns the gas fields the account insists on, or nil.
func (a *Account) EstimateGas(ctx context.Context, op *userop.UserOperation) (*GasOverrides, error) {
	if a.hooks.EstimateGas != nil {
		return a.hooks.EstimateGas(ctx, op)
	}
	return a.impl.estimateGas(ctx, op)
}

// UserOperationHash hashes op with this account as sender.
func (a *Account) UserOperationHash(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	addr, err := a.Address(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	draft := op.Clone()
	draft.Sender = &addr
	return draft.Hash(a.entryPoint, a.chainID)
}

// SignUserOperation signs the protocol hash of op and wraps the owner
// signature for the account contract. op must be final except for its
// signature.
func (a *Account) SignUserOperation(ctx context.Context, op *userop.UserOperation) ([]byte, error) {
	hash, err := a.UserOperationHash(ctx, op)
	if err != nil {
		return nil, err
	}
	return a.impl.signUserOperationHash(ctx, hash)
}

func (a *Account) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return a.impl.signMessage(ctx, a, message)
}

func (a *Account) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	return a.impl.signTypedData(ctx, a, data)
}

func validateBase(cfg baseConfig) error {
	if cfg.conn == nil {
		return ErrMissingClient
	}
	if cfg.chainID == nil || cfg.chainID.Sign() <= 0 {
		return ErrMissingChainID
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
