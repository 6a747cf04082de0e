package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// SimpleAccountConfig configures an eth-infinitism SimpleAccount owned by a
// single ECDSA key.
type SimpleAccountConfig struct {
	Client  aa.ChainReader
	ChainID *big.Int

	// Version defaults to 0.7.
	Version           entrypoint.Version
	EntryPointAddress *common.Address

	Owner        signer.Signer
	OwnerAddress *common.Address

	Factory *common.Address
	Salt    *big.Int

	// Address skips derivation when the account address is already known.
	Address  *common.Address
	NonceKey *big.Int
	Hooks    Hooks
	Resolver *aa.SenderResolver
	Logger   logger.Logger
}

type addressable interface {
	Address() common.Address
}

type simpleAccount struct {
	version      entrypoint.Version
	owner        signer.Signer
	ownerAddress common.Address
	factory      common.Address
	salt         *big.Int
	accountABI   abi.ABI
	resolver     *aa.SenderResolver
}

func NewSimpleAccount(cfg SimpleAccountConfig) (*Account, error) {
	if cfg.Owner == nil {
		return nil, ErrMissingOwner
	}
	ownerAddress := cfg.OwnerAddress
	if ownerAddress == nil {
		if a, ok := cfg.Owner.(addressable); ok {
			addr := a.Address()
			ownerAddress = &addr
		}
	}
	if ownerAddress == nil {
		return nil, fmt.Errorf("%w: cannot determine owner address", ErrMissingOwner)
	}

	version := cfg.Version
	if version == "" {
		version = entrypoint.V07
	}
	ep, err := entrypoint.Get(version)
	if err != nil {
		return nil, err
	}
	if cfg.EntryPointAddress != nil {
		ep = ep.WithAddress(*cfg.EntryPointAddress)
	}

	base := baseConfig{
		conn:       cfg.Client,
		chainID:    cfg.ChainID,
		entryPoint: ep,
		address:    cfg.Address,
		nonceKey:   cfg.NonceKey,
		hooks:      cfg.Hooks,
		logger:     cfg.Logger,
	}
	if err := validateBase(base); err != nil {
		return nil, err
	}

	impl := &simpleAccount{
		version:      version,
		owner:        cfg.Owner,
		ownerAddress: *ownerAddress,
		salt:         orZero(cfg.Salt),
		resolver:     cfg.Resolver,
	}
	switch version {
	case entrypoint.V06:
		impl.factory = aa.SimpleAccountFactoryV06
		impl.accountABI = simpleAccountV06
	default:
		impl.factory = aa.SimpleAccountFactoryV07
		impl.accountABI = simpleAccountV07
	}
	if cfg.Factory != nil {
		impl.factory = *cfg.Factory
	}
	if impl.resolver == nil {
		impl.resolver = aa.NewSenderResolver(cfg.Client, aa.DefaultSenderCacheSize)
	}

	return newAccount(impl, base), nil
}

func (s *simpleAccount) name() string { return "SimpleAccount" }

func (s *simpleAccount) factoryArgs() (common.Address, []byte, error) {
	data, err := simpleFactory.Pack("createAccount", s.ownerAddress, s.salt)
	if err != nil {
		return common.Address{}, nil, err
	}
	return s.factory, data, nil
}

func (s *simpleAccount) deriveAddress(ctx context.Context) (common.Address, error) {
	return s.resolver.GetSenderAddress(ctx, s.factory, simpleFactory, s.ownerAddress, s.salt)
}

func (s *simpleAccount) encodeCalls(calls []Call) ([]byte, error) {
	if len(calls) == 1 {
		return s.accountABI.Pack("execute", calls[0].To, orZero(calls[0].Value), nonNil(calls[0].Data))
	}

	dest := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	data := make([][]byte, len(calls))
	for i, c := range calls {
		dest[i] = c.To
		values[i] = orZero(c.Value)
		data[i] = nonNil(c.Data)
	}

	if s.version == entrypoint.V06 {
		for i, v := range values {
			if v.Sign() != 0 {
				return nil, fmt.Errorf("SimpleAccount 0.6 executeBatch cannot transfer value (call %d)", i)
			}
		}
		return s.accountABI.Pack("executeBatch", dest, data)
	}
	return s.accountABI.Pack("executeBatch", dest, values, data)
}

func (s *simpleAccount) decodeCalls(data []byte) ([]Call, error) {
	m, args, err := methodFor(s.accountABI, data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "execute":
		return []Call{{
			To:    args[0].(common.Address),
			Value: args[1].(*big.Int),
			Data:  nonNil(args[2].([]byte)),
		}}, nil
	case "executeBatch":
		dest := args[0].([]common.Address)
		data := args[len(args)-1].([][]byte)
		if len(dest) != len(data) {
			return nil, fmt.Errorf("executeBatch length mismatch: %d != %d", len(dest), len(data))
		}
		var values []*big.Int
		if len(args) == 3 {
			values = args[1].([]*big.Int)
			if len(values) != len(dest) {
				return nil, fmt.Errorf("executeBatch length mismatch: %d != %d", len(dest), len(values))
			}
		}
		calls := make([]Call, len(dest))
		for i := range dest {
			calls[i] = Call{To: dest[i], Value: new(big.Int), Data: nonNil(data[i])}
			if values != nil {
				calls[i].Value = values[i]
			}
		}
		return calls, nil
	}
	return nil, fmt.Errorf("unable to decode calls for %q", m.Name)
}

func (s *simpleAccount) checkOwner() error {
	switch s.owner.KeyType() {
	case signer.KeyTypeSecp256k1:
		return nil
	default:
		return &UnsupportedKeyTypeError{Account: s.name(), Type: s.owner.KeyType()}
	}
}

func (s *simpleAccount) stubSignature() ([]byte, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	return append([]byte{}, ecdsaStubSignature...), nil
}

// SimpleAccount validates an EIP-191 signature over the user operation hash.
func (s *simpleAccount) signUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	return s.owner.SignMessage(ctx, hash.Bytes())
}

func (s *simpleAccount) signMessage(ctx context.Context, _ *Account, message []byte) ([]byte, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	return s.owner.SignMessage(ctx, message)
}

func (s *simpleAccount) signTypedData(ctx context.Context, _ *Account, data apitypes.TypedData) ([]byte, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	return s.owner.SignTypedData(ctx, data)
}

func (s *simpleAccount) estimateGas(ctx context.Context, op *userop.UserOperation) (*GasOverrides, error) {
	return nil, nil
}
