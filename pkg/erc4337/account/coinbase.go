package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// WebAuthn owners need at least this much verification gas for the P-256
// check on chain.
const webAuthnMinVerificationGas = 800_000

var (
	ownerSignatureType, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "ownerIndex", Type: "uint8"},
		{Name: "signatureData", Type: "bytes"},
	})
	ownerSignatureArgs = abi.Arguments{{Type: ownerSignatureType}}
)

type signatureWrapper struct {
	OwnerIndex    uint8
	SignatureData []byte
}

type coinbaseCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// Owner is one owner of a multi-owner account. Signer is nil for owners that
// are registered on the wallet but cannot sign from this process.
type Owner struct {
	Signer  signer.Signer
	Address common.Address
}

func OwnerFromSigner(s signer.Signer) Owner {
	o := Owner{Signer: s}
	if a, ok := s.(addressable); ok {
		o.Address = a.Address()
	}
	return o
}

func OwnerFromAddress(address common.Address) Owner {
	return Owner{Address: address}
}

type webAuthnOwner interface {
	PublicKey() []byte
	StubAssertion() *signer.WebAuthnAssertion
}

// CoinbaseSmartAccountConfig configures a Coinbase Smart Wallet. Only entry
// point 0.6 is supported by the wallet contracts.
type CoinbaseSmartAccountConfig struct {
	Client  aa.ChainReader
	ChainID *big.Int

	Owners     []Owner
	OwnerIndex uint8
	// Nonce is the factory salt, not the entry point nonce.
	Nonce *big.Int
	// FactoryVersion is "1" (default) or "1.1".
	FactoryVersion string
	Factory        *common.Address

	EntryPointAddress *common.Address
	Address           *common.Address
	NonceKey          *big.Int
	Hooks             Hooks
	Resolver          *aa.SenderResolver
	Logger            logger.Logger
}

type coinbaseAccount struct {
	owners     []Owner
	ownerIndex uint8
	owner      Owner
	salt       *big.Int
	factory    common.Address
	resolver   *aa.SenderResolver
}

func NewCoinbaseSmartAccount(cfg CoinbaseSmartAccountConfig) (*Account, error) {
	if len(cfg.Owners) == 0 {
		return nil, ErrMissingOwner
	}

	ep := entrypoint.MustGet(entrypoint.V06)
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

	impl := &coinbaseAccount{
		owners:     cfg.Owners,
		ownerIndex: cfg.OwnerIndex,
		salt:       orZero(cfg.Nonce),
		resolver:   cfg.Resolver,
	}
	if int(cfg.OwnerIndex) < len(cfg.Owners) {
		impl.owner = cfg.Owners[cfg.OwnerIndex]
	} else {
		impl.owner = cfg.Owners[0]
	}

	switch cfg.FactoryVersion {
	case "", "1":
		impl.factory = aa.CoinbaseSmartWalletFactoryV1
	case "1.1":
		impl.factory = aa.CoinbaseSmartWalletFactoryV1_1
	default:
		return nil, fmt.Errorf("account: unknown coinbase factory version %q", cfg.FactoryVersion)
	}
	if cfg.Factory != nil {
		impl.factory = *cfg.Factory
	}
	if impl.resolver == nil {
		impl.resolver = aa.NewSenderResolver(cfg.Client, aa.DefaultSenderCacheSize)
	}

	return newAccount(impl, base), nil
}

func (c *coinbaseAccount) name() string { return "CoinbaseSmartWallet" }

// ownerBytes encodes owners the way the wallet stores them: a 32 byte padded
// address or a 64 byte P-256 public key.
func (c *coinbaseAccount) ownerBytes() ([][]byte, error) {
	out := make([][]byte, len(c.owners))
	for i, o := range c.owners {
		if o.Signer == nil {
			out[i] = common.LeftPadBytes(o.Address.Bytes(), 32)
			continue
		}
		switch o.Signer.KeyType() {
		case signer.KeyTypeSecp256k1:
			if o.Address == (common.Address{}) {
				return nil, fmt.Errorf("owner %d: ECDSA owner has no address", i)
			}
			out[i] = common.LeftPadBytes(o.Address.Bytes(), 32)
		case signer.KeyTypeWebAuthn:
			w, ok := o.Signer.(webAuthnOwner)
			if !ok {
				return nil, fmt.Errorf("owner %d: webAuthn signer does not expose a public key", i)
			}
			out[i] = w.PublicKey()
		default:
			return nil, &UnsupportedKeyTypeError{Account: c.name(), Type: o.Signer.KeyType()}
		}
	}
	return out, nil
}

func (c *coinbaseAccount) factoryArgs() (common.Address, []byte, error) {
	owners, err := c.ownerBytes()
	if err != nil {
		return common.Address{}, nil, err
	}
	data, err := coinbaseFactory.Pack("createAccount", owners, c.salt)
	if err != nil {
		return common.Address{}, nil, err
	}
	return c.factory, data, nil
}

func (c *coinbaseAccount) deriveAddress(ctx context.Context) (common.Address, error) {
	owners, err := c.ownerBytes()
	if err != nil {
		return common.Address{}, err
	}
	return c.resolver.GetSenderAddress(ctx, c.factory, coinbaseFactory, owners, c.salt)
}

func (c *coinbaseAccount) encodeCalls(calls []Call) ([]byte, error) {
	if len(calls) == 1 {
		return coinbaseWallet.Pack("execute", calls[0].To, orZero(calls[0].Value), nonNil(calls[0].Data))
	}
	batch := make([]coinbaseCall, len(calls))
	for i, call := range calls {
		batch[i] = coinbaseCall{Target: call.To, Value: orZero(call.Value), Data: nonNil(call.Data)}
	}
	return coinbaseWallet.Pack("executeBatch", batch)
}

func (c *coinbaseAccount) decodeCalls(data []byte) ([]Call, error) {
	m, args, err := methodFor(coinbaseWallet, data)
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
		batch := *abi.ConvertType(args[0], new([]coinbaseCall)).(*[]coinbaseCall)
		calls := make([]Call, len(batch))
		for i, b := range batch {
			calls[i] = Call{To: b.Target, Value: b.Value, Data: nonNil(b.Data)}
		}
		return calls, nil
	}
	return nil, fmt.Errorf("unable to decode calls for %q", m.Name)
}

// wrapSignature encodes (ownerIndex, signatureData) for the wallet's
// isValidSignature. ECDSA signatures are repacked as r‖s‖v with v in {27,28}.
func (c *coinbaseAccount) wrapSignature(sig []byte) ([]byte, error) {
	if c.owner.Signer == nil {
		return nil, ErrOwnerCannotSign
	}
	data := sig
	switch c.owner.Signer.KeyType() {
	case signer.KeyTypeSecp256k1:
		if len(sig) != 65 {
			return nil, fmt.Errorf("invalid ECDSA signature length %d", len(sig))
		}
		data = append([]byte{}, sig...)
		if data[64] < 27 {
			data[64] += 27
		}
	case signer.KeyTypeWebAuthn:
	default:
		return nil, &UnsupportedKeyTypeError{Account: c.name(), Type: c.owner.Signer.KeyType()}
	}
	return ownerSignatureArgs.Pack(signatureWrapper{OwnerIndex: c.ownerIndex, SignatureData: data})
}

func (c *coinbaseAccount) stubSignature() ([]byte, error) {
	if c.owner.Signer == nil {
		return nil, ErrOwnerCannotSign
	}
	switch c.owner.Signer.KeyType() {
	case signer.KeyTypeSecp256k1:
		return c.wrapSignature(append([]byte{}, ecdsaStubSignature...))
	case signer.KeyTypeWebAuthn:
		w, ok := c.owner.Signer.(webAuthnOwner)
		if !ok {
			return nil, fmt.Errorf("webAuthn signer cannot produce a stub assertion")
		}
		stub, err := w.StubAssertion().Encode()
		if err != nil {
			return nil, err
		}
		return c.wrapSignature(stub)
	default:
		return nil, &UnsupportedKeyTypeError{Account: c.name(), Type: c.owner.Signer.KeyType()}
	}
}

// The wallet checks the raw user operation hash, no EIP-191 prefix.
func (c *coinbaseAccount) signUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if c.owner.Signer == nil {
		return nil, ErrOwnerCannotSign
	}
	sig, err := c.owner.Signer.Sign(ctx, hash)
	if err != nil {
		return nil, err
	}
	return c.wrapSignature(sig)
}

func (c *coinbaseAccount) signMessage(ctx context.Context, a *Account, message []byte) ([]byte, error) {
	return c.signReplaySafe(ctx, a, signer.HashMessage(message))
}

func (c *coinbaseAccount) signTypedData(ctx context.Context, a *Account, data apitypes.TypedData) ([]byte, error) {
	hash, err := signer.HashTypedData(data)
	if err != nil {
		return nil, err
	}
	return c.signReplaySafe(ctx, a, hash)
}

func (c *coinbaseAccount) signReplaySafe(ctx context.Context, a *Account, hash common.Hash) ([]byte, error) {
	if c.owner.Signer == nil {
		return nil, ErrOwnerCannotSign
	}
	address, err := a.Address(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := c.owner.Signer.SignTypedData(ctx, ReplaySafeTypedData(address, a.chainID, hash))
	if err != nil {
		return nil, err
	}
	return c.wrapSignature(sig)
}

func (c *coinbaseAccount) estimateGas(ctx context.Context, op *userop.UserOperation) (*GasOverrides, error) {
	if c.owner.Signer == nil || c.owner.Signer.KeyType() != signer.KeyTypeWebAuthn {
		return nil, nil
	}
	min := big.NewInt(webAuthnMinVerificationGas)
	if op != nil && op.VerificationGasLimit != nil && op.VerificationGasLimit.Cmp(min) > 0 {
		min = new(big.Int).Set(op.VerificationGasLimit)
	}
	return &GasOverrides{VerificationGasLimit: min}, nil
}

// ReplaySafeTypedData wraps hash in the wallet's EIP-712 domain so a
// signature cannot be replayed across the owner's other wallets.
func ReplaySafeTypedData(address common.Address, chainID *big.Int, hash common.Hash) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"CoinbaseSmartWalletMessage": {
				{Name: "hash", Type: "bytes32"},
			},
		},
		PrimaryType: "CoinbaseSmartWalletMessage",
		Domain: apitypes.TypedDataDomain{
			Name:              "Coinbase Smart Wallet",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"hash": hash.Hex(),
		},
	}
}
