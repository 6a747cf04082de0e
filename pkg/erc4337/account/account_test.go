package account

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/core/testutil"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

const ownerKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	chainID        = big.NewInt(11155111)
	simpleSender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	coinbaseSender = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testOwner(t *testing.T) *signer.LocalSigner {
	s, err := signer.FromPrivateKeyHex(ownerKeyHex)
	require.NoError(t, err)
	return s
}

// newChain serves factory getAddress for both account kinds and entry point
// getNonce returning 7 + key.
func newChain() *testutil.FakeChain {
	chain := testutil.NewFakeChain()
	for _, f := range []common.Address{aa.SimpleAccountFactoryV06, aa.SimpleAccountFactoryV07} {
		chain.Handle(f, simpleFactory, "getAddress", func(args []any) ([]any, error) {
			return []any{simpleSender}, nil
		})
	}
	for _, f := range []common.Address{aa.CoinbaseSmartWalletFactoryV1, aa.CoinbaseSmartWalletFactoryV1_1} {
		chain.Handle(f, coinbaseFactory, "getAddress", func(args []any) ([]any, error) {
			return []any{coinbaseSender}, nil
		})
	}
	for _, v := range []entrypoint.Version{entrypoint.V06, entrypoint.V07} {
		ep := entrypoint.MustGet(v)
		chain.Handle(ep.Address, ep.ABI, "getNonce", func(args []any) ([]any, error) {
			key := args[1].(*big.Int)
			return []any{new(big.Int).Add(big.NewInt(7), key)}, nil
		})
	}
	return chain
}

func newSimple(t *testing.T, chain *testutil.FakeChain, version entrypoint.Version) *Account {
	a, err := NewSimpleAccount(SimpleAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Version: version,
		Owner:   testOwner(t),
	})
	require.NoError(t, err)
	return a
}

func assertCallsEqual(t *testing.T, want, got []Call) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].To, got[i].To, "call %d target", i)
		assert.Equal(t, 0, orZero(want[i].Value).Cmp(got[i].Value), "call %d value", i)
		assert.Equal(t, nonNil(want[i].Data), got[i].Data, "call %d data", i)
	}
}

func TestAddressDerivedOnceAndCached(t *testing.T) {
	chain := newChain()
	a := newSimple(t, chain, entrypoint.V07)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, simpleSender, addr)

	addr, err = a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, simpleSender, addr)
	assert.Equal(t, 1, chain.CallCount())
}

func TestExplicitAddressSkipsChain(t *testing.T) {
	chain := newChain()
	explicit := common.HexToAddress("0x3333333333333333333333333333333333333333")
	a, err := NewSimpleAccount(SimpleAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Owner:   testOwner(t),
		Address: &explicit,
	})
	require.NoError(t, err)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, explicit, addr)
	assert.Equal(t, 0, chain.CallCount())
}

func TestDeploymentStateIsMonotonic(t *testing.T) {
	chain := newChain()
	a := newSimple(t, chain, entrypoint.V07)
	ctx := context.Background()

	deployed, err := a.IsDeployed(ctx)
	require.NoError(t, err)
	assert.False(t, deployed)

	deployed, err = a.IsDeployed(ctx)
	require.NoError(t, err)
	assert.False(t, deployed)
	assert.Equal(t, 2, chain.CodeAtCalls(simpleSender), "negative results are not cached")

	chain.SetCode(simpleSender, []byte{0x60, 0x80})
	deployed, err = a.IsDeployed(ctx)
	require.NoError(t, err)
	assert.True(t, deployed)

	// even if the probe would now fail the cached result stands
	chain.CodeAtErr = errors.New("node down")
	for i := 0; i < 3; i++ {
		deployed, err = a.IsDeployed(ctx)
		require.NoError(t, err)
		assert.True(t, deployed)
	}
	assert.Equal(t, 3, chain.CodeAtCalls(simpleSender))

	args, err := a.FactoryArgs(ctx)
	require.NoError(t, err)
	assert.Nil(t, args.Factory)
	assert.Nil(t, args.FactoryData)

	_, err = a.RecheckDeployment(ctx)
	assert.Error(t, err)
}

func TestFactoryArgsForCounterfactualAccount(t *testing.T) {
	chain := newChain()
	owner := testOwner(t)
	a, err := NewSimpleAccount(SimpleAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Owner:   owner,
		Salt:    big.NewInt(3),
	})
	require.NoError(t, err)

	args, err := a.FactoryArgs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, args.Factory)
	assert.Equal(t, aa.SimpleAccountFactoryV07, *args.Factory)

	m, err := simpleFactory.MethodById(args.FactoryData[:4])
	require.NoError(t, err)
	assert.Equal(t, "createAccount", m.Name)
	values, err := m.Inputs.Unpack(args.FactoryData[4:])
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), values[0].(common.Address))
	assert.Equal(t, int64(3), values[1].(*big.Int).Int64())
}

func TestSimpleAccountCallsRoundTrip(t *testing.T) {
	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	single := []Call{{To: target, Value: big.NewInt(1000), Data: []byte{}}}
	batch := []Call{
		{To: target, Value: big.NewInt(1), Data: []byte{}},
		{To: simpleSender, Value: big.NewInt(0), Data: common.FromHex("0xdeadbeef")},
	}

	a7 := newSimple(t, newChain(), entrypoint.V07)
	for _, calls := range [][]Call{single, batch} {
		data, err := a7.EncodeCalls(calls)
		require.NoError(t, err)
		decoded, err := a7.DecodeCalls(data)
		require.NoError(t, err)
		assertCallsEqual(t, calls, decoded)
	}

	a6 := newSimple(t, newChain(), entrypoint.V06)
	zeroValueBatch := []Call{
		{To: target, Value: big.NewInt(0), Data: common.FromHex("0x01")},
		{To: simpleSender, Value: big.NewInt(0), Data: common.FromHex("0xdeadbeef")},
	}
	data, err := a6.EncodeCalls(zeroValueBatch)
	require.NoError(t, err)
	assert.Equal(t, simpleAccountV06.Methods["executeBatch"].ID, data[:4])
	decoded, err := a6.DecodeCalls(data)
	require.NoError(t, err)
	assertCallsEqual(t, zeroValueBatch, decoded)

	_, err = a6.EncodeCalls(batch)
	assert.Error(t, err, "0.6 batches cannot carry value")

	_, err = a6.EncodeCalls(nil)
	assert.ErrorIs(t, err, ErrEmptyCalls)
}

func TestSimpleAccountSignUserOperation(t *testing.T) {
	owner := testOwner(t)
	for _, v := range []entrypoint.Version{entrypoint.V06, entrypoint.V07} {
		a := newSimple(t, newChain(), v)
		ctx := context.Background()

		op := &userop.UserOperation{
			Nonce:                big.NewInt(1),
			CallData:             []byte{0x01},
			CallGasLimit:         big.NewInt(80000),
			VerificationGasLimit: big.NewInt(100000),
			PreVerificationGas:   big.NewInt(50000),
			MaxFeePerGas:         big.NewInt(2),
			MaxPriorityFeePerGas: big.NewInt(1),
		}
		sig, err := a.SignUserOperation(ctx, op)
		require.NoError(t, err)

		stub, err := a.StubSignature()
		require.NoError(t, err)
		assert.Equal(t, len(stub), len(sig))

		hash, err := a.UserOperationHash(ctx, op)
		require.NoError(t, err)
		recovered, err := signer.RecoverAddress(signer.HashMessage(hash.Bytes()), sig)
		require.NoError(t, err)
		assert.Equal(t, owner.Address(), recovered)
		assert.Nil(t, op.Sender, "signing must not mutate the draft")
	}
}

type ed25519Signer struct {
	*signer.LocalSigner
}

func (ed25519Signer) KeyType() signer.KeyType { return "ed25519" }

func TestUnsupportedKeyTypeFailsAtWrapping(t *testing.T) {
	chain := newChain()
	a, err := NewSimpleAccount(SimpleAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Owner:   ed25519Signer{testOwner(t)},
	})
	require.NoError(t, err)

	_, err = a.StubSignature()
	var keyErr *UnsupportedKeyTypeError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, signer.KeyType("ed25519"), keyErr.Type)
	assert.Contains(t, err.Error(), "ed25519")

	_, err = a.SignUserOperation(context.Background(), &userop.UserOperation{})
	assert.ErrorAs(t, err, &keyErr)
}

func TestMissingOwnerFailsBeforeNetwork(t *testing.T) {
	chain := newChain()
	_, err := NewSimpleAccount(SimpleAccountConfig{Client: chain, ChainID: chainID})
	assert.ErrorIs(t, err, ErrMissingOwner)

	_, err = NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{Client: chain, ChainID: chainID})
	assert.ErrorIs(t, err, ErrMissingOwner)

	_, err = NewSimpleAccount(SimpleAccountConfig{ChainID: chainID, Owner: testOwner(t)})
	assert.ErrorIs(t, err, ErrMissingClient)

	assert.Equal(t, 0, chain.CallCount())
}

func TestGetNonce(t *testing.T) {
	chain := newChain()
	a, err := NewSimpleAccount(SimpleAccountConfig{
		Client:   chain,
		ChainID:  chainID,
		Owner:    testOwner(t),
		NonceKey: big.NewInt(5),
	})
	require.NoError(t, err)

	nonce, err := a.GetNonce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), nonce.Int64())

	nonce, err = a.GetNonce(context.Background(), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, int64(7), nonce.Int64())

	hooked, err := NewSimpleAccount(SimpleAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Owner:   testOwner(t),
		Hooks: Hooks{GetNonce: func(ctx context.Context, key *big.Int) (*big.Int, error) {
			return big.NewInt(99), nil
		}},
	})
	require.NoError(t, err)
	nonce, err = hooked.GetNonce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), nonce.Int64())
}

func TestStubSignatureIsDistinctFromReal(t *testing.T) {
	a := newSimple(t, newChain(), entrypoint.V07)
	stub, err := a.StubSignature()
	require.NoError(t, err)
	assert.Len(t, stub, crypto.SignatureLength)
	assert.Equal(t, ecdsaStubSignature, stub)

	stub[0] = 0
	again, err := a.StubSignature()
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), again[0], "stub must be returned as a copy")
}
