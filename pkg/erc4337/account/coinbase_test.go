package account

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/core/testutil"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

const (
	executeEmptyCall = "0xb61d27f60000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000600000000000000000000000000000000000000000000000000000000000000000"

	executeMint = "0xb61d27f6000000000000000000000000fba3912ca04dd458c843e2ee08967fc04f3579c2000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000600000000000000000000000000000000000000000000000000000000000000024a0712d6800000000000000000000000000000000000000000000000000000000000001a400000000000000000000000000000000000000000000000000000000"

	executeBatchTwoCalls = "0x34fcd5be00000000000000000000000000000000000000000000000000000000000000200000000000000000000000000000000000000000000000000000000000000002000000000000000000000000000000000000000000000000000000000000004000000000000000000000000000000000000000000000000000000000000000c000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000de0b6b3a764000000000000000000000000000000000000000000000000000000000000000000600000000000000000000000000000000000000000000000000000000000000000000000000000000000000000d73bab8f06db28c87932571f87d0d2c0fdf13d94000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000600000000000000000000000000000000000000000000000000000000000000004940b880200000000000000000000000000000000000000000000000000000000"
)

func newCoinbase(t *testing.T, chain *testutil.FakeChain, owner signer.Signer) *Account {
	a, err := NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{
		Client:  chain,
		ChainID: chainID,
		Owners:  []Owner{OwnerFromSigner(owner)},
	})
	require.NoError(t, err)
	return a
}

func newPasskey(t *testing.T) *signer.WebAuthnSigner {
	s, err := signer.GenerateWebAuthnSigner("example.com", "https://example.com")
	require.NoError(t, err)
	return s
}

func decodeWrapper(t *testing.T, sig []byte) signatureWrapper {
	t.Helper()
	values, err := ownerSignatureArgs.Unpack(sig)
	require.NoError(t, err)
	require.Len(t, values, 1)
	return *abi.ConvertType(values[0], new(signatureWrapper)).(*signatureWrapper)
}

func TestCoinbaseEncodeCalls(t *testing.T) {
	a := newCoinbase(t, newChain(), testOwner(t))

	tests := []struct {
		name  string
		calls []Call
		want  string
	}{
		{
			name:  "empty call",
			calls: []Call{{To: common.Address{}}},
			want:  executeEmptyCall,
		},
		{
			name: "single call with data",
			calls: []Call{{
				To:   common.HexToAddress("0xfba3912ca04dd458c843e2ee08967fc04f3579c2"),
				Data: common.FromHex("0xa0712d6800000000000000000000000000000000000000000000000000000000000001a4"),
			}},
			want: executeMint,
		},
		{
			name: "batch",
			calls: []Call{
				{To: common.Address{}, Value: big.NewInt(1_000_000_000_000_000_000)},
				{To: common.HexToAddress("0xd73bab8f06db28c87932571f87d0d2c0fdf13d94"), Data: common.FromHex("0x940b8802")},
			},
			want: executeBatchTwoCalls,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := a.EncodeCalls(tt.calls)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hexutil.Encode(data))

			decoded, err := a.DecodeCalls(data)
			require.NoError(t, err)
			assertCallsEqual(t, tt.calls, decoded)
		})
	}
}

func TestCoinbaseAddressUsesFactory(t *testing.T) {
	chain := newChain()
	owner := testOwner(t)
	var seenOwners [][]byte
	chain.Handle(aa.CoinbaseSmartWalletFactoryV1, coinbaseFactory, "getAddress", func(args []any) ([]any, error) {
		seenOwners = args[0].([][]byte)
		return []any{coinbaseSender}, nil
	})
	a := newCoinbase(t, chain, owner)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coinbaseSender, addr)
	require.Len(t, seenOwners, 1)
	assert.Equal(t, common.LeftPadBytes(owner.Address().Bytes(), 32), seenOwners[0])
	assert.True(t, a.EntryPoint().IsV06())

	args, err := a.FactoryArgs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aa.CoinbaseSmartWalletFactoryV1, *args.Factory)
	assert.Equal(t, coinbaseFactory.Methods["createAccount"].ID, args.FactoryData[:4])
}

func TestCoinbaseFactoryVersion(t *testing.T) {
	owner := testOwner(t)
	a, err := NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{
		Client:         newChain(),
		ChainID:        chainID,
		Owners:         []Owner{OwnerFromSigner(owner)},
		FactoryVersion: "1.1",
	})
	require.NoError(t, err)
	args, err := a.FactoryArgs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aa.CoinbaseSmartWalletFactoryV1_1, *args.Factory)

	_, err = NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{
		Client:         newChain(),
		ChainID:        chainID,
		Owners:         []Owner{OwnerFromSigner(owner)},
		FactoryVersion: "2",
	})
	assert.Error(t, err)
}

func TestCoinbaseECDSASignature(t *testing.T) {
	owner := testOwner(t)
	a := newCoinbase(t, newChain(), owner)
	ctx := context.Background()

	op := &userop.UserOperation{
		Nonce:                big.NewInt(0),
		CallData:             common.FromHex(executeEmptyCall),
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

	wrapped := decodeWrapper(t, sig)
	assert.Equal(t, uint8(0), wrapped.OwnerIndex)
	require.Len(t, wrapped.SignatureData, 65)
	assert.Contains(t, []byte{27, 28}, wrapped.SignatureData[64])

	hash, err := a.UserOperationHash(ctx, op)
	require.NoError(t, err)
	recovered, err := signer.RecoverAddress(hash, wrapped.SignatureData)
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), recovered, "the wallet checks the raw hash")

	stubWrapped := decodeWrapper(t, stub)
	assert.Equal(t, ecdsaStubSignature, stubWrapped.SignatureData)
}

func TestCoinbaseOwnerIndex(t *testing.T) {
	owner := testOwner(t)
	a, err := NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{
		Client:  newChain(),
		ChainID: chainID,
		Owners: []Owner{
			OwnerFromAddress(common.HexToAddress("0x5555555555555555555555555555555555555555")),
			OwnerFromSigner(owner),
		},
		OwnerIndex: 1,
	})
	require.NoError(t, err)

	stub, err := a.StubSignature()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), decodeWrapper(t, stub).OwnerIndex)
}

func TestCoinbaseAddressOnlyOwnerCannotSign(t *testing.T) {
	a, err := NewCoinbaseSmartAccount(CoinbaseSmartAccountConfig{
		Client:  newChain(),
		ChainID: chainID,
		Owners:  []Owner{OwnerFromAddress(common.HexToAddress("0x5555555555555555555555555555555555555555"))},
	})
	require.NoError(t, err)

	_, err = a.StubSignature()
	assert.ErrorIs(t, err, ErrOwnerCannotSign)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coinbaseSender, addr)
}

func TestCoinbaseWebAuthnOwner(t *testing.T) {
	passkey := newPasskey(t)
	chain := newChain()
	var seenOwners [][]byte
	chain.Handle(aa.CoinbaseSmartWalletFactoryV1, coinbaseFactory, "getAddress", func(args []any) ([]any, error) {
		seenOwners = args[0].([][]byte)
		return []any{coinbaseSender}, nil
	})
	a := newCoinbase(t, chain, passkey)
	ctx := context.Background()

	_, err := a.Address(ctx)
	require.NoError(t, err)
	require.Len(t, seenOwners, 1)
	assert.Len(t, seenOwners[0], 64)
	assert.Equal(t, passkey.PublicKey(), seenOwners[0])

	op := &userop.UserOperation{
		Nonce:                big.NewInt(3),
		CallData:             common.FromHex(executeEmptyCall),
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
	assert.NotEqual(t, stub, sig)

	gas, err := a.EstimateGas(ctx, op)
	require.NoError(t, err)
	require.NotNil(t, gas)
	assert.Equal(t, int64(webAuthnMinVerificationGas), gas.VerificationGasLimit.Int64())

	op.VerificationGasLimit = big.NewInt(1_200_000)
	gas, err = a.EstimateGas(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, int64(1_200_000), gas.VerificationGasLimit.Int64())

	ecdsaAccount := newCoinbase(t, newChain(), testOwner(t))
	gas, err = ecdsaAccount.EstimateGas(ctx, op)
	require.NoError(t, err)
	assert.Nil(t, gas)
}

func TestCoinbaseSignMessageIsReplaySafe(t *testing.T) {
	owner := testOwner(t)
	a := newCoinbase(t, newChain(), owner)
	ctx := context.Background()

	msg := []byte("hello world")
	sig, err := a.SignMessage(ctx, msg)
	require.NoError(t, err)
	wrapped := decodeWrapper(t, sig)

	typed := ReplaySafeTypedData(coinbaseSender, chainID, signer.HashMessage(msg))
	digest, err := signer.HashTypedData(typed)
	require.NoError(t, err)
	recovered, err := signer.RecoverAddress(digest, wrapped.SignatureData)
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), recovered)

	// a plain personal_sign over the message must not verify
	plain, err := signer.RecoverAddress(signer.HashMessage(msg), wrapped.SignatureData)
	require.NoError(t, err)
	assert.NotEqual(t, owner.Address(), plain)
}

func TestCoinbaseUnsupportedKeyType(t *testing.T) {
	a := newCoinbase(t, newChain(), ed25519Signer{testOwner(t)})

	_, err := a.StubSignature()
	var keyErr *UnsupportedKeyTypeError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "CoinbaseSmartWallet", keyErr.Account)

	_, err = a.Address(context.Background())
	assert.ErrorAs(t, err, &keyErr)
}

func TestCoinbaseOnlySupportsV06(t *testing.T) {
	a := newCoinbase(t, newChain(), testOwner(t))
	assert.Equal(t, entrypoint.AddressV06, a.EntryPoint().Address)
}
