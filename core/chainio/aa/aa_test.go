package aa

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/testutil"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

var (
	owner  = common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	wallet = common.HexToAddress("0x5Df343de7d99fd64b2479189692C1dAb8f46184a")
)

func TestGetInitCode(t *testing.T) {
	data := []byte{0x5f, 0xbf, 0xb9, 0xcf}
	initCode := GetInitCode(SimpleAccountFactoryV06, data)

	require.Len(t, initCode, common.AddressLength+len(data))
	assert.Equal(t, SimpleAccountFactoryV06.Bytes(), initCode[:common.AddressLength])
	assert.Equal(t, data, initCode[common.AddressLength:])
}

func TestGetNonce(t *testing.T) {
	chain := testutil.NewFakeChain()
	ep := entrypoint.MustGet(entrypoint.V07)
	var gotKey *big.Int
	chain.Handle(ep.Address, ep.ABI, "getNonce", func(args []any) ([]any, error) {
		assert.Equal(t, wallet, args[0].(common.Address))
		gotKey = args[1].(*big.Int)
		return []any{new(big.Int).Lsh(gotKey, 64)}, nil
	})
	ctx := context.Background()

	nonce, err := GetNonce(ctx, chain, ep, wallet, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, nonce.Sign())
	assert.Equal(t, 0, gotKey.Sign())

	nonce, err = GetNonce(ctx, chain, ep, wallet, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(3), 64).String(), nonce.String())

	_, err = GetNonce(ctx, chain, ep, wallet, big.NewInt(-1))
	assert.Error(t, err)
	_, err = GetNonce(ctx, chain, ep, wallet, new(big.Int).Lsh(big.NewInt(1), 192))
	assert.Error(t, err)
	assert.Equal(t, 2, chain.CallCount())
}

func TestGetNonceWithoutHandler(t *testing.T) {
	chain := testutil.NewFakeChain()
	_, err := GetNonce(context.Background(), chain, entrypoint.MustGet(entrypoint.V06), wallet, nil)
	assert.ErrorContains(t, err, "cannot determine nonce")
}

func TestIsDeployed(t *testing.T) {
	chain := testutil.NewFakeChain()
	ctx := context.Background()

	deployed, err := IsDeployed(ctx, chain, wallet)
	require.NoError(t, err)
	assert.False(t, deployed)

	chain.SetCode(wallet, []byte{0x60, 0x80})
	deployed, err = IsDeployed(ctx, chain, wallet)
	require.NoError(t, err)
	assert.True(t, deployed)

	chain.CodeAtErr = errors.New("node down")
	_, err = IsDeployed(ctx, chain, wallet)
	assert.ErrorContains(t, err, "node down")
}

func TestSenderResolverCaches(t *testing.T) {
	chain := testutil.NewFakeChain()
	factoryABI, err := abi.JSON(strings.NewReader(SimpleAccountFactoryABI))
	require.NoError(t, err)
	chain.Handle(SimpleAccountFactoryV07, factoryABI, "getAddress", func(args []any) ([]any, error) {
		salt := args[1].(*big.Int)
		if salt.Sign() == 0 {
			return []any{wallet}, nil
		}
		return []any{common.BigToAddress(salt)}, nil
	})
	r := NewSenderResolver(chain, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sender, err := r.GetSenderAddress(ctx, SimpleAccountFactoryV07, factoryABI, owner, big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, wallet, sender)
	}
	assert.Equal(t, 1, chain.CallCount())

	sender, err := r.GetSenderAddress(ctx, SimpleAccountFactoryV07, factoryABI, owner, big.NewInt(9))
	require.NoError(t, err)
	assert.Equal(t, common.BigToAddress(big.NewInt(9)), sender)
	assert.Equal(t, 2, r.Len())
}

func TestSenderResolverRejectsZeroAddress(t *testing.T) {
	chain := testutil.NewFakeChain()
	factoryABI, err := abi.JSON(strings.NewReader(SimpleAccountFactoryABI))
	require.NoError(t, err)
	chain.Handle(SimpleAccountFactoryV06, factoryABI, "getAddress", func(args []any) ([]any, error) {
		return []any{common.Address{}}, nil
	})
	r := NewSenderResolver(chain, 4)

	_, err = r.GetSenderAddress(context.Background(), SimpleAccountFactoryV06, factoryABI, owner, big.NewInt(0))
	assert.ErrorContains(t, err, "zero address")
	assert.Equal(t, 0, r.Len())
}

// Reads a real entry point when RPC_URL points at a Sepolia node.
func TestGetNonceSepolia(t *testing.T) {
	if os.Getenv("RPC_URL") == "" {
		t.Skip("RPC_URL not set")
	}
	client, err := ethclient.Dial(testutil.GetTestRPCURL())
	require.NoError(t, err)
	defer client.Close()

	fresh := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	nonce, err := GetNonce(context.Background(), client, entrypoint.MustGet(entrypoint.V07), fresh, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, 0, nonce.Sign())
}
