package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

const ownerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
eth_rpc_url: https://sepolia.drpc.org
bundler_url: https://bundler.example.com/rpc
owner_private_key: `+ownerKey+`
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, sdklogging.Development, cfg.Environment)
	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, entrypoint.V07, cfg.EntryPoint.Version)
	assert.Equal(t, entrypoint.MustGet(entrypoint.V07).Address, cfg.EntryPoint.Address)
	assert.Equal(t, AccountTypeSimple, cfg.AccountType)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), cfg.OwnerAddress)
	assert.Nil(t, cfg.Salt)
	assert.Nil(t, cfg.FactoryAddress)
	assert.Equal(t, DefaultDbPath, cfg.DbPath)
	assert.Equal(t, DefaultMetricsAddress, cfg.EigenMetricsIpPortAddress)
	assert.Equal(t, DefaultFeeMultiplier, cfg.FeeMultiplier)
	assert.False(t, cfg.Sponsored())
	assert.Nil(t, cfg.PaymasterContextValue())
}

func TestNewConfigCoinbase(t *testing.T) {
	path := writeConfig(t, `
environment: production
eth_rpc_url: https://mainnet.base.org
bundler_url: https://bundler.example.com/rpc
paymaster_url: https://paymaster.example.com/rpc
paymaster_context:
  sponsorshipPolicyId: sp_test
entrypoint_version: "0.6"
account_type: coinbase
owner_private_key: `+ownerKey[2:]+`
owner_addresses:
  - "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
salt: "0x10"
nonce_key: "3"
fee_tier: standard
fee_multiplier: 1.5
sequence_nonces: true
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, sdklogging.Production, cfg.Environment)
	assert.Equal(t, entrypoint.V06, cfg.EntryPoint.Version)
	assert.Equal(t, AccountTypeCoinbase, cfg.AccountType)
	require.Len(t, cfg.ExtraOwners, 1)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), cfg.ExtraOwners[0])
	assert.Equal(t, int64(16), cfg.Salt.Int64())
	assert.Equal(t, int64(3), cfg.NonceKey.Int64())
	assert.Equal(t, bundler.FeeTierStandard, cfg.FeeTier)
	assert.Equal(t, 1.5, cfg.FeeMultiplier)
	assert.True(t, cfg.SequenceNonces)
	assert.True(t, cfg.Sponsored())
	assert.Equal(t, map[string]string{"sponsorshipPolicyId": "sp_test"}, cfg.PaymasterContextValue())
}

func TestNewConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing bundler",
			body: "eth_rpc_url: https://sepolia.drpc.org\nowner_private_key: " + ownerKey + "\n",
		},
		{
			name: "unknown entrypoint version",
			body: "eth_rpc_url: https://sepolia.drpc.org\nbundler_url: https://b.example.com\nentrypoint_version: \"0.8\"\nowner_private_key: " + ownerKey + "\n",
		},
		{
			name: "coinbase on 0.7",
			body: "eth_rpc_url: https://sepolia.drpc.org\nbundler_url: https://b.example.com\naccount_type: coinbase\nowner_private_key: " + ownerKey + "\n",
		},
		{
			name: "bad factory address",
			body: "eth_rpc_url: https://sepolia.drpc.org\nbundler_url: https://b.example.com\nfactory_address: 0x1234\nowner_private_key: " + ownerKey + "\n",
		},
		{
			name: "bad key",
			body: "eth_rpc_url: https://sepolia.drpc.org\nbundler_url: https://b.example.com\nowner_private_key: 0xzz\n",
		},
		{
			name: "unknown field",
			body: "eth_rpc_url: https://sepolia.drpc.org\nbundler_url: https://b.example.com\nowner_private_key: " + ownerKey + "\nchain: base\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestChainEnv(t *testing.T) {
	assert.Equal(t, BaseEnv, ChainEnvFor(big.NewInt(8453)))
	assert.True(t, BaseEnv.IsMainnet())
	assert.Equal(t, "https://sepolia.etherscan.io", ChainEnvFor(big.NewInt(11155111)).EtherscanURL())
	assert.Equal(t, UnknownEnv, ChainEnvFor(big.NewInt(31337)))
	assert.Empty(t, UnknownEnv.UserOpExplorerURL("0x01"))
	assert.Equal(t, "https://jiffyscan.xyz/userOpHash/0x01?network=mainnet", EthereumEnv.UserOpExplorerURL("0x01"))
}
