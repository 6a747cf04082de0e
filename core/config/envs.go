package config

import (
	"fmt"
	"math/big"
)

type ChainEnv string

const (
	SepoliaEnv     = ChainEnv("sepolia")
	EthereumEnv    = ChainEnv("ethereum")
	BaseEnv        = ChainEnv("base")
	BaseSepoliaEnv = ChainEnv("base-sepolia")
	UnknownEnv     = ChainEnv("unknown")
)

var (
	MainnetChainID     = big.NewInt(1)
	SepoliaChainID     = big.NewInt(11155111)
	BaseChainID        = big.NewInt(8453)
	BaseSepoliaChainID = big.NewInt(84532)
)

func ChainEnvFor(chainID *big.Int) ChainEnv {
	switch {
	case chainID == nil:
		return UnknownEnv
	case chainID.Cmp(MainnetChainID) == 0:
		return EthereumEnv
	case chainID.Cmp(SepoliaChainID) == 0:
		return SepoliaEnv
	case chainID.Cmp(BaseChainID) == 0:
		return BaseEnv
	case chainID.Cmp(BaseSepoliaChainID) == 0:
		return BaseSepoliaEnv
	}
	return UnknownEnv
}

func (e ChainEnv) IsMainnet() bool {
	return e == EthereumEnv || e == BaseEnv
}

// EtherscanURL is the block explorer of the chain, empty when unknown.
func (e ChainEnv) EtherscanURL() string {
	switch e {
	case EthereumEnv:
		return "https://etherscan.io"
	case SepoliaEnv:
		return "https://sepolia.etherscan.io"
	case BaseEnv:
		return "https://basescan.org"
	case BaseSepoliaEnv:
		return "https://sepolia.basescan.org"
	}
	return ""
}

// UserOpExplorerURL links a user operation hash on jiffyscan.
func (e ChainEnv) UserOpExplorerURL(hash string) string {
	if e == UnknownEnv {
		return ""
	}
	network := string(e)
	if e == EthereumEnv {
		network = "mainnet"
	}
	return fmt.Sprintf("https://jiffyscan.xyz/userOpHash/%s?network=%s", hash, network)
}
