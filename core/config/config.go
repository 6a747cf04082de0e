package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

type AccountType string

const (
	AccountTypeSimple   AccountType = "simple"
	AccountTypeCoinbase AccountType = "coinbase"

	DefaultDbPath         = "/tmp/ap-userop/db"
	DefaultFeeMultiplier  = 2.0
	DefaultMetricsAddress = "127.0.0.1:9090"
)

// Config contains everything the CLI needs to build a preset client for one
// account on one chain.
type Config struct {
	Logger      sdklogging.Logger
	Environment sdklogging.LogLevel

	EthHttpRpcUrl string
	BundlerUrl    string
	PaymasterUrl  string
	// PaymasterContext is forwarded verbatim as the ERC-7677 context.
	PaymasterContext map[string]string

	EntryPoint     entrypoint.EntryPoint
	FactoryAddress *common.Address

	AccountType     AccountType
	OwnerPrivateKey *ecdsa.PrivateKey `json:"-"`
	OwnerAddress    common.Address
	// ExtraOwners are additional Coinbase Smart Wallet owners.
	ExtraOwners []common.Address
	Salt        *big.Int
	NonceKey    *big.Int

	DbPath                    string
	EigenMetricsIpPortAddress string

	FeeTier        bundler.FeeTier
	GasPriceMethod string
	FeeMultiplier  float64
	SequenceNonces bool
}

// These are read from configPath
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=development production"`

	EthRpcUrl        string            `yaml:"eth_rpc_url" validate:"required,url"`
	BundlerUrl       string            `yaml:"bundler_url" validate:"required,url"`
	PaymasterUrl     string            `yaml:"paymaster_url" validate:"omitempty,url"`
	PaymasterContext map[string]string `yaml:"paymaster_context"`

	EntryPointVersion string `yaml:"entrypoint_version" validate:"omitempty,oneof=0.6 0.7"`
	EntryPointAddress string `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	FactoryAddress    string `yaml:"factory_address" validate:"omitempty,eth_addr"`

	AccountType     string   `yaml:"account_type" validate:"omitempty,oneof=simple coinbase"`
	OwnerPrivateKey string   `yaml:"owner_private_key" validate:"required"`
	OwnerAddresses  []string `yaml:"owner_addresses" validate:"dive,eth_addr"`
	Salt            string   `yaml:"salt"`
	NonceKey        string   `yaml:"nonce_key"`

	DbPath                    string `yaml:"db_path"`
	EigenMetricsIpPortAddress string `yaml:"eigen_metrics_ip_port_address" validate:"omitempty,hostname_port"`

	FeeTier        string  `yaml:"fee_tier" validate:"omitempty,oneof=slow standard fast"`
	GasPriceMethod string  `yaml:"gas_price_method"`
	FeeMultiplier  float64 `yaml:"fee_multiplier" validate:"gte=0"`
	SequenceNonces bool    `yaml:"sequence_nonces"`
}

// ReadConfigRaw loads and validates the yaml file at configFilePath.
func ReadConfigRaw(configFilePath string) (*ConfigRaw, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", configFilePath, err)
	}

	var configRaw ConfigRaw
	if err := yaml.UnmarshalStrict(data, &configRaw); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", configFilePath, err)
	}
	if err := validator.New().Struct(&configRaw); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configFilePath, err)
	}
	return &configRaw, nil
}

// NewConfig parses the config file and resolves every value the client
// needs. No network connection is made.
func NewConfig(configFilePath string) (*Config, error) {
	configRaw, err := ReadConfigRaw(configFilePath)
	if err != nil {
		return nil, err
	}

	environment := configRaw.Environment
	if environment == "" {
		environment = sdklogging.Development
	}
	logger, err := sdklogging.NewZapLogger(environment)
	if err != nil {
		return nil, err
	}

	config, err := configRaw.resolve()
	if err != nil {
		logger.Error("Cannot resolve config", "path", configFilePath, "err", err)
		return nil, err
	}
	config.Logger = logger
	config.Environment = environment
	return config, nil
}

func (raw *ConfigRaw) resolve() (*Config, error) {
	version := entrypoint.V07
	if raw.EntryPointVersion != "" {
		v, err := entrypoint.ParseVersion(raw.EntryPointVersion)
		if err != nil {
			return nil, err
		}
		version = v
	}
	ep := entrypoint.MustGet(version)
	if raw.EntryPointAddress != "" {
		ep = ep.WithAddress(common.HexToAddress(raw.EntryPointAddress))
	}

	accountType := AccountType(raw.AccountType)
	if accountType == "" {
		accountType = AccountTypeSimple
	}
	if accountType == AccountTypeCoinbase && version != entrypoint.V06 {
		return nil, fmt.Errorf("coinbase smart wallet requires entrypoint 0.6, got %s", version)
	}

	ownerKey, err := crypto.HexToECDSA(strings.TrimPrefix(raw.OwnerPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse owner private key: %w", err)
	}

	salt, err := parseBig(raw.Salt)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	nonceKey, err := parseBig(raw.NonceKey)
	if err != nil {
		return nil, fmt.Errorf("nonce_key: %w", err)
	}

	config := &Config{
		EthHttpRpcUrl:             raw.EthRpcUrl,
		BundlerUrl:                raw.BundlerUrl,
		PaymasterUrl:              raw.PaymasterUrl,
		PaymasterContext:          raw.PaymasterContext,
		EntryPoint:                ep,
		AccountType:               accountType,
		OwnerPrivateKey:           ownerKey,
		OwnerAddress:              crypto.PubkeyToAddress(ownerKey.PublicKey),
		ExtraOwners:               convertToAddressSlice(raw.OwnerAddresses),
		Salt:                      salt,
		NonceKey:                  nonceKey,
		DbPath:                    raw.DbPath,
		EigenMetricsIpPortAddress: raw.EigenMetricsIpPortAddress,
		FeeTier:                   bundler.FeeTier(raw.FeeTier),
		GasPriceMethod:            raw.GasPriceMethod,
		FeeMultiplier:             raw.FeeMultiplier,
		SequenceNonces:            raw.SequenceNonces,
	}
	if raw.FactoryAddress != "" {
		factory := common.HexToAddress(raw.FactoryAddress)
		config.FactoryAddress = &factory
	}
	if config.DbPath == "" {
		config.DbPath = DefaultDbPath
	}
	if config.EigenMetricsIpPortAddress == "" {
		config.EigenMetricsIpPortAddress = DefaultMetricsAddress
	}
	if config.FeeMultiplier == 0 {
		config.FeeMultiplier = DefaultFeeMultiplier
	}
	return config, nil
}

// Sponsored reports whether a paymaster service is configured.
func (c *Config) Sponsored() bool {
	return c.PaymasterUrl != ""
}

// PaymasterContextValue is the context in the form the paymaster client
// forwards; nil when none is configured.
func (c *Config) PaymasterContextValue() any {
	if len(c.PaymasterContext) == 0 {
		return nil
	}
	return c.PaymasterContext
}
