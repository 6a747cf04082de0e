package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/eigensdk-go/chainio/clients/eth"
	sdkmetrics "github.com/Layr-Labs/eigensdk-go/metrics"
	rpccalls "github.com/Layr-Labs/eigensdk-go/metrics/collectors/rpc_calls"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/core/config"
	"github.com/AvaProtocol/ap-userop/metrics"
	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/preset"
	"github.com/AvaProtocol/ap-userop/storage"
)

const serviceName = "ap-userop"

// runtime is everything a command needs, built from the config file.
type runtime struct {
	cfg     *config.Config
	chainID *big.Int

	eth     *eth.InstrumentedClient
	bundler *bundler.BundlerClient
	account *account.Account
	client  *preset.Client

	db      storage.Storage
	journal *storage.Journal

	reg          *prometheus.Registry
	eigenMetrics *sdkmetrics.EigenMetrics
}

func (r *runtime) Close() {
	if r.bundler != nil {
		r.bundler.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.cfg.Logger.Error("Cannot close journal", "err", err)
		}
	}
}

func newRuntime(ctx context.Context, path string) (*runtime, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	r := &runtime{cfg: cfg, reg: prometheus.NewRegistry()}

	r.eth, err = eth.NewInstrumentedClient(cfg.EthHttpRpcUrl, rpccalls.NewCollector(serviceName, r.reg))
	if err != nil {
		logger.Error("Cannot create http ethclient", "err", err)
		return nil, err
	}
	r.chainID, err = r.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read chain id from %s: %w", cfg.EthHttpRpcUrl, err)
	}

	r.bundler, err = bundler.NewBundlerClient(ctx, cfg.BundlerUrl, bundler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("cannot dial bundler %s: %w", cfg.BundlerUrl, err)
	}

	if r.account, err = newAccount(cfg, r.eth, r.chainID); err != nil {
		r.Close()
		return nil, err
	}

	r.db, err = storage.NewWithPath(cfg.DbPath)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("cannot open journal at %s: %w", cfg.DbPath, err)
	}
	r.journal = storage.NewJournal(r.db)

	r.eigenMetrics = sdkmetrics.NewEigenMetrics(serviceName, cfg.EigenMetricsIpPortAddress, r.reg, logger)

	opts := preset.Options{
		Bundler:        r.bundler,
		Account:        r.account,
		FeeEstimator:   eip1559.NewChainFeeEstimator(r.eth),
		FeeMultiplier:  cfg.FeeMultiplier,
		SequenceNonces: cfg.SequenceNonces,
		Journal:        r.journal,
		Metrics:        metrics.NewUserOpMetrics(r.eigenMetrics, r.reg),
		Logger:         logger,
	}
	if cfg.FeeTier != "" || cfg.GasPriceMethod != "" {
		opts.EstimateFeesPerGas = bundler.NewGasPriceFeeEstimator(r.bundler, cfg.GasPriceMethod, cfg.FeeTier)
	}
	if cfg.Sponsored() {
		opts.Sponsor = paymaster.NewClient(cfg.PaymasterUrl, paymaster.WithLogger(logger))
		opts.PaymasterContext = cfg.PaymasterContextValue()
	}

	r.client, err = preset.NewClient(opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func newAccount(cfg *config.Config, client *eth.InstrumentedClient, chainID *big.Int) (*account.Account, error) {
	owner, err := signer.NewLocalSigner(cfg.OwnerPrivateKey)
	if err != nil {
		return nil, err
	}
	ep := cfg.EntryPoint.Address

	switch cfg.AccountType {
	case config.AccountTypeCoinbase:
		owners := []account.Owner{account.OwnerFromSigner(owner)}
		for _, extra := range cfg.ExtraOwners {
			owners = append(owners, account.OwnerFromAddress(extra))
		}
		return account.NewCoinbaseSmartAccount(account.CoinbaseSmartAccountConfig{
			Client:            client,
			ChainID:           chainID,
			Owners:            owners,
			Nonce:             cfg.Salt,
			Factory:           cfg.FactoryAddress,
			EntryPointAddress: &ep,
			NonceKey:          cfg.NonceKey,
			Logger:            cfg.Logger,
		})
	default:
		return account.NewSimpleAccount(account.SimpleAccountConfig{
			Client:            client,
			ChainID:           chainID,
			Version:           cfg.EntryPoint.Version,
			EntryPointAddress: &ep,
			Owner:             owner,
			Factory:           cfg.FactoryAddress,
			Salt:              cfg.Salt,
			NonceKey:          cfg.NonceKey,
			Logger:            cfg.Logger,
		})
	}
}
