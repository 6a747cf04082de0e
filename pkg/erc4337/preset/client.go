// Package preset turns "send these calls from this account" into a prepared,
// signed and submitted user operation.
package preset

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/metrics"
	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
	"github.com/AvaProtocol/ap-userop/storage"
)

const (
	DefaultFeeMultiplier = 2.0

	DefaultReceiptPollInterval = 1 * time.Second
	DefaultReceiptMaxInterval  = 5 * time.Second
	receiptBackoffFactor       = 1.5
)

var (
	ErrAccountNotFound = errors.New("account not found: set one on the request or the client")
	ErrMissingBundler  = errors.New("preset: bundler client is required")
	ErrNoFeeSource     = errors.New("preset: no fee estimator configured")
)

// Bundler is the part of the bundler RPC the pipeline needs.
type Bundler interface {
	EstimateUserOperationGas(ctx context.Context, ep entrypoint.EntryPoint, op *userop.UserOperation, stateOverride map[common.Address]any) (*bundler.GasEstimation, error)
	SendUserOperation(ctx context.Context, ep entrypoint.EntryPoint, op *userop.UserOperation) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error)
}

// Journal records submissions; *storage.Journal implements it.
type Journal interface {
	Record(sub *storage.Submission) error
	MarkIncluded(hash common.Hash, txHash common.Hash, success bool) error
}

type Options struct {
	Bundler Bundler

	// Account is used when a request names none.
	Account *account.Account

	// Sponsor fills paymaster fields for every request that asks for the
	// paymaster parameter and brings no paymaster of its own.
	Sponsor          paymaster.Sponsor
	PaymasterContext any

	// EstimateFeesPerGas overrides fee estimation, typically with the
	// bundler's own gas price method. Its answer is used as is.
	EstimateFeesPerGas eip1559.FeeEstimator
	// FeeEstimator is the generic chain estimator; its answer is scaled by
	// FeeMultiplier.
	FeeEstimator  eip1559.FeeEstimator
	FeeMultiplier float64

	// NonceManager hands out nonces locally so operations can be prepared
	// back to back. When nil and SequenceNonces is set, the client builds one
	// reading from the accounts it prepares for.
	NonceManager   *bundler.NonceManager
	SequenceNonces bool

	Journal Journal
	Metrics metrics.MetricsGenerator
	Logger  logger.Logger

	ReceiptPollInterval time.Duration
	ReceiptMaxInterval  time.Duration
}

// Client runs the preparation pipeline against one bundler. It is safe for
// concurrent use.
type Client struct {
	bundler Bundler
	account *account.Account

	sponsor          paymaster.Sponsor
	paymasterContext any

	feesHook      eip1559.FeeEstimator
	feeEstimator  eip1559.FeeEstimator
	feeMultiplier float64

	nonceManager *bundler.NonceManager
	accounts     sync.Map // bundler.NonceKey.String() without key -> *account.Account

	journal Journal
	metrics metrics.MetricsGenerator
	logger  logger.Logger

	pollInterval time.Duration
	maxInterval  time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if opts.Bundler == nil {
		return nil, ErrMissingBundler
	}

	c := &Client{
		bundler:          opts.Bundler,
		account:          opts.Account,
		sponsor:          opts.Sponsor,
		paymasterContext: opts.PaymasterContext,
		feesHook:         opts.EstimateFeesPerGas,
		feeEstimator:     opts.FeeEstimator,
		feeMultiplier:    opts.FeeMultiplier,
		nonceManager:     opts.NonceManager,
		journal:          opts.Journal,
		metrics:          opts.Metrics,
		logger:           logger.EnsureLogger(opts.Logger),
		pollInterval:     opts.ReceiptPollInterval,
		maxInterval:      opts.ReceiptMaxInterval,
	}
	if c.feeMultiplier <= 0 {
		c.feeMultiplier = DefaultFeeMultiplier
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNoopMetrics()
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultReceiptPollInterval
	}
	if c.maxInterval < c.pollInterval {
		c.maxInterval = DefaultReceiptMaxInterval
		if c.maxInterval < c.pollInterval {
			c.maxInterval = c.pollInterval
		}
	}
	if c.nonceManager == nil && opts.SequenceNonces {
		c.nonceManager = bundler.NewNonceManager(bundler.NonceSourceFunc(c.accountNonce), c.logger)
	}
	return c, nil
}

func (c *Client) NonceManager() *bundler.NonceManager { return c.nonceManager }

func (c *Client) resolveAccount(acc *account.Account) (*account.Account, error) {
	if acc != nil {
		return acc, nil
	}
	if c.account != nil {
		return c.account, nil
	}
	return nil, ErrAccountNotFound
}

func accountID(chainID *big.Int, address common.Address) string {
	return fmt.Sprintf("%s:%s", chainID, address.Hex())
}

// accountNonce is the nonce source of a client built nonce manager: it reads
// through the account that owns the key, so account hooks apply.
func (c *Client) accountNonce(ctx context.Context, key bundler.NonceKey) (*big.Int, error) {
	v, ok := c.accounts.Load(accountID(key.ChainID, key.Address))
	if !ok {
		return nil, fmt.Errorf("no account registered for %s", key.Address.Hex())
	}
	return v.(*account.Account).GetNonce(ctx, key.Key)
}

// nonceKey is the sequence an operation from acc draws from.
func nonceKey(acc *account.Account, sender common.Address) bundler.NonceKey {
	key := acc.NonceKey()
	if key == nil {
		key = new(big.Int)
	}
	return bundler.NonceKey{ChainID: acc.ChainID(), Address: sender, Key: key}
}

func (c *Client) allocateNonce(ctx context.Context, acc *account.Account, sender common.Address) (*big.Int, error) {
	if c.nonceManager == nil {
		return acc.GetNonce(ctx, nil)
	}
	c.accounts.LoadOrStore(accountID(acc.ChainID(), sender), acc)

	nonce, err := c.nonceManager.Consume(ctx, nonceKey(acc, sender))
	if err != nil {
		return nil, err
	}
	c.metrics.IncNonceAllocated()
	return nonce, nil
}

// estimateFees returns the fees to use, keeping whichever of the two the
// caller already supplied.
func (c *Client) estimateFees(ctx context.Context, maxFee, maxPriorityFee *big.Int) (*eip1559.Fees, error) {
	var (
		fees *eip1559.Fees
		err  error
	)
	switch {
	case c.feesHook != nil:
		fees, err = c.feesHook.EstimateFeesPerGas(ctx)
	case c.feeEstimator != nil:
		fees, err = c.feeEstimator.EstimateFeesPerGas(ctx)
		if err == nil && fees != nil {
			fees = fees.Multiply(c.feeMultiplier)
		}
	default:
		return nil, ErrNoFeeSource
	}
	if err != nil {
		return nil, err
	}
	if fees == nil || fees.MaxFeePerGas == nil || fees.MaxPriorityFeePerGas == nil {
		return nil, errors.New("fee estimator returned incomplete fees")
	}

	out := &eip1559.Fees{
		MaxFeePerGas:         new(big.Int).Set(fees.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(fees.MaxPriorityFeePerGas),
	}
	if maxFee != nil {
		out.MaxFeePerGas = new(big.Int).Set(maxFee)
	}
	if maxPriorityFee != nil {
		out.MaxPriorityFeePerGas = new(big.Int).Set(maxPriorityFee)
	}
	return out, nil
}
