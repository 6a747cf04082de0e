// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

var ErrEmptyHash = errors.New("bundler returned an empty user operation hash")

// BundlerClient defines a client for interacting with an EIP-4337 bundler RPC endpoint.
type BundlerClient struct {
	client *rpc.Client
	url    string
	logger logger.Logger
}

type Option func(*BundlerClient)

func WithLogger(l logger.Logger) Option {
	return func(bc *BundlerClient) { bc.logger = logger.EnsureLogger(l) }
}

// NewBundlerClient dials url. HTTP and WebSocket endpoints are both supported.
func NewBundlerClient(ctx context.Context, url string, opts ...Option) (*BundlerClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("Error creating bundler client: %w", err)
	}
	bc := NewBundlerClientFromRPC(c, opts...)
	bc.url = url
	return bc, nil
}

// NewBundlerClientFromRPC wraps an existing connection, such as an in
// process server.
func NewBundlerClientFromRPC(c *rpc.Client, opts ...Option) *BundlerClient {
	bc := &BundlerClient{client: c, logger: logger.NewNoOpLogger()}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Close closes the underlying RPC client connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

func (bc *BundlerClient) URL() string { return bc.url }

// EstimateUserOperationGas calls eth_estimateUserOperationGas with op in the
// request shape of ep. The signature must already be a stub of the right
// length. stateOverride is forwarded when not nil, with eth_call semantics.
// Failures are returned unchanged apart from classification; there are no
// retries.
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	ep entrypoint.EntryPoint,
	op *userop.UserOperation,
	stateOverride map[common.Address]any,
) (*GasEstimation, error) {
	req, err := op.ToRPC(ep.Version)
	if err != nil {
		return nil, err
	}

	args := []any{req, ep.Address.Hex()}
	if stateOverride != nil {
		args = append(args, stateOverride)
	}

	bc.logger.Debug("estimating user operation gas",
		"entrypoint", ep.Address.Hex(),
		"version", ep.Version,
		"sender", addressOrEmpty(req.Sender),
		"nonce", req.Nonce)

	var result rpcGasEstimation
	if err := bc.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", args...); err != nil {
		bc.logger.Debug("eth_estimateUserOperationGas failed", "error", err)
		return nil, NewBundlerError(err)
	}
	estimation, err := result.normalize()
	if err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}

	bc.logger.Debug("estimated user operation gas",
		"callGasLimit", estimation.CallGasLimit,
		"verificationGasLimit", estimation.VerificationGasLimit,
		"preVerificationGas", estimation.PreVerificationGas)
	return estimation, nil
}

// SendUserOperation submits a signed operation with exactly one
// eth_sendUserOperation call and returns the hash the bundler reports.
func (bc *BundlerClient) SendUserOperation(
	ctx context.Context,
	ep entrypoint.EntryPoint,
	op *userop.UserOperation,
) (common.Hash, error) {
	req, err := op.ToRPC(ep.Version)
	if err != nil {
		return common.Hash{}, err
	}

	bc.logger.Debug("sending user operation",
		"entrypoint", ep.Address.Hex(),
		"sender", addressOrEmpty(req.Sender),
		"nonce", req.Nonce)

	var hash common.Hash
	if err := bc.client.CallContext(ctx, &hash, "eth_sendUserOperation", req, ep.Address.Hex()); err != nil {
		bc.logger.Info("eth_sendUserOperation rejected", "error", err)
		return common.Hash{}, NewBundlerError(err)
	}
	if hash == (common.Hash{}) {
		return common.Hash{}, ErrEmptyHash
	}
	return hash, nil
}

// GetUserOperationReceipt returns nil without error while the operation is
// not yet included.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, NewBundlerError(err)
	}
	return receipt, nil
}

// GetUserOperationByHash returns nil without error for an unknown hash.
func (bc *BundlerClient) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperationByHash, error) {
	var result *UserOperationByHash
	if err := bc.client.CallContext(ctx, &result, "eth_getUserOperationByHash", hash); err != nil {
		return nil, NewBundlerError(err)
	}
	return result, nil
}

func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var addresses []common.Address
	if err := bc.client.CallContext(ctx, &addresses, "eth_supportedEntryPoints"); err != nil {
		return nil, NewBundlerError(err)
	}
	return addresses, nil
}

func (bc *BundlerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := bc.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, NewBundlerError(err)
	}
	return (*big.Int)(&id), nil
}

func addressOrEmpty(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}
