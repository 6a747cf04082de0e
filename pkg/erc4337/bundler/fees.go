package bundler

import (
	"context"
	"fmt"

	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
)

// FeeTier selects one of the price levels a bundler quotes.
type FeeTier string

const (
	FeeTierSlow     FeeTier = "slow"
	FeeTierStandard FeeTier = "standard"
	FeeTierFast     FeeTier = "fast"

	DefaultGasPriceMethod = "pimlico_getUserOperationGasPrice"
)

type tieredGasPrice struct {
	MaxFeePerGas         *Quantity `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *Quantity `json:"maxPriorityFeePerGas"`
}

// GasPriceFeeEstimator reads fees from the bundler's own gas price method,
// which accounts for the bundler's inclusion policy better than the node.
type GasPriceFeeEstimator struct {
	bundler *BundlerClient
	method  string
	tier    FeeTier
}

// NewGasPriceFeeEstimator builds an estimator calling method (default
// pimlico_getUserOperationGasPrice) and picking tier (default fast).
func NewGasPriceFeeEstimator(bc *BundlerClient, method string, tier FeeTier) *GasPriceFeeEstimator {
	if method == "" {
		method = DefaultGasPriceMethod
	}
	if tier == "" {
		tier = FeeTierFast
	}
	return &GasPriceFeeEstimator{bundler: bc, method: method, tier: tier}
}

func (e *GasPriceFeeEstimator) EstimateFeesPerGas(ctx context.Context) (*eip1559.Fees, error) {
	var result map[FeeTier]tieredGasPrice
	if err := e.bundler.client.CallContext(ctx, &result, e.method); err != nil {
		return nil, NewBundlerError(err)
	}
	price, ok := result[e.tier]
	if !ok || price.MaxFeePerGas == nil || price.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("%s: no %s tier in response", e.method, e.tier)
	}
	return &eip1559.Fees{
		MaxFeePerGas:         price.MaxFeePerGas.BigInt(),
		MaxPriorityFeePerGas: price.MaxPriorityFeePerGas.BigInt(),
	}, nil
}
