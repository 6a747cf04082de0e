package eip1559

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

var (
	// DefaultMinTip keeps bundlers profitable on chains that suggest a near
	// zero tip.
	DefaultMinTip = big.NewInt(2_000_000_000)
	// DefaultMinMaxFee is the maxFeePerGas floor for high base fee chains like Base.
	DefaultMinMaxFee = big.NewInt(20_000_000_000)
)

// Fees is a fee pair for one operation.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeEstimator supplies fees per gas for the next operation.
type FeeEstimator interface {
	EstimateFeesPerGas(ctx context.Context) (*Fees, error)
}

// FeeEstimatorFunc adapts a function to FeeEstimator.
type FeeEstimatorFunc func(ctx context.Context) (*Fees, error)

func (f FeeEstimatorFunc) EstimateFeesPerGas(ctx context.Context) (*Fees, error) {
	return f(ctx)
}

// ChainReader is the part of ethclient.Client the chain estimator reads.
type ChainReader interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainFeeEstimator derives fees from the node's tip suggestion and the
// latest base fee.
type ChainFeeEstimator struct {
	Client    ChainReader
	MinTip    *big.Int
	MinMaxFee *big.Int
}

func NewChainFeeEstimator(client ChainReader) *ChainFeeEstimator {
	return &ChainFeeEstimator{Client: client, MinTip: DefaultMinTip, MinMaxFee: DefaultMinMaxFee}
}

func (e *ChainFeeEstimator) EstimateFeesPerGas(ctx context.Context) (*Fees, error) {
	maxFee, tip, err := SuggestFee(ctx, e.Client, e.MinTip, e.MinMaxFee)
	if err != nil {
		return nil, err
	}
	return &Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// SuggestFee returns maxFeePerGas and maxPriorityFeePerGas. nil floors are
// not applied.
func SuggestFee(ctx context.Context, client ChainReader, minTip, minMaxFee *big.Int) (*big.Int, *big.Int, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot suggest gas tip cap: %w", err)
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read latest header: %w", err)
	}

	// 13% buffer on the tip
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)
	if minTip != nil && maxPriorityFeePerGas.Cmp(minTip) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(minTip)
	}

	var maxFeePerGas *big.Int
	if header.BaseFee != nil {
		// 2x base fee survives a full block of base fee increases
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
			maxPriorityFeePerGas,
		)
		if minMaxFee != nil && maxFeePerGas.Cmp(minMaxFee) < 0 {
			maxFeePerGas = new(big.Int).Set(minMaxFee)
		}
	} else {
		// legacy chain
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

// Multiply scales both fees by factor, rounding up.
func (f *Fees) Multiply(factor float64) *Fees {
	m := decimal.NewFromFloat(factor)
	scale := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return decimal.NewFromBigInt(v, 0).Mul(m).Ceil().BigInt()
	}
	return &Fees{MaxFeePerGas: scale(f.MaxFeePerGas), MaxPriorityFeePerGas: scale(f.MaxPriorityFeePerGas)}
}

// FormatGwei renders wei as gwei with up to 9 decimals.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "<nil>"
	}
	return decimal.NewFromBigInt(wei, -9).String() + " gwei"
}
