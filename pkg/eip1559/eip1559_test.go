package eip1559

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	tip     *big.Int
	baseFee *big.Int
	err     error
}

func (n *node) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if n.err != nil {
		return nil, n.err
	}
	return n.tip, nil
}

func (n *node) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: n.baseFee}, nil
}

func gwei(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000))
}

func TestSuggestFeeEIP1559(t *testing.T) {
	e := NewChainFeeEstimator(&node{tip: gwei(10), baseFee: gwei(30)})

	fees, err := e.EstimateFeesPerGas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11300000000", fees.MaxPriorityFeePerGas.String())
	// 2*30 + 11.3
	assert.Equal(t, "71300000000", fees.MaxFeePerGas.String())
}

func TestSuggestFeeFloors(t *testing.T) {
	e := NewChainFeeEstimator(&node{tip: big.NewInt(1), baseFee: big.NewInt(7)})

	fees, err := e.EstimateFeesPerGas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMinTip.String(), fees.MaxPriorityFeePerGas.String())
	assert.Equal(t, DefaultMinMaxFee.String(), fees.MaxFeePerGas.String())

	// the floors are copies
	fees.MaxFeePerGas.SetInt64(0)
	assert.Equal(t, "20000000000", DefaultMinMaxFee.String())
}

func TestSuggestFeeLegacyChain(t *testing.T) {
	e := &ChainFeeEstimator{Client: &node{tip: gwei(5)}}

	fees, err := e.EstimateFeesPerGas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5650000000", fees.MaxPriorityFeePerGas.String())
	assert.Equal(t, fees.MaxPriorityFeePerGas.String(), fees.MaxFeePerGas.String())
}

func TestSuggestFeeError(t *testing.T) {
	e := NewChainFeeEstimator(&node{err: errors.New("boom")})
	_, err := e.EstimateFeesPerGas(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestMultiply(t *testing.T) {
	fees := (&Fees{MaxFeePerGas: big.NewInt(101), MaxPriorityFeePerGas: big.NewInt(3)}).Multiply(1.5)
	assert.Equal(t, int64(152), fees.MaxFeePerGas.Int64())
	assert.Equal(t, int64(5), fees.MaxPriorityFeePerGas.Int64())

	fees = (&Fees{MaxFeePerGas: big.NewInt(10)}).Multiply(2)
	assert.Equal(t, int64(20), fees.MaxFeePerGas.Int64())
	assert.Nil(t, fees.MaxPriorityFeePerGas)
}

func TestFormatGwei(t *testing.T) {
	assert.Equal(t, "1.5 gwei", FormatGwei(big.NewInt(1_500_000_000)))
	assert.Equal(t, "0.000000001 gwei", FormatGwei(big.NewInt(1)))
	assert.Equal(t, "<nil>", FormatGwei(nil))
}
