package userop

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
)

var fixtureAddress = common.HexToAddress("0x1234567890123456789012345678901234567890")

func baseFixture() *UserOperation {
	sender := fixtureAddress
	return &UserOperation{
		Sender:               &sender,
		Nonce:                big.NewInt(0),
		CallData:             []byte{},
		CallGasLimit:         big.NewInt(6942069),
		VerificationGasLimit: big.NewInt(6942069),
		PreVerificationGas:   big.NewInt(6942069),
		MaxFeePerGas:         big.NewInt(69420),
		MaxPriorityFeePerGas: big.NewInt(69),
		Signature:            []byte{},
	}
}

func TestHashV07(t *testing.T) {
	ep := entrypoint.MustGet(entrypoint.V07).WithAddress(fixtureAddress)
	chainID := big.NewInt(1)

	tests := []struct {
		name   string
		mutate func(op *UserOperation)
		want   string
	}{
		{"default", func(op *UserOperation) {}, "0x1903d62bb5dc75af6fed866aa46d8e80063d9e288aa7f2caad0ff1fcae22e40d"},
		{"factory", func(op *UserOperation) {
			f := fixtureAddress
			op.Factory = &f
			op.FactoryData = common.FromHex("0xdeadbeef")
		}, "0x46c1d51e831d50c1a93135f026a7d3f1921ed66e9c81da723dd3817a49f01bc1"},
		{"paymaster", func(op *UserOperation) {
			p := fixtureAddress
			op.Paymaster = &p
		}, "0x1f2cf8638ead0fc621c6fb1562b8222c06539efcec09be156191f72418ebb109"},
		{"paymaster gas", func(op *UserOperation) {
			p := fixtureAddress
			op.Paymaster = &p
			op.PaymasterVerificationGasLimit = big.NewInt(6942069)
			op.PaymasterPostOpGasLimit = big.NewInt(6942069)
		}, "0xd6efc63c28df53b49dd6fa10cec0a92ac61f8c70e9a45265e39c955f9bf821ed"},
		{"paymaster data", func(op *UserOperation) {
			p := fixtureAddress
			op.Paymaster = &p
			op.PaymasterVerificationGasLimit = big.NewInt(6942069)
			op.PaymasterPostOpGasLimit = big.NewInt(6942069)
			op.PaymasterData = common.FromHex("0xdeadbeef")
		}, "0x265fc1350b3fc016d493f9533354cf1a758c0fb9ddbbfd8b19c987d4e8935eed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := baseFixture()
			tt.mutate(op)
			h, err := op.Hash(ep, chainID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Hex())
		})
	}
}

func TestHashV06(t *testing.T) {
	ep := entrypoint.MustGet(entrypoint.V06).WithAddress(fixtureAddress)
	chainID := big.NewInt(1)

	op := baseFixture()
	h, err := op.Hash(ep, chainID)
	require.NoError(t, err)
	assert.Equal(t, "0xe331591ab320e956b5e93f04e1dcf706bc128bc7b510602d2e0553f8be25fcba", h.Hex())

	op.InitCode = common.FromHex("0x1234567890123456789012345678901234567890deadbeef")
	h, err = op.Hash(ep, chainID)
	require.NoError(t, err)
	assert.Equal(t, "0xaa4a4fa863b3018e0e23291ca82a8747d06c6a92548eb9198f54f4a63540d06e", h.Hex())

	op = baseFixture()
	op.PaymasterAndData = fixtureAddress.Bytes()
	h, err = op.Hash(ep, chainID)
	require.NoError(t, err)
	assert.Equal(t, "0x72bb2d82af9e9da2079fab165bc219c967c6ca0a63dfa55f382c5914ba2f77c5", h.Hex())
}

func TestSignatureDoesNotAffectHash(t *testing.T) {
	ep := entrypoint.MustGet(entrypoint.V07)
	op := baseFixture()
	h1, err := op.Hash(ep, big.NewInt(11155111))
	require.NoError(t, err)
	op.Signature = common.FromHex("0xdeadbeef")
	h2, err := op.Hash(ep, big.NewInt(11155111))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestValidateExclusivity(t *testing.T) {
	f := fixtureAddress

	op := baseFixture()
	op.Factory = &f
	op.FactoryData = []byte{0x01}
	assert.NoError(t, op.Validate(entrypoint.V07))
	err := op.Validate(entrypoint.V06)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.Contains(t, err.Error(), "factory")

	op = baseFixture()
	op.InitCode = []byte{}
	assert.NoError(t, op.Validate(entrypoint.V06))
	assert.ErrorIs(t, op.Validate(entrypoint.V07), ErrVersionMismatch)

	_, err = op.ToRPC(entrypoint.V07)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestToRPCV06(t *testing.T) {
	op := baseFixture()
	op.InitCode = []byte{}
	op.PaymasterAndData = []byte{}

	r, err := op.ToRPC(entrypoint.V06)
	require.NoError(t, err)
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x", fields["initCode"])
	assert.Equal(t, "0x", fields["paymasterAndData"])
	assert.Equal(t, "0x69ed75", fields["callGasLimit"])
	assert.Equal(t, "0x0", fields["nonce"])
	assert.NotContains(t, fields, "factory")
	assert.NotContains(t, fields, "paymaster")
}

func TestToRPCV07OmitsUndefined(t *testing.T) {
	sender := fixtureAddress
	op := &UserOperation{Sender: &sender, Nonce: big.NewInt(5), CallData: []byte{0xab}}

	r, err := op.ToRPC(entrypoint.V07)
	require.NoError(t, err)
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Len(t, fields, 3)
	assert.Equal(t, "0x5", fields["nonce"])
	assert.Equal(t, "0xab", fields["callData"])

	back := FromRPC(r)
	assert.Equal(t, op.Nonce, back.Nonce)
	assert.Equal(t, op.CallData, back.CallData)
	assert.Nil(t, back.CallGasLimit)
	assert.Nil(t, back.Factory)
}

func TestPackV07(t *testing.T) {
	op := baseFixture()
	p := fixtureAddress
	op.Paymaster = &p
	op.PaymasterVerificationGasLimit = big.NewInt(100)
	op.PaymasterPostOpGasLimit = big.NewInt(200)
	op.PaymasterData = []byte{0xde, 0xad}

	packed, err := op.PackV07()
	require.NoError(t, err)

	verif, call := entrypoint.UnpackUint128Pair(packed.AccountGasLimits)
	assert.Equal(t, op.VerificationGasLimit, verif)
	assert.Equal(t, op.CallGasLimit, call)

	prio, max := entrypoint.UnpackUint128Pair(packed.GasFees)
	assert.Equal(t, op.MaxPriorityFeePerGas, prio)
	assert.Equal(t, op.MaxFeePerGas, max)

	require.Len(t, packed.PaymasterAndData, 20+32+2)
	assert.Equal(t, fixtureAddress.Bytes(), packed.PaymasterAndData[:20])
	assert.Equal(t, int64(100), new(big.Int).SetBytes(packed.PaymasterAndData[20:36]).Int64())
	assert.Equal(t, int64(200), new(big.Int).SetBytes(packed.PaymasterAndData[36:52]).Int64())
	assert.Empty(t, packed.InitCode)
}

func TestHandleOpsCallData(t *testing.T) {
	for _, v := range []entrypoint.Version{entrypoint.V06, entrypoint.V07} {
		ep := entrypoint.MustGet(v)
		data, err := HandleOpsCallData(ep, []*UserOperation{baseFixture(), baseFixture()}, fixtureAddress)
		require.NoError(t, err)
		assert.Equal(t, ep.ABI.Methods["handleOps"].ID, data[:4])
	}
}

func TestClone(t *testing.T) {
	op := baseFixture()
	c := op.Clone()
	c.Nonce.SetInt64(9)
	c.Sender[0] = 0xff
	assert.Equal(t, int64(0), op.Nonce.Int64())
	assert.Equal(t, fixtureAddress, *op.Sender)
}
