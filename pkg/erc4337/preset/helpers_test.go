package preset

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/core/chainio/signer"
	"github.com/AvaProtocol/ap-userop/core/testutil"
	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

const ownerKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	chainID        = big.NewInt(11155111)
	simpleSender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	coinbaseSender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient      = common.HexToAddress("0xd73bab8f06db28c87932571f87d0d2c0fdf13d94")
	token          = common.HexToAddress("0xfba3912ca04dd458c843e2ee08967fc04f3579c2")

	gwei = big.NewInt(1_000_000_000)
)

func gweis(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), gwei) }

// env is a fake chain and bundler pair. The chain answers factory getAddress
// for both account kinds and entry point getNonce with nonceBase + key.
type env struct {
	chain   *testutil.FakeChain
	bundler *testutil.FakeBundler

	nonceBase  atomic.Int64
	nonceReads atomic.Int32
}

func newEnv(t *testing.T) *env {
	e := &env{chain: testutil.NewFakeChain(), bundler: &testutil.FakeBundler{}}
	e.nonceBase.Store(7)

	simpleFactory, err := abi.JSON(strings.NewReader(aa.SimpleAccountFactoryABI))
	require.NoError(t, err)
	coinbaseFactory, err := abi.JSON(strings.NewReader(aa.CoinbaseSmartWalletFactoryABI))
	require.NoError(t, err)

	for _, f := range []common.Address{aa.SimpleAccountFactoryV06, aa.SimpleAccountFactoryV07} {
		e.chain.Handle(f, simpleFactory, "getAddress", func(args []any) ([]any, error) {
			return []any{simpleSender}, nil
		})
	}
	e.chain.Handle(aa.CoinbaseSmartWalletFactoryV1, coinbaseFactory, "getAddress", func(args []any) ([]any, error) {
		return []any{coinbaseSender}, nil
	})
	for _, v := range []entrypoint.Version{entrypoint.V06, entrypoint.V07} {
		ep := entrypoint.MustGet(v)
		e.chain.Handle(ep.Address, ep.ABI, "getNonce", func(args []any) ([]any, error) {
			e.nonceReads.Add(1)
			key := args[1].(*big.Int)
			return []any{new(big.Int).Add(big.NewInt(e.nonceBase.Load()), key)}, nil
		})
	}
	return e
}

// estimateByCalls makes the fake bundler answer like a node would: a value
// transfer costs 80000 and every further call 45000 more, deployment raises
// verification gas.
func (e *env) estimateByCalls(t *testing.T, acc *account.Account) {
	e.bundler.EstimateFn = func(rpcOp userop.RPCUserOperation, _ common.Address) (map[string]any, error) {
		op := userop.FromRPC(&rpcOp)
		calls, err := acc.DecodeCalls(op.CallData)
		if err != nil {
			return nil, &testutil.RPCError{Code: -32602, Message: err.Error()}
		}
		callGas := uint64(80_000 + 45_000*(len(calls)-1))
		verification := uint64(100_000)
		if op.Factory != nil || len(op.InitCode) > 0 {
			verification = 400_000
		}
		out := map[string]any{
			"callGasLimit":         hexutil.EncodeUint64(callGas),
			"verificationGasLimit": hexutil.EncodeUint64(verification),
			"preVerificationGas":   hexutil.EncodeUint64(50_000),
		}
		if op.Paymaster != nil {
			out["paymasterVerificationGasLimit"] = hexutil.EncodeUint64(30_000)
			out["paymasterPostOpGasLimit"] = hexutil.EncodeUint64(10_000)
		}
		return out, nil
	}
}

func (e *env) bundlerClient(t *testing.T) *bundler.BundlerClient {
	bc := bundler.NewBundlerClientFromRPC(e.bundler.Dial())
	t.Cleanup(bc.Close)
	return bc
}

func (e *env) simpleAccount(t *testing.T, version entrypoint.Version, hooks account.Hooks) *account.Account {
	owner, err := signer.FromPrivateKeyHex(ownerKeyHex)
	require.NoError(t, err)
	acc, err := account.NewSimpleAccount(account.SimpleAccountConfig{
		Client:  e.chain,
		ChainID: chainID,
		Version: version,
		Owner:   owner,
		Hooks:   hooks,
	})
	require.NoError(t, err)
	return acc
}

// client wires acc as the default account, the bundler estimate and the
// chain fee estimator.
func (e *env) client(t *testing.T, acc *account.Account, mutate func(*Options)) *Client {
	e.estimateByCalls(t, acc)
	opts := Options{
		Bundler:             e.bundlerClient(t),
		Account:             acc,
		FeeEstimator:        eip1559.NewChainFeeEstimator(e.chain),
		ReceiptPollInterval: 5 * time.Millisecond,
		ReceiptMaxInterval:  20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func transfer() []account.Call {
	return []account.Call{{To: recipient, Value: big.NewInt(1)}}
}

// fakeSponsor hands out fixed sponsorships and logs every call to events.
type fakeSponsor struct {
	mu     sync.Mutex
	events *[]string

	stub  *paymaster.Sponsorship
	final *paymaster.Sponsorship
	err   error

	requests []paymaster.Request
}

func (s *fakeSponsor) log(event string, req paymaster.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		*s.events = append(*s.events, event)
	}
	s.requests = append(s.requests, req)
}

func (s *fakeSponsor) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeSponsor) GetPaymasterStubData(ctx context.Context, req paymaster.Request) (*paymaster.Sponsorship, error) {
	s.log("stub", req)
	if s.err != nil {
		return nil, s.err
	}
	return s.stub, nil
}

func (s *fakeSponsor) GetPaymasterData(ctx context.Context, req paymaster.Request) (*paymaster.Sponsorship, error) {
	s.log("final", req)
	if s.err != nil {
		return nil, s.err
	}
	return s.final, nil
}
