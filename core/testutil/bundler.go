package testutil

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

// RPCError is returned by fake handlers to produce a JSON-RPC error with a
// specific code.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }
func (e *RPCError) ErrorData() any { return e.Data }

// FakeBundler serves the ERC-4337 bundler methods in process. Behavior is
// customised through the function fields; the zero value answers with fixed
// estimates.
type FakeBundler struct {
	mu sync.Mutex

	EstimateFn func(op userop.RPCUserOperation, entryPoint common.Address) (map[string]any, error)
	SendFn     func(op userop.RPCUserOperation, entryPoint common.Address) (common.Hash, error)
	ReceiptFn  func(hash common.Hash) (map[string]any, error)
	GasPrice   map[string]any

	EntryPoints []common.Address
	Chain       *big.Int

	estimates []userop.RPCUserOperation
	sent      []userop.RPCUserOperation
}

func (b *FakeBundler) rpcServer() *rpc.Server {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeEthAPI{b: b}); err != nil {
		panic(err)
	}
	if err := server.RegisterName("pimlico", &fakePimlicoAPI{b: b}); err != nil {
		panic(err)
	}
	return server
}

// Dial starts an in process RPC server for the fake.
func (b *FakeBundler) Dial() *rpc.Client {
	return rpc.DialInProc(b.rpcServer())
}

// Serve exposes the fake over HTTP and returns its URL. The server is shut
// down when the test ends.
func (b *FakeBundler) Serve(t testing.TB) string {
	srv := httptest.NewServer(b.rpcServer())
	t.Cleanup(srv.Close)
	return srv.URL
}

func (b *FakeBundler) Estimates() []userop.RPCUserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]userop.RPCUserOperation{}, b.estimates...)
}

func (b *FakeBundler) Sent() []userop.RPCUserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]userop.RPCUserOperation{}, b.sent...)
}

type fakeEthAPI struct {
	b *FakeBundler
}

func (api *fakeEthAPI) EstimateUserOperationGas(op userop.RPCUserOperation, entryPoint common.Address, stateOverride *json.RawMessage) (map[string]any, error) {
	api.b.mu.Lock()
	api.b.estimates = append(api.b.estimates, op)
	fn := api.b.EstimateFn
	api.b.mu.Unlock()

	if fn != nil {
		return fn(op, entryPoint)
	}
	return map[string]any{
		"callGasLimit":         "0x13880",
		"verificationGasLimit": "0x186a0",
		"preVerificationGas":   "0xc350",
	}, nil
}

func (api *fakeEthAPI) SendUserOperation(op userop.RPCUserOperation, entryPoint common.Address) (common.Hash, error) {
	api.b.mu.Lock()
	api.b.sent = append(api.b.sent, op)
	fn := api.b.SendFn
	api.b.mu.Unlock()

	if fn != nil {
		return fn(op, entryPoint)
	}
	return common.HexToHash("0x01"), nil
}

func (api *fakeEthAPI) GetUserOperationReceipt(hash common.Hash) (map[string]any, error) {
	api.b.mu.Lock()
	fn := api.b.ReceiptFn
	api.b.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(hash)
}

func (api *fakeEthAPI) GetUserOperationByHash(hash common.Hash) (map[string]any, error) {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	if len(api.b.sent) == 0 {
		return nil, nil
	}
	return map[string]any{
		"userOperation": api.b.sent[len(api.b.sent)-1],
		"entryPoint":    common.Address{},
	}, nil
}

func (api *fakeEthAPI) SupportedEntryPoints() ([]common.Address, error) {
	return api.b.EntryPoints, nil
}

func (api *fakeEthAPI) ChainId() (*hexutil.Big, error) {
	if api.b.Chain == nil {
		return nil, errors.New("chain id not configured")
	}
	return (*hexutil.Big)(api.b.Chain), nil
}

type fakePimlicoAPI struct {
	b *FakeBundler
}

func (api *fakePimlicoAPI) GetUserOperationGasPrice() (map[string]any, error) {
	if api.b.GasPrice == nil {
		return nil, &RPCError{Code: -32601, Message: "method not supported"}
	}
	return api.b.GasPrice, nil
}
