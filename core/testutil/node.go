package testutil

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Serve exposes the fake chain as a JSON-RPC node over HTTP and returns its
// URL. It answers the handful of methods the account and fee estimators use.
func (c *FakeChain) Serve(t testing.TB) string {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeNodeAPI{c: c}); err != nil {
		t.Fatalf("testutil: cannot register node api: %v", err)
	}
	if err := server.RegisterName("web3", &fakeWeb3API{}); err != nil {
		t.Fatalf("testutil: cannot register web3 api: %v", err)
	}
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		server.Stop()
	})
	return srv.URL
}

type fakeNodeAPI struct {
	c *FakeChain
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (api *fakeNodeAPI) ChainId() (*hexutil.Big, error) {
	if api.c.ChainID == nil {
		return nil, errors.New("chain id not configured")
	}
	return (*hexutil.Big)(api.c.ChainID), nil
}

func (api *fakeNodeAPI) GetCode(ctx context.Context, address common.Address, block string) (hexutil.Bytes, error) {
	return api.c.CodeAt(ctx, address, nil)
}

func (api *fakeNodeAPI) Call(ctx context.Context, args callArgs, block string) (hexutil.Bytes, error) {
	msg := ethereum.CallMsg{To: args.To}
	switch {
	case args.Input != nil:
		msg.Data = *args.Input
	case args.Data != nil:
		msg.Data = *args.Data
	}
	if args.From != nil {
		msg.From = *args.From
	}
	return api.c.CallContract(ctx, msg, nil)
}

func (api *fakeNodeAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	tip, err := api.c.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(tip), nil
}

func (api *fakeNodeAPI) GetBlockByNumber(ctx context.Context, block string, full bool) (*types.Header, error) {
	h, err := api.c.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	h.Difficulty = new(big.Int)
	h.GasLimit = 30_000_000
	return h, nil
}

type fakeWeb3API struct{}

func (fakeWeb3API) ClientVersion() string { return "FakeChain/v0.0.0" }
