package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers one contract view call. args are the unpacked inputs,
// the returned values are packed with the method outputs.
type CallHandler func(args []any) ([]any, error)

type callRoute struct {
	method  abi.Method
	handler CallHandler
}

// FakeChain is an in memory ChainReader. Contract calls are routed by
// (to, selector) and code is served from a map.
type FakeChain struct {
	mu     sync.Mutex
	code   map[common.Address][]byte
	routes map[common.Address]map[[4]byte]callRoute

	codeAtCalls map[common.Address]int
	callCount   int

	TipCap  *big.Int
	BaseFee *big.Int
	ChainID *big.Int

	// CodeAtErr, when set, is returned by every CodeAt call.
	CodeAtErr error
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		code:        map[common.Address][]byte{},
		routes:      map[common.Address]map[[4]byte]callRoute{},
		codeAtCalls: map[common.Address]int{},
		TipCap:      big.NewInt(1_000_000_000),
		BaseFee:     big.NewInt(10_000_000_000),
		ChainID:     big.NewInt(11155111),
	}
}

func (c *FakeChain) SetCode(address common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[address] = code
}

// Handle routes calls of method on contract to handler.
func (c *FakeChain) Handle(contract common.Address, contractABI abi.ABI, method string, handler CallHandler) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("testutil: method %s not in abi", method))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.routes[contract] == nil {
		c.routes[contract] = map[[4]byte]callRoute{}
	}
	var selector [4]byte
	copy(selector[:], m.ID)
	c.routes[contract][selector] = callRoute{method: m, handler: handler}
}

func (c *FakeChain) CodeAtCalls(address common.Address) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeAtCalls[address]
}

func (c *FakeChain) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callCount
}

func (c *FakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeAtCalls[account]++
	if c.CodeAtErr != nil {
		return nil, c.CodeAtErr
	}
	return c.code[account], nil
}

func (c *FakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("testutil: malformed call")
	}
	var selector [4]byte
	copy(selector[:], call.Data[:4])

	c.mu.Lock()
	c.callCount++
	route, ok := c.routes[*call.To][selector]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("testutil: no handler for %s selector %x", call.To.Hex(), selector)
	}

	args, err := route.method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := route.handler(args)
	if err != nil {
		return nil, err
	}
	return route.method.Outputs.Pack(out...)
}

func (c *FakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.TipCap), nil
}

// HeaderByNumber returns a header carrying BaseFee. A nil BaseFee simulates
// a legacy chain.
func (c *FakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(1)}
	if c.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(c.BaseFee)
	}
	return h, nil
}
