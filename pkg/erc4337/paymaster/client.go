package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

const DefaultTimeout = 30 * time.Second

// JSON-RPC request structure for the paymaster service
type JSONRPCRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Id      string `json:"id"`
}

// JSON-RPC response structure
type JSONRPCResponse struct {
	Jsonrpc string         `json:"jsonrpc"`
	Id      string         `json:"id"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *RPCError      `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error returned by the paymaster. It satisfies the
// go-ethereum rpc.Error and rpc.DataError interfaces.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("paymaster RPC error: %s (code: %d)", e.Message, e.Code)
}

func (e *RPCError) ErrorCode() int         { return e.Code }
func (e *RPCError) ErrorData() interface{} { return e.Data }

// Client calls an ERC-7677 paymaster service over HTTP.
type Client struct {
	httpClient *resty.Client
	url        string
	logger     logger.Logger
}

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = logger.EnsureLogger(l) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.SetTimeout(d) }
}

// WithHeader sets a header on every request, typically an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.httpClient.SetHeader(key, value) }
}

func NewClient(url string, opts ...Option) *Client {
	client := resty.New()
	client.SetTimeout(DefaultTimeout)
	client.SetHeader("Content-Type", "application/json")

	c := &Client{
		httpClient: client,
		url:        url,
		logger:     logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string { return c.url }

// GetPaymasterStubData calls pm_getPaymasterStubData.
func (c *Client) GetPaymasterStubData(ctx context.Context, req Request) (*Sponsorship, error) {
	return c.call(ctx, "pm_getPaymasterStubData", req)
}

// GetPaymasterData calls pm_getPaymasterData. IsFinal only has a meaning
// for stub data and is cleared.
func (c *Client) GetPaymasterData(ctx context.Context, req Request) (*Sponsorship, error) {
	s, err := c.call(ctx, "pm_getPaymasterData", req)
	if err != nil {
		return nil, err
	}
	s.IsFinal = false
	return s, nil
}

func (c *Client) call(ctx context.Context, method string, req Request) (*Sponsorship, error) {
	if req.UserOperation == nil {
		return nil, fmt.Errorf("%s: user operation is required", method)
	}
	if req.ChainID == nil {
		return nil, fmt.Errorf("%s: chain id is required", method)
	}
	op, err := req.UserOperation.ToRPC(req.EntryPoint.Version)
	if err != nil {
		return nil, err
	}

	rpcRequest := JSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params: []any{
			op,
			req.EntryPoint.Address.Hex(),
			hexutil.EncodeBig(req.ChainID),
			req.Context,
		},
		Id: ulid.Make().String(),
	}

	c.logger.Debug("calling paymaster",
		"method", method,
		"id", rpcRequest.Id,
		"entrypoint", req.EntryPoint.Address.Hex())

	var response JSONRPCResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(rpcRequest).
		SetResult(&response).
		SetError(&response).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("paymaster %s call failed: %w", method, err)
	}
	if resp.IsError() && response.Error == nil {
		return nil, fmt.Errorf("paymaster %s: unexpected HTTP status %d", method, resp.StatusCode())
	}
	if response.Error != nil {
		c.logger.Warn("paymaster rejected request",
			"method", method,
			"code", response.Error.Code,
			"message", response.Error.Message)
		return nil, response.Error
	}
	if response.Id != rpcRequest.Id {
		return nil, fmt.Errorf("paymaster %s: response id %q does not match request %q", method, response.Id, rpcRequest.Id)
	}
	if response.Result == nil {
		return nil, fmt.Errorf("%w: empty %s result", ErrMalformedPaymaster, method)
	}

	s, err := decodeSponsorship(response.Result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if err := s.Validate(req.EntryPoint.Version); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	bigIntPtrType = reflect.TypeOf((*big.Int)(nil))
	addressType   = reflect.TypeOf(common.Address{})
	bytesType     = reflect.TypeOf([]byte(nil))
)

// hexHook turns the JSON-RPC hex strings into the Go types of Sponsorship.
func hexHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case bigIntPtrType:
		switch v := data.(type) {
		case string:
			return parseQuantity(v)
		case float64:
			n, _ := new(big.Float).SetFloat64(v).Int(nil)
			return n, nil
		}
	case addressType:
		if s, ok := data.(string); ok {
			if !common.IsHexAddress(s) {
				return nil, fmt.Errorf("%w: %q is not an address", ErrMalformedPaymaster, s)
			}
			return common.HexToAddress(s), nil
		}
	case bytesType:
		if s, ok := data.(string); ok {
			b, err := hexutil.Decode(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPaymaster, err)
			}
			return b, nil
		}
	}
	return data, nil
}

func parseQuantity(s string) (*big.Int, error) {
	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid quantity %q", ErrMalformedPaymaster, s)
	}
	return v, nil
}

func decodeSponsorship(result map[string]any) (*Sponsorship, error) {
	var s Sponsorship
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncType(hexHook),
		Result:     &s,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPaymaster, err)
	}
	return &s, nil
}
