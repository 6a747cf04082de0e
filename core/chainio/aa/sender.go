package aa

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru"
)

const DefaultSenderCacheSize = 256

// SenderResolver derives counterfactual account addresses by calling the
// factory getAddress view. The result only depends on factory and arguments
// so it is cached for the lifetime of the resolver.
type SenderResolver struct {
	conn  ChainReader
	cache *lru.Cache
}

func NewSenderResolver(conn ChainReader, size int) *SenderResolver {
	if size <= 0 {
		size = DefaultSenderCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		panic(fmt.Errorf("failed to create sender cache: %w, size: %d", err, size))
	}
	return &SenderResolver{conn: conn, cache: cache}
}

// GetSenderAddress returns factory.getAddress(args...).
func (r *SenderResolver) GetSenderAddress(ctx context.Context, factory common.Address, factoryABI abi.ABI, args ...any) (common.Address, error) {
	input, err := factoryABI.Pack("getAddress", args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getAddress: %w", err)
	}
	key := factory.Hex() + ":" + hexutil.Encode(input)
	if v, ok := r.cache.Get(key); ok {
		return v.(common.Address), nil
	}

	var sender common.Address
	if err := callView(ctx, r.conn, factory, factoryABI, &sender, "getAddress", args...); err != nil {
		return common.Address{}, fmt.Errorf("cannot determine smart wallet address: %w", err)
	}
	if sender == (common.Address{}) {
		return common.Address{}, fmt.Errorf("factory %s returned the zero address", factory.Hex())
	}
	r.cache.Add(key, sender)
	return sender, nil
}

func (r *SenderResolver) Len() int {
	return r.cache.Len()
}
