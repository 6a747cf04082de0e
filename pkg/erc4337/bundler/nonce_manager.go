package bundler

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// NonceKey identifies one nonce sequence: an account on a chain and one of
// its entry point nonce keys.
type NonceKey struct {
	ChainID *big.Int
	Address common.Address
	Key     *big.Int
}

func (k NonceKey) String() string {
	return fmt.Sprintf("%s:%s:%s", bigOrZero(k.ChainID), k.Address.Hex(), bigOrZero(k.Key))
}

// NonceSource reads the authoritative next nonce, normally the entry point.
type NonceSource interface {
	GetNonce(ctx context.Context, key NonceKey) (*big.Int, error)
}

type NonceSourceFunc func(ctx context.Context, key NonceKey) (*big.Int, error)

func (f NonceSourceFunc) GetNonce(ctx context.Context, key NonceKey) (*big.Int, error) {
	return f(ctx, key)
}

// nonceSlot is the state of one sequence. sem is a one slot semaphore held
// across the source round trip so concurrent callers queue up.
type nonceSlot struct {
	sem    chan struct{}
	base   *big.Int
	offset uint64
}

func (s *nonceSlot) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *nonceSlot) release() { <-s.sem }

func (s *nonceSlot) next() *big.Int {
	return new(big.Int).Add(s.base, new(big.Int).SetUint64(s.offset))
}

// NonceManager hands out nonces for operations submitted before the entry
// point reflects earlier ones. The baseline is read from the source on first
// use and trusted until Reset; every Consume returns baseline + offset and
// bumps the offset. State is in memory and process local.
type NonceManager struct {
	source NonceSource
	logger logger.Logger

	mu    sync.Mutex
	slots map[string]*nonceSlot
}

func NewNonceManager(source NonceSource, l logger.Logger) *NonceManager {
	return &NonceManager{
		source: source,
		logger: logger.EnsureLogger(l),
		slots:  make(map[string]*nonceSlot),
	}
}

func (nm *NonceManager) slot(key NonceKey) *nonceSlot {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	id := key.String()
	s, ok := nm.slots[id]
	if !ok {
		s = &nonceSlot{sem: make(chan struct{}, 1)}
		nm.slots[id] = s
	}
	return s
}

// load reads the baseline when missing. The caller holds the slot.
func (nm *NonceManager) load(ctx context.Context, key NonceKey, s *nonceSlot) error {
	if s.base != nil {
		return nil
	}
	base, err := nm.source.GetNonce(ctx, key)
	if err != nil {
		return err
	}
	if base == nil {
		return fmt.Errorf("nonce source returned no value for %s", key)
	}
	s.base = new(big.Int).Set(base)
	s.offset = 0
	nm.logger.Debug("loaded nonce baseline", "key", key.String(), "nonce", s.base)
	return nil
}

// Consume allocates the next nonce for key. Concurrent calls for the same key
// are serialized and receive consecutive values. A failing source consumes
// nothing.
func (nm *NonceManager) Consume(ctx context.Context, key NonceKey) (*big.Int, error) {
	s := nm.slot(key)
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if err := nm.load(ctx, key, s); err != nil {
		return nil, err
	}
	nonce := s.next()
	s.offset++
	nm.logger.Debug("allocated nonce", "key", key.String(), "nonce", nonce)
	return nonce, nil
}

// Get returns the nonce the next Consume would allocate without consuming it.
func (nm *NonceManager) Get(ctx context.Context, key NonceKey) (*big.Int, error) {
	s := nm.slot(key)
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if err := nm.load(ctx, key, s); err != nil {
		return nil, err
	}
	return s.next(), nil
}

// Resync re-reads the source and moves forward to it when the chain has
// caught up with or passed the local sequence. Pending local allocations are
// kept when the source is still behind.
func (nm *NonceManager) Resync(ctx context.Context, key NonceKey) (*big.Int, error) {
	s := nm.slot(key)
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	onChain, err := nm.source.GetNonce(ctx, key)
	if err != nil {
		return nil, err
	}
	if onChain == nil {
		return nil, fmt.Errorf("nonce source returned no value for %s", key)
	}
	if s.base == nil || onChain.Cmp(s.next()) >= 0 {
		s.base = new(big.Int).Set(onChain)
		s.offset = 0
		nm.logger.Debug("nonce resynced from source", "key", key.String(), "nonce", s.base)
	} else {
		nm.logger.Debug("nonce source behind local sequence",
			"key", key.String(), "source", onChain, "local", s.next())
	}
	return s.next(), nil
}

// Reset drops the baseline for key; the next call re-reads the source. Use
// it after a nonce rejection.
func (nm *NonceManager) Reset(key NonceKey) {
	s := nm.slot(key)
	s.sem <- struct{}{}
	defer s.release()

	s.base = nil
	s.offset = 0
	nm.logger.Debug("nonce baseline reset", "key", key.String())
}

func (nm *NonceManager) ResetAll() {
	nm.mu.Lock()
	keys := make([]string, 0, len(nm.slots))
	for id := range nm.slots {
		keys = append(keys, id)
	}
	nm.mu.Unlock()

	for _, id := range keys {
		nm.mu.Lock()
		s := nm.slots[id]
		nm.mu.Unlock()

		s.sem <- struct{}{}
		s.base = nil
		s.offset = 0
		s.release()
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
