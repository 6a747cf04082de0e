package schema

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Submitted user operations are stored under
// u:<chainId>:<id> -> JSON record, where id is a ULID so keys sort by time.
// h:<hash> -> u:<chainId>:<id> lets a receipt be matched to its record.
// c:sent:<chainId> counts submissions per chain.

func UserOpStorageKey(chainID *big.Int, id string) []byte {
	return []byte(fmt.Sprintf("u:%s:%s", chainID.String(), id))
}

func UserOpByChainStoragePrefix(chainID *big.Int) []byte {
	return []byte(fmt.Sprintf("u:%s:", chainID.String()))
}

func UserOpHashStorageKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("h:%s", hash.Hex()))
}

func SentCounterStorageKey(chainID *big.Int) []byte {
	return []byte(fmt.Sprintf("c:sent:%s", chainID.String()))
}
