package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/ap-userop/storage/schema"
)

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusIncluded SubmissionStatus = "included"
	StatusReverted SubmissionStatus = "reverted"
)

// Submission is the journal record of one user operation accepted by a
// bundler.
type Submission struct {
	ID          string           `json:"id"`
	Hash        common.Hash      `json:"hash"`
	ChainID     *big.Int         `json:"chainId"`
	EntryPoint  common.Address   `json:"entryPoint"`
	Version     string           `json:"version"`
	Sender      common.Address   `json:"sender"`
	Nonce       *big.Int         `json:"nonce"`
	SubmittedAt int64            `json:"submittedAt"`
	Status      SubmissionStatus `json:"status"`

	TransactionHash *common.Hash `json:"transactionHash,omitempty"`
}

// Journal keeps a local history of submitted user operations on top of a
// Storage.
type Journal struct {
	db  Storage
	now func() time.Time
}

func NewJournal(db Storage) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores sub as pending and fills its ID and SubmittedAt.
func (j *Journal) Record(sub *Submission) error {
	if sub.ChainID == nil {
		return errors.New("journal: chain id is required")
	}
	if sub.Hash == (common.Hash{}) {
		return errors.New("journal: user operation hash is required")
	}

	exists, err := j.db.Exist(schema.UserOpHashStorageKey(sub.Hash))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("journal: %s already recorded", sub.Hash.Hex())
	}

	now := j.now()
	if sub.ID == "" {
		sub.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	sub.SubmittedAt = now.UnixMilli()
	sub.Status = StatusPending

	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := schema.UserOpStorageKey(sub.ChainID, sub.ID)
	if err := j.db.BatchWrite(map[string][]byte{
		string(key):                                   data,
		string(schema.UserOpHashStorageKey(sub.Hash)): key,
	}); err != nil {
		return err
	}

	_, err = j.db.IncCounter(schema.SentCounterStorageKey(sub.ChainID))
	return err
}

// Get returns the record for hash, or ErrKeyNotFound.
func (j *Journal) Get(hash common.Hash) (*Submission, error) {
	key, err := j.db.GetKey(schema.UserOpHashStorageKey(hash))
	if err != nil {
		return nil, err
	}
	data, err := j.db.GetKey(key)
	if err != nil {
		return nil, err
	}
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("journal: corrupt record %s: %w", key, err)
	}
	return &sub, nil
}

// List returns the submissions on chainID, oldest first.
func (j *Journal) List(chainID *big.Int) ([]*Submission, error) {
	items, err := j.db.GetByPrefix(schema.UserOpByChainStoragePrefix(chainID))
	if err != nil {
		return nil, err
	}
	result := make([]*Submission, 0, len(items))
	for _, item := range items {
		var sub Submission
		if err := json.Unmarshal(item.Value, &sub); err != nil {
			return nil, fmt.Errorf("journal: corrupt record %s: %w", item.Key, err)
		}
		result = append(result, &sub)
	}
	return result, nil
}

// MarkIncluded records the outcome reported by a user operation receipt.
func (j *Journal) MarkIncluded(hash common.Hash, txHash common.Hash, success bool) error {
	sub, err := j.Get(hash)
	if err != nil {
		return err
	}
	sub.TransactionHash = &txHash
	sub.Status = StatusIncluded
	if !success {
		sub.Status = StatusReverted
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return j.db.Set(schema.UserOpStorageKey(sub.ChainID, sub.ID), data)
}

// Count is the number of submissions ever recorded for chainID.
func (j *Journal) Count(chainID *big.Int) (uint64, error) {
	return j.db.GetCounter(schema.SentCounterStorageKey(chainID), 0)
}
