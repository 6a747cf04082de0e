package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// KeyType discriminates the owner key schemes a smart account can wrap
// signatures for.
type KeyType string

const (
	KeyTypeSecp256k1 KeyType = "secp256k1"
	KeyTypeWebAuthn  KeyType = "webAuthn"
)

var ErrNilKey = errors.New("signer: private key is required")

// Signer is the owner side of a smart account. Sign works on a raw 32 byte
// digest, SignMessage and SignTypedData hash their input first.
type Signer interface {
	KeyType() KeyType
	Sign(ctx context.Context, hash common.Hash) ([]byte, error)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// LocalSigner holds a secp256k1 key in memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func FromPrivateKeyHex(privateKeyHex string) (*LocalSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalSigner(privateKey)
}

func (s *LocalSigner) KeyType() KeyType        { return KeyTypeSecp256k1 }
func (s *LocalSigner) Address() common.Address { return s.address }

// Sign signs hash as is. v is 27 or 28.
func (s *LocalSigner) Sign(ctx context.Context, hash common.Hash) ([]byte, error) {
	return signHash(s.key, hash)
}

func (s *LocalSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return SignMessage(s.key, message)
}

func (s *LocalSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, err := HashTypedData(data)
	if err != nil {
		return nil, err
	}
	return signHash(s.key, hash)
}

// HashMessage returns the EIP-191 personal message digest.
func HashMessage(data []byte) common.Hash {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	return crypto.Keccak256Hash(prefix, data)
}

func HashTypedData(data apitypes.TypedData) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// Generate EIP191 signature
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	return signHash(key, HashMessage(data))
}

func SignMessageAsHex(key *ecdsa.PrivateKey, data []byte) (string, error) {
	signature, e := SignMessage(key, data)
	if e == nil {
		return common.Bytes2Hex(signature), nil
	}

	return "", e
}

func signHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, err
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	sig[64] += 27
	return sig, nil
}

// RecoverAddress returns the signer of a 65 byte signature over hash.
func RecoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := append([]byte{}, sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
