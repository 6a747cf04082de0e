package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// authenticator flags: user present | user verified
const webAuthnFlags = 0x05

var (
	p256N     = elliptic.P256().Params().N
	p256HalfN = new(big.Int).Rsh(p256N, 1)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	webAuthnAuthType, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "authenticatorData", Type: "bytes"},
		{Name: "clientDataJSON", Type: "string"},
		{Name: "challengeIndex", Type: "uint256"},
		{Name: "typeIndex", Type: "uint256"},
		{Name: "r", Type: "uint256"},
		{Name: "s", Type: "uint256"},
	})
	webAuthnAuthArgs = abi.Arguments{{Type: webAuthnAuthType}}
)

// WebAuthnAssertion is the WebAuthnAuth struct verified on chain.
type WebAuthnAssertion struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	ChallengeIndex    *big.Int
	TypeIndex         *big.Int
	R                 *big.Int
	S                 *big.Int
}

// Encode returns abi.encode(WebAuthnAuth).
func (a *WebAuthnAssertion) Encode() ([]byte, error) {
	return webAuthnAuthArgs.Pack(*a)
}

// WebAuthnSigner emulates a passkey authenticator with a P-256 key held in
// memory.
type WebAuthnSigner struct {
	key    *ecdsa.PrivateKey
	rpID   string
	origin string
}

func NewWebAuthnSigner(key *ecdsa.PrivateKey, rpID, origin string) (*WebAuthnSigner, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("signer: webauthn key must be on P-256")
	}
	if rpID == "" || origin == "" {
		return nil, errors.New("signer: webauthn rpID and origin are required")
	}
	return &WebAuthnSigner{key: key, rpID: rpID, origin: origin}, nil
}

func GenerateWebAuthnSigner(rpID, origin string) (*WebAuthnSigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewWebAuthnSigner(key, rpID, origin)
}

func (s *WebAuthnSigner) KeyType() KeyType { return KeyTypeWebAuthn }

// PublicKey returns x‖y, 32 bytes each, the owner encoding smart wallets
// store.
func (s *WebAuthnSigner) PublicKey() []byte {
	out := make([]byte, 64)
	s.key.PublicKey.X.FillBytes(out[:32])
	s.key.PublicKey.Y.FillBytes(out[32:])
	return out
}

// Assert produces an assertion with challenge as the WebAuthn challenge.
func (s *WebAuthnSigner) Assert(challenge []byte) (*WebAuthnAssertion, error) {
	a := s.assertionFor(challenge)

	clientDataHash := sha256.Sum256([]byte(a.ClientDataJSON))
	digest := sha256.Sum256(append(append([]byte{}, a.AuthenticatorData...), clientDataHash[:]...))

	r, sv, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("webauthn sign: %w", err)
	}
	if sv.Cmp(p256HalfN) > 0 {
		sv = new(big.Int).Sub(p256N, sv)
	}
	a.R, a.S = r, sv
	return a, nil
}

// StubAssertion has the exact encoded length of a real assertion from this
// signer, with r and s at their maximum.
func (s *WebAuthnSigner) StubAssertion() *WebAuthnAssertion {
	a := s.assertionFor(make([]byte, common.HashLength))
	a.R = new(big.Int).Set(maxUint256)
	a.S = new(big.Int).Set(maxUint256)
	return a
}

func (s *WebAuthnSigner) assertionFor(challenge []byte) *WebAuthnAssertion {
	rpIDHash := sha256.Sum256([]byte(s.rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, webAuthnFlags, 0, 0, 0, 0)

	clientData := fmt.Sprintf(`{"type":"webauthn.get","challenge":"%s","origin":"%s","crossOrigin":false}`,
		base64.RawURLEncoding.EncodeToString(challenge), s.origin)

	return &WebAuthnAssertion{
		AuthenticatorData: authData,
		ClientDataJSON:    clientData,
		ChallengeIndex:    big.NewInt(int64(strings.Index(clientData, `"challenge":"`))),
		TypeIndex:         big.NewInt(int64(strings.Index(clientData, `"type":"webauthn.get"`))),
	}
}

// Sign returns the encoded WebAuthnAuth over hash.
func (s *WebAuthnSigner) Sign(ctx context.Context, hash common.Hash) ([]byte, error) {
	a, err := s.Assert(hash.Bytes())
	if err != nil {
		return nil, err
	}
	return a.Encode()
}

func (s *WebAuthnSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return s.Sign(ctx, HashMessage(message))
}

func (s *WebAuthnSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, err := HashTypedData(data)
	if err != nil {
		return nil, err
	}
	return s.Sign(ctx, hash)
}

// Verify checks an assertion against this signer's public key. Used by
// tests and by callers that want to validate before submitting.
func (s *WebAuthnSigner) Verify(a *WebAuthnAssertion) bool {
	clientDataHash := sha256.Sum256([]byte(a.ClientDataJSON))
	digest := sha256.Sum256(append(append([]byte{}, a.AuthenticatorData...), clientDataHash[:]...))
	return ecdsa.Verify(&s.key.PublicKey, digest[:], a.R, a.S)
}
