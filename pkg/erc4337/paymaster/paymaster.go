// Package paymaster fetches sponsorship data for user operations from an
// ERC-7677 paymaster service.
package paymaster

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

var ErrMalformedPaymaster = errors.New("paymaster: malformed paymaster")

// Request is what a sponsor sees of an operation being prepared.
type Request struct {
	EntryPoint    entrypoint.EntryPoint
	ChainID       *big.Int
	UserOperation *userop.UserOperation
	Context       any
}

// SponsorInfo is the optional display data a paymaster returns for wallets.
type SponsorInfo struct {
	Name string `mapstructure:"name"`
	Icon string `mapstructure:"icon"`
}

// Sponsorship is the paymaster half of an operation. 0.6 answers carry
// PaymasterAndData, 0.7 answers carry Paymaster and PaymasterData plus
// optional gas limits.
type Sponsorship struct {
	Paymaster                     *common.Address `mapstructure:"paymaster"`
	PaymasterData                 []byte          `mapstructure:"paymasterData"`
	PaymasterAndData              []byte          `mapstructure:"paymasterAndData"`
	PaymasterVerificationGasLimit *big.Int        `mapstructure:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *big.Int        `mapstructure:"paymasterPostOpGasLimit"`
	Sponsor                       *SponsorInfo    `mapstructure:"sponsor"`

	// IsFinal marks stub data that is already the real sponsorship, in which
	// case no pm_getPaymasterData call follows.
	IsFinal bool `mapstructure:"isFinal"`
}

// Sponsor provides paymaster data in two phases: stub data good enough for
// gas estimation, then the final data for the estimated operation.
type Sponsor interface {
	GetPaymasterStubData(ctx context.Context, req Request) (*Sponsorship, error)
	GetPaymasterData(ctx context.Context, req Request) (*Sponsorship, error)
}

// Validate checks s has the fields version needs.
func (s *Sponsorship) Validate(version entrypoint.Version) error {
	switch version {
	case entrypoint.V06:
		if s.PaymasterAndData == nil {
			return fmt.Errorf("%w: 0.6 answer without paymasterAndData", ErrMalformedPaymaster)
		}
		if len(s.PaymasterAndData) > 0 && len(s.PaymasterAndData) < common.AddressLength {
			return fmt.Errorf("%w: paymasterAndData shorter than an address", ErrMalformedPaymaster)
		}
	case entrypoint.V07:
		if s.Paymaster == nil || *s.Paymaster == (common.Address{}) {
			return fmt.Errorf("%w: 0.7 answer without paymaster address", ErrMalformedPaymaster)
		}
	default:
		return fmt.Errorf("%w: %q", entrypoint.ErrUnsupportedVersion, version)
	}
	return nil
}

// Apply merges s into op. Values from the paymaster replace what op holds.
func (s *Sponsorship) Apply(op *userop.UserOperation, version entrypoint.Version) error {
	if err := s.Validate(version); err != nil {
		return err
	}
	if version == entrypoint.V06 {
		op.PaymasterAndData = append([]byte{}, s.PaymasterAndData...)
		return nil
	}

	addr := *s.Paymaster
	op.Paymaster = &addr
	op.PaymasterData = append([]byte{}, s.PaymasterData...)
	if s.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = new(big.Int).Set(s.PaymasterVerificationGasLimit)
	}
	if s.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = new(big.Int).Set(s.PaymasterPostOpGasLimit)
	}
	return nil
}

// ParseAddress reads a paymaster address from configuration or flags.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrMalformedPaymaster, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrMalformedPaymaster)
	}
	return addr, nil
}
