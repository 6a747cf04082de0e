package bundler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// GasEstimation is the normalized eth_estimateUserOperationGas result. The
// paymaster fields are only set by bundlers that estimate 0.7 paymaster gas.
type GasEstimation struct {
	PreVerificationGas            *big.Int
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

// Conservative limits used when estimation is skipped. The paymaster limits
// only apply to 0.7 operations with a paymaster.
const (
	DefaultCallGasLimit               = 200_000
	DefaultVerificationGasLimit       = 1_000_000
	DefaultDeployVerificationGasLimit = 3_000_000
	DefaultPreVerificationGas         = 50_000

	DefaultPaymasterVerificationGasLimit = 100_000
	DefaultPaymasterPostOpGasLimit       = 50_000
)

// DefaultGasEstimation returns the fallback limits. Deploying the account in
// the same operation needs a larger verification budget.
func DefaultGasEstimation(deployed bool) *GasEstimation {
	verification := int64(DefaultVerificationGasLimit)
	if !deployed {
		verification = DefaultDeployVerificationGasLimit
	}
	return &GasEstimation{
		PreVerificationGas:            big.NewInt(DefaultPreVerificationGas),
		VerificationGasLimit:          big.NewInt(verification),
		CallGasLimit:                  big.NewInt(DefaultCallGasLimit),
		PaymasterVerificationGasLimit: big.NewInt(DefaultPaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       big.NewInt(DefaultPaymasterPostOpGasLimit),
	}
}

// Quantity accepts the shapes bundlers use for numbers: 0x hex strings,
// decimal strings and plain JSON numbers.
type Quantity struct {
	big.Int
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		return fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if _, ok := q.Int.SetString(raw[2:], 16); !ok || raw[2:] == "" {
			return fmt.Errorf("invalid hex quantity %q", raw)
		}
	} else if _, ok := q.Int.SetString(raw, 10); !ok {
		return fmt.Errorf("invalid quantity %q", raw)
	}
	if q.Int.Sign() < 0 {
		return fmt.Errorf("negative quantity %q", raw)
	}
	return nil
}

// BigInt returns nil for an absent quantity.
func (q *Quantity) BigInt() *big.Int {
	if q == nil {
		return nil
	}
	return new(big.Int).Set(&q.Int)
}

type rpcGasEstimation struct {
	PreVerificationGas            *Quantity `json:"preVerificationGas"`
	VerificationGasLimit          *Quantity `json:"verificationGasLimit"`
	VerificationGas               *Quantity `json:"verificationGas"`
	CallGasLimit                  *Quantity `json:"callGasLimit"`
	PaymasterVerificationGasLimit *Quantity `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *Quantity `json:"paymasterPostOpGasLimit"`
}

func (r *rpcGasEstimation) normalize() (*GasEstimation, error) {
	verification := r.VerificationGasLimit
	if verification == nil {
		// some 0.6 bundlers still answer with the pre-rename field
		verification = r.VerificationGas
	}
	if r.PreVerificationGas == nil || verification == nil || r.CallGasLimit == nil {
		return nil, fmt.Errorf("incomplete gas estimation response")
	}
	return &GasEstimation{
		PreVerificationGas:            r.PreVerificationGas.BigInt(),
		VerificationGasLimit:          verification.BigInt(),
		CallGasLimit:                  r.CallGasLimit.BigInt(),
		PaymasterVerificationGasLimit: r.PaymasterVerificationGasLimit.BigInt(),
		PaymasterPostOpGasLimit:       r.PaymasterPostOpGasLimit.BigInt(),
	}, nil
}
