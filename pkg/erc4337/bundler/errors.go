package bundler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind classifies a bundler rejection.
type ErrorKind string

const (
	KindUnknown                   ErrorKind = "unknown"
	KindSenderAlreadyConstructed  ErrorKind = "sender already constructed"
	KindInitCodeFailed            ErrorKind = "initCode failed"
	KindInitCodeMustReturnSender  ErrorKind = "initCode must return sender"
	KindInitCodeMustCreateSender  ErrorKind = "initCode must create sender"
	KindAccountNotDeployed        ErrorKind = "account not deployed"
	KindInsufficientPrefund       ErrorKind = "insufficient prefund"
	KindUserOperationExpired      ErrorKind = "user operation expired"
	KindSmartAccountReverted      ErrorKind = "smart account reverted"
	KindInvalidSignature          ErrorKind = "invalid signature"
	KindInvalidNonce              ErrorKind = "invalid account nonce"
	KindPaymasterNotDeployed      ErrorKind = "paymaster not deployed"
	KindPaymasterDepositTooLow    ErrorKind = "paymaster deposit too low"
	KindPaymasterExpired          ErrorKind = "paymaster expired"
	KindPaymasterReverted         ErrorKind = "paymaster reverted"
	KindPaymasterSignature        ErrorKind = "invalid paymaster signature"
	KindVerificationGasExceeded   ErrorKind = "verification gas limit exceeded"
	KindVerificationGasTooLow     ErrorKind = "verification gas limit too low"
	KindPaymasterPostOpReverted   ErrorKind = "paymaster postOp reverted"
	KindInvalidBeneficiary        ErrorKind = "invalid beneficiary"
	KindFailedToSendToBeneficiary ErrorKind = "failed to send to beneficiary"
	KindInternalCallOnly          ErrorKind = "internal call only"
	KindInvalidPaymasterAndData   ErrorKind = "invalid paymasterAndData"
	KindGasValuesOverflow         ErrorKind = "gas values overflow"
	KindHandleOpsOutOfGas         ErrorKind = "handleOps out of gas"
	KindInvalidAggregator         ErrorKind = "invalid aggregator"
	KindExecutionReverted         ErrorKind = "execution reverted"
	KindInvalidFields             ErrorKind = "invalid fields"
	KindRejectedByEntryPoint      ErrorKind = "rejected by entrypoint"
	KindRejectedByPaymaster       ErrorKind = "rejected by paymaster"
	KindRejectedByOpCode          ErrorKind = "rejected by opcode"
	KindOutOfTimeRange            ErrorKind = "out of time range"
	KindPaymasterRateLimit        ErrorKind = "paymaster throttled"
	KindPaymasterStakeTooLow      ErrorKind = "paymaster stake too low"
	KindUnsupportedAggregator     ErrorKind = "unsupported signature aggregator"
	KindSignatureCheckFailed      ErrorKind = "signature check failed"
)

// Entry point revert reasons, "AAxx".
var aaKinds = map[string]ErrorKind{
	"AA10": KindSenderAlreadyConstructed,
	"AA13": KindInitCodeFailed,
	"AA14": KindInitCodeMustReturnSender,
	"AA15": KindInitCodeMustCreateSender,
	"AA20": KindAccountNotDeployed,
	"AA21": KindInsufficientPrefund,
	"AA22": KindUserOperationExpired,
	"AA23": KindSmartAccountReverted,
	"AA24": KindInvalidSignature,
	"AA25": KindInvalidNonce,
	"AA30": KindPaymasterNotDeployed,
	"AA31": KindPaymasterDepositTooLow,
	"AA32": KindPaymasterExpired,
	"AA33": KindPaymasterReverted,
	"AA34": KindPaymasterSignature,
	"AA40": KindVerificationGasExceeded,
	"AA41": KindVerificationGasTooLow,
	"AA50": KindPaymasterPostOpReverted,
	"AA90": KindInvalidBeneficiary,
	"AA91": KindFailedToSendToBeneficiary,
	"AA92": KindInternalCallOnly,
	"AA93": KindInvalidPaymasterAndData,
	"AA94": KindGasValuesOverflow,
	"AA95": KindHandleOpsOutOfGas,
	"AA96": KindInvalidAggregator,
}

// ERC-4337 JSON-RPC error codes.
var codeKinds = map[int]ErrorKind{
	-32521: KindExecutionReverted,
	-32602: KindInvalidFields,
	-32500: KindRejectedByEntryPoint,
	-32501: KindRejectedByPaymaster,
	-32502: KindRejectedByOpCode,
	-32503: KindOutOfTimeRange,
	-32504: KindPaymasterRateLimit,
	-32505: KindPaymasterStakeTooLow,
	-32506: KindUnsupportedAggregator,
	-32507: KindSignatureCheckFailed,
	-32508: KindPaymasterDepositTooLow,
}

var aaReason = regexp.MustCompile(`(?i)\baa(\d{2})\b`)

// BundlerError is a bundler rejection classified by its AA reason or its
// JSON-RPC code. The original error is kept as Err.
type BundlerError struct {
	Kind    ErrorKind
	Code    int
	Reason  string
	Message string
	Data    any
	Err     error
}

func (e *BundlerError) Error() string {
	var b strings.Builder
	b.WriteString("bundler: ")
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *BundlerError) Unwrap() error { return e.Err }

// NewBundlerError classifies err. The AA reason is checked first since
// bundlers report most entry point reverts under a generic code.
func NewBundlerError(err error) *BundlerError {
	if err == nil {
		return nil
	}
	var existing *BundlerError
	if errors.As(err, &existing) {
		return existing
	}

	be := &BundlerError{Kind: KindUnknown, Message: err.Error(), Err: err}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		be.Code = rpcErr.ErrorCode()
		be.Message = rpcErr.Error()
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		be.Data = dataErr.ErrorData()
	}

	if m := aaReason.FindStringSubmatch(be.Message); m != nil {
		be.Reason = "AA" + m[1]
		if kind, ok := aaKinds[be.Reason]; ok {
			be.Kind = kind
			return be
		}
	}
	if kind, ok := codeKinds[be.Code]; ok {
		be.Kind = kind
	}
	return be
}

// IsNonceError reports whether err is an AA25 invalid nonce rejection.
func IsNonceError(err error) bool {
	var be *BundlerError
	if errors.As(err, &be) {
		return be.Kind == KindInvalidNonce
	}
	return false
}

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageNonce         Stage = "nonce"
	StageGasEstimation Stage = "gas-estimation"
	StageFeeEstimation Stage = "fee-estimation"
	StageSponsorship   Stage = "sponsorship"
	StageSubmission    Stage = "submission"
)

// StageError tags err with the pipeline stage it came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WithStage wraps err in a StageError unless it already carries one.
func WithStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
