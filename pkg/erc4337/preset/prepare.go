package preset

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"golang.org/x/sync/errgroup"

	"github.com/AvaProtocol/ap-userop/core/chainio/aa"
	"github.com/AvaProtocol/ap-userop/pkg/eip1559"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/entrypoint"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
)

// PrepareRequest describes the operation to build. Any field set here is
// kept as is; Parameters selects which of the remaining fields the pipeline
// fills. A nil Parameters means DefaultParameters.
type PrepareRequest struct {
	Account *account.Account

	// Calls are encoded by the account unless CallData is given.
	Calls    []account.Call
	CallData []byte

	Nonce *big.Int

	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int

	// 0.6
	InitCode         []byte
	PaymasterAndData []byte

	// 0.7
	Factory       *common.Address
	FactoryData   []byte
	Paymaster     *common.Address
	PaymasterData []byte

	// Sponsor replaces the client sponsor for this request. NoSponsor
	// disables sponsorship altogether.
	Sponsor          paymaster.Sponsor
	NoSponsor        bool
	PaymasterContext any

	Signature []byte

	// Blobs are turned into Sidecars when the sidecars parameter is set.
	Blobs    []kzg4844.Blob
	Sidecars *types.BlobTxSidecar

	Parameters    []Parameter
	StateOverride map[common.Address]any

	// DefaultGas fills missing gas limits from bundler.DefaultGasEstimation
	// instead of calling eth_estimateUserOperationGas.
	DefaultGas bool
}

func (r *PrepareRequest) parameters() parameterSet {
	if r.Parameters == nil {
		return DefaultParameters
	}
	return r.Parameters
}

// seed builds the draft from what the caller supplied.
func (r *PrepareRequest) seed(version entrypoint.Version) (*userop.UserOperation, error) {
	if r.Paymaster != nil && *r.Paymaster == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", paymaster.ErrMalformedPaymaster)
	}
	if version == entrypoint.V06 && len(r.PaymasterAndData) > 0 && len(r.PaymasterAndData) < common.AddressLength {
		return nil, fmt.Errorf("%w: paymasterAndData shorter than an address", paymaster.ErrMalformedPaymaster)
	}

	op := (&userop.UserOperation{
		Nonce:                         r.Nonce,
		CallGasLimit:                  r.CallGasLimit,
		VerificationGasLimit:          r.VerificationGasLimit,
		PreVerificationGas:            r.PreVerificationGas,
		MaxFeePerGas:                  r.MaxFeePerGas,
		MaxPriorityFeePerGas:          r.MaxPriorityFeePerGas,
		Signature:                     r.Signature,
		InitCode:                      r.InitCode,
		PaymasterAndData:              r.PaymasterAndData,
		Factory:                       r.Factory,
		FactoryData:                   r.FactoryData,
		Paymaster:                     r.Paymaster,
		PaymasterData:                 r.PaymasterData,
		PaymasterVerificationGasLimit: r.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       r.PaymasterPostOpGasLimit,
		Sidecars:                      r.Sidecars,
	}).Clone()

	if err := op.Validate(version); err != nil {
		return nil, err
	}
	return op, nil
}

func (r *PrepareRequest) hasFactory(version entrypoint.Version) bool {
	if version == entrypoint.V06 {
		return r.InitCode != nil
	}
	return r.Factory != nil
}

func (r *PrepareRequest) hasPaymaster(version entrypoint.Version) bool {
	if version == entrypoint.V06 {
		return r.PaymasterAndData != nil
	}
	return r.Paymaster != nil
}

// PrepareUserOperation fills the requested fields of an operation. Fields
// outside the requested parameters are left nil, except what the caller set.
// On error nothing is returned.
func (c *Client) PrepareUserOperation(ctx context.Context, req PrepareRequest) (*userop.UserOperation, error) {
	start := time.Now()
	op, err := c.prepare(ctx, &req)
	if err != nil {
		stage, ok := bundler.StageOf(err)
		if !ok {
			stage = "prepare"
		}
		c.metrics.IncError(string(stage))
		c.logger.Debug("user operation preparation failed", "stage", stage, "error", err)
		return nil, err
	}
	c.metrics.ObservePrepareDuration(time.Since(start).Seconds())
	return op, nil
}

func (c *Client) prepare(ctx context.Context, req *PrepareRequest) (*userop.UserOperation, error) {
	acc, err := c.resolveAccount(req.Account)
	if err != nil {
		return nil, err
	}
	ep := acc.EntryPoint()
	version := ep.Version
	params := req.parameters()
	chainID := acc.ChainID()

	// Local checks come first so configuration errors never cost a round trip.
	var stub []byte
	if params.has(ParamGas) || params.has(ParamSignature) {
		if stub, err = acc.StubSignature(); err != nil {
			return nil, err
		}
	}
	var callData []byte
	if req.CallData != nil {
		callData = append([]byte{}, req.CallData...)
	} else {
		if callData, err = acc.EncodeCalls(req.Calls); err != nil {
			return nil, err
		}
	}

	op, err := req.seed(version)
	if err != nil {
		return nil, err
	}
	op.CallData = callData

	sender, err := acc.Address(ctx)
	if err != nil {
		return nil, err
	}
	op.Sender = &sender

	// Factory, fees and sidecars do not depend on each other.
	var (
		factory  *account.FactoryArgs
		fees     *eip1559.Fees
		sidecars *types.BlobTxSidecar
	)
	g, gctx := errgroup.WithContext(ctx)
	if params.has(ParamFactory) && !req.hasFactory(version) {
		g.Go(func() error {
			fa, err := acc.FactoryArgs(gctx)
			if err != nil {
				return err
			}
			factory = fa
			return nil
		})
	}
	if params.has(ParamFees) && (req.MaxFeePerGas == nil || req.MaxPriorityFeePerGas == nil) {
		g.Go(func() error {
			f, err := c.estimateFees(gctx, req.MaxFeePerGas, req.MaxPriorityFeePerGas)
			if err != nil {
				return bundler.WithStage(bundler.StageFeeEstimation, err)
			}
			fees = f
			return nil
		})
	}
	if params.has(ParamSidecars) && req.Sidecars == nil && len(req.Blobs) > 0 {
		g.Go(func() error {
			sc, err := blobSidecar(req.Blobs)
			if err != nil {
				return err
			}
			sidecars = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if factory != nil {
		applyFactory(op, version, factory)
	}
	if fees != nil {
		op.MaxFeePerGas = fees.MaxFeePerGas
		op.MaxPriorityFeePerGas = fees.MaxPriorityFeePerGas
	}
	if sidecars != nil {
		op.Sidecars = sidecars
	}

	// The nonce is drawn once everything that may fail locally has run.
	if params.has(ParamNonce) && req.Nonce == nil {
		nonce, err := c.allocateNonce(ctx, acc, sender)
		if err != nil {
			return nil, bundler.WithStage(bundler.StageNonce, err)
		}
		op.Nonce = nonce
	}

	sponsor := req.Sponsor
	if sponsor == nil {
		sponsor = c.sponsor
	}
	sponsored := params.has(ParamPaymaster) && sponsor != nil && !req.NoSponsor && !req.hasPaymaster(version)
	pmRequest := func() paymaster.Request {
		pmCtx := req.PaymasterContext
		if pmCtx == nil {
			pmCtx = c.paymasterContext
		}
		draft := op.Clone()
		if draft.Signature == nil {
			draft.Signature = stub
		}
		return paymaster.Request{EntryPoint: ep, ChainID: chainID, UserOperation: draft, Context: pmCtx}
	}

	// Stub data first, so gas is estimated for a sponsored operation.
	final := false
	if sponsored {
		s, err := sponsor.GetPaymasterStubData(ctx, pmRequest())
		if err != nil {
			return nil, bundler.WithStage(bundler.StageSponsorship, err)
		}
		if err := s.Apply(op, version); err != nil {
			return nil, bundler.WithStage(bundler.StageSponsorship, err)
		}
		final = s.IsFinal
	}
	if version == entrypoint.V06 && params.has(ParamPaymaster) && op.PaymasterAndData == nil {
		op.PaymasterAndData = []byte{}
	}

	if params.has(ParamGas) {
		if err := c.fillGas(ctx, acc, op, stub, req.StateOverride, req.DefaultGas); err != nil {
			return nil, err
		}
	}

	if sponsored && !final {
		s, err := sponsor.GetPaymasterData(ctx, pmRequest())
		if err != nil {
			return nil, bundler.WithStage(bundler.StageSponsorship, err)
		}
		if err := s.Apply(op, version); err != nil {
			return nil, bundler.WithStage(bundler.StageSponsorship, err)
		}
	}

	if params.has(ParamSignature) && op.Signature == nil {
		op.Signature = append([]byte{}, stub...)
	}

	if err := op.Validate(version); err != nil {
		return nil, err
	}
	c.metrics.IncPrepared(version.String())
	c.logger.Debug("prepared user operation",
		"sender", sender.Hex(),
		"nonce", op.Nonce,
		"entrypoint", ep.Address.Hex(),
		"sponsored", sponsored)
	return op, nil
}

func applyFactory(op *userop.UserOperation, version entrypoint.Version, fa *account.FactoryArgs) {
	if version == entrypoint.V06 {
		if fa.Factory == nil {
			op.InitCode = []byte{}
			return
		}
		op.InitCode = aa.GetInitCode(*fa.Factory, fa.FactoryData)
		return
	}
	if fa.Factory == nil {
		return
	}
	factory := *fa.Factory
	op.Factory = &factory
	op.FactoryData = append([]byte{}, fa.FactoryData...)
}

// fillGas lets the account hook force fields first, then asks the bundler
// (or the default limits when defaultGas is set) for whatever is still missing. Fields already on op are never replaced by
// the estimate.
func (c *Client) fillGas(
	ctx context.Context,
	acc *account.Account,
	op *userop.UserOperation,
	stub []byte,
	stateOverride map[common.Address]any,
	defaultGas bool,
) error {
	version := acc.EntryPoint().Version
	withPaymaster := version == entrypoint.V07 && op.Paymaster != nil

	overrides, err := acc.EstimateGas(ctx, op)
	if err != nil {
		return bundler.WithStage(bundler.StageGasEstimation, err)
	}
	if overrides != nil {
		setIfPresent(&op.CallGasLimit, overrides.CallGasLimit)
		setIfPresent(&op.VerificationGasLimit, overrides.VerificationGasLimit)
		setIfPresent(&op.PreVerificationGas, overrides.PreVerificationGas)
		if withPaymaster {
			setIfPresent(&op.PaymasterVerificationGasLimit, overrides.PaymasterVerificationGasLimit)
			setIfPresent(&op.PaymasterPostOpGasLimit, overrides.PaymasterPostOpGasLimit)
		}
	}

	missing := op.CallGasLimit == nil || op.VerificationGasLimit == nil || op.PreVerificationGas == nil ||
		(withPaymaster && (op.PaymasterVerificationGasLimit == nil || op.PaymasterPostOpGasLimit == nil))
	if missing && defaultGas {
		deployed := op.Factory == nil && len(op.InitCode) == 0
		est := bundler.DefaultGasEstimation(deployed)
		fillIfNil(&op.CallGasLimit, est.CallGasLimit)
		fillIfNil(&op.VerificationGasLimit, est.VerificationGasLimit)
		fillIfNil(&op.PreVerificationGas, est.PreVerificationGas)
		if withPaymaster {
			fillIfNil(&op.PaymasterVerificationGasLimit, est.PaymasterVerificationGasLimit)
			fillIfNil(&op.PaymasterPostOpGasLimit, est.PaymasterPostOpGasLimit)
		}
	} else if missing {
		scratch := op.Clone()
		if scratch.Signature == nil {
			scratch.Signature = append([]byte{}, stub...)
		}
		zeroIfNil(&scratch.CallGasLimit)
		zeroIfNil(&scratch.VerificationGasLimit)
		zeroIfNil(&scratch.PreVerificationGas)
		if withPaymaster {
			zeroIfNil(&scratch.PaymasterVerificationGasLimit)
			zeroIfNil(&scratch.PaymasterPostOpGasLimit)
		}

		est, err := c.bundler.EstimateUserOperationGas(ctx, acc.EntryPoint(), scratch, stateOverride)
		if err != nil {
			return bundler.WithStage(bundler.StageGasEstimation, err)
		}
		fillIfNil(&op.CallGasLimit, est.CallGasLimit)
		fillIfNil(&op.VerificationGasLimit, est.VerificationGasLimit)
		fillIfNil(&op.PreVerificationGas, est.PreVerificationGas)
		if withPaymaster {
			fillIfNil(&op.PaymasterVerificationGasLimit, est.PaymasterVerificationGasLimit)
			fillIfNil(&op.PaymasterPostOpGasLimit, est.PaymasterPostOpGasLimit)
		}
	}

	if version == entrypoint.V07 && op.Paymaster == nil {
		zeroIfNil(&op.PaymasterVerificationGasLimit)
		zeroIfNil(&op.PaymasterPostOpGasLimit)
	}
	return nil
}

func setIfPresent(dst **big.Int, v *big.Int) {
	if v != nil {
		*dst = new(big.Int).Set(v)
	}
}

func fillIfNil(dst **big.Int, v *big.Int) {
	if *dst == nil && v != nil {
		*dst = new(big.Int).Set(v)
	}
}

func zeroIfNil(dst **big.Int) {
	if *dst == nil {
		*dst = new(big.Int)
	}
}

func blobSidecar(blobs []kzg4844.Blob) (*types.BlobTxSidecar, error) {
	sidecar := &types.BlobTxSidecar{
		Blobs:       make([]kzg4844.Blob, len(blobs)),
		Commitments: make([]kzg4844.Commitment, len(blobs)),
		Proofs:      make([]kzg4844.Proof, len(blobs)),
	}
	for i := range blobs {
		sidecar.Blobs[i] = blobs[i]
		commitment, err := kzg4844.BlobToCommitment(&sidecar.Blobs[i])
		if err != nil {
			return nil, fmt.Errorf("blob %d commitment: %w", i, err)
		}
		proof, err := kzg4844.ComputeBlobProof(&sidecar.Blobs[i], commitment)
		if err != nil {
			return nil, fmt.Errorf("blob %d proof: %w", i, err)
		}
		sidecar.Commitments[i] = commitment
		sidecar.Proofs[i] = proof
	}
	return sidecar, nil
}
