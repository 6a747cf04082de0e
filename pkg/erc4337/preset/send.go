package preset

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-userop/storage"
)

// SignUserOperation returns a copy of op carrying the account's real
// signature. op must be final apart from its signature. A nil acc means the
// client account.
func (c *Client) SignUserOperation(ctx context.Context, acc *account.Account, op *userop.UserOperation) (*userop.UserOperation, error) {
	acc, err := c.resolveAccount(acc)
	if err != nil {
		return nil, err
	}
	signed := op.Clone()
	sig, err := acc.SignUserOperation(ctx, signed)
	if err != nil {
		return nil, err
	}
	signed.Signature = sig
	return signed, nil
}

// SendUserOperation prepares, signs and submits the request and returns the
// user operation hash reported by the bundler. A signature given in the
// request is submitted as is and the account does not sign.
func (c *Client) SendUserOperation(ctx context.Context, req PrepareRequest) (common.Hash, error) {
	op, err := c.PrepareUserOperation(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	if len(req.Signature) > 0 {
		acc, err := c.resolveAccount(req.Account)
		if err != nil {
			return common.Hash{}, err
		}
		signed := op.Clone()
		signed.Signature = append([]byte{}, req.Signature...)
		return c.submit(ctx, acc, signed)
	}
	return c.SubmitUserOperation(ctx, req.Account, op)
}

// SubmitUserOperation signs an already prepared op and sends it with a
// single eth_sendUserOperation call.
func (c *Client) SubmitUserOperation(ctx context.Context, acc *account.Account, op *userop.UserOperation) (common.Hash, error) {
	acc, err := c.resolveAccount(acc)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := c.SignUserOperation(ctx, acc, op)
	if err != nil {
		c.metrics.IncError("signature")
		return common.Hash{}, err
	}
	return c.submit(ctx, acc, signed)
}

func (c *Client) submit(ctx context.Context, acc *account.Account, signed *userop.UserOperation) (common.Hash, error) {
	ep := acc.EntryPoint()
	hash, err := c.bundler.SendUserOperation(ctx, ep, signed)
	if err != nil {
		c.metrics.IncError(string(bundler.StageSubmission))
		if bundler.IsNonceError(err) && c.nonceManager != nil && signed.Sender != nil {
			c.logger.Warn("bundler rejected nonce, dropping local nonce baseline",
				"sender", signed.Sender.Hex(),
				"nonce", signed.Nonce)
			c.nonceManager.Reset(nonceKey(acc, *signed.Sender))
		}
		return common.Hash{}, bundler.WithStage(bundler.StageSubmission, err)
	}
	c.metrics.IncSent(ep.Version.String())
	c.logger.Info("user operation submitted",
		"hash", hash.Hex(),
		"entrypoint", ep.Address.Hex(),
		"nonce", signed.Nonce)

	if c.journal != nil {
		sub := &storage.Submission{
			Hash:       hash,
			ChainID:    acc.ChainID(),
			EntryPoint: ep.Address,
			Version:    ep.Version.String(),
			Nonce:      signed.Nonce,
		}
		if signed.Sender != nil {
			sub.Sender = *signed.Sender
		}
		// the bundler already accepted it, journal errors are only logged
		if err := c.journal.Record(sub); err != nil {
			c.logger.Warn("failed to journal user operation", "hash", hash.Hex(), "error", err)
		}
	}
	return hash, nil
}

// WaitForUserOperationReceipt polls eth_getUserOperationReceipt until the
// operation is included or ctx is done. The interval grows from the poll
// interval up to the max interval. Polling errors are logged and retried.
func (c *Client) WaitForUserOperationReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error) {
	interval := c.pollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
		receipt, err := c.bundler.GetUserOperationReceipt(ctx, hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("receipt polling error", "hash", hash.Hex(), "attempt", attempt, "error", err)
		case receipt != nil:
			c.logger.Debug("user operation included", "hash", hash.Hex(), "attempt", attempt, "success", receipt.Success)
			c.markIncluded(hash, receipt)
			return receipt, nil
		}

		timer.Reset(interval)
		interval = time.Duration(float64(interval) * receiptBackoffFactor)
		if interval > c.maxInterval {
			interval = c.maxInterval
		}
	}
}

func (c *Client) markIncluded(hash common.Hash, receipt *bundler.UserOperationReceipt) {
	if c.journal == nil {
		return
	}
	var txHash common.Hash
	if receipt.Receipt != nil {
		txHash = receipt.Receipt.TransactionHash
	}
	err := c.journal.MarkIncluded(hash, txHash, receipt.Success)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		c.logger.Warn("failed to update journal", "hash", hash.Hex(), "error", err)
	}
}
