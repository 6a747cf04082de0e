package cmd

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/storage"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <userOpHash>",
	Short: "Look up the receipt of a submitted user operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(args[0])
		if err != nil || len(raw) != common.HashLength {
			return fmt.Errorf("invalid user operation hash %q", args[0])
		}
		hash := common.BytesToHash(raw)

		ctx := commandContext(cmd)
		rt, err := newRuntime(ctx, configPath)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		sub, err := rt.journal.Get(hash)
		switch {
		case err == nil:
			fmt.Fprintf(out, "📒 Journal: %s, nonce %s, submitted by %s\n", sub.Status, sub.Nonce, sub.Sender.Hex())
		case errors.Is(err, storage.ErrKeyNotFound):
			fmt.Fprintf(out, "📒 Not in the local journal\n")
		default:
			return err
		}

		receipt, err := rt.bundler.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			describeError(cmd, err)
			return err
		}
		if receipt == nil {
			fmt.Fprintf(out, "⏳ User operation %s is not included yet\n", hash.Hex())
			return nil
		}
		if sub != nil && sub.Status == storage.StatusPending && receipt.Receipt != nil {
			if err := rt.journal.MarkIncluded(hash, receipt.Receipt.TransactionHash, receipt.Success); err != nil {
				rt.cfg.Logger.Warn("Cannot update journal", "userOpHash", hash.Hex(), "err", err)
			}
		}
		printReceipt(cmd, rt.chainID, receipt)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(receiptCmd)
}
