package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/core/config"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Prepare, sign and submit a user operation",
	Long: `Build the user operation for the given calls, sign it with the configured
owner and submit it to the bundler. With --wait the command blocks until the
operation is included or the timeout passes.`,
	Example: `  ap-userop send --call 0xd73bab8f06db28c87932571f87d0d2c0fdf13d94,1000 --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		serveMetrics, _ := cmd.Flags().GetBool("metrics")

		ctx, cancel := context.WithCancel(commandContext(cmd))
		defer cancel()
		rt, err := newRuntime(ctx, configPath)
		if err != nil {
			return err
		}
		defer rt.Close()

		if serveMetrics {
			errC := rt.eigenMetrics.Start(ctx, rt.reg)
			go func() {
				if err, ok := <-errC; ok && err != nil {
					rt.cfg.Logger.Error("Metrics server stopped", "err", err)
				}
			}()
		}

		out := cmd.OutOrStdout()
		printCalls(cmd, req.Calls)
		hash, err := rt.client.SendUserOperation(ctx, req)
		if err != nil {
			describeError(cmd, err)
			return err
		}
		fmt.Fprintf(out, "🚀 Submitted user operation %s\n", hash.Hex())
		if url := config.ChainEnvFor(rt.chainID).UserOpExplorerURL(hash.Hex()); url != "" {
			fmt.Fprintf(out, "🔗 %s\n", url)
		}
		if !wait {
			fmt.Fprintf(out, "💡 Check it later with: ap-userop receipt %s\n", hash.Hex())
			return nil
		}

		fmt.Fprintf(out, "⏳ Waiting up to %s for inclusion...\n", timeout)
		waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
		defer cancelWait()
		receipt, err := rt.client.WaitForUserOperationReceipt(waitCtx, hash)
		if err != nil {
			return fmt.Errorf("user operation %s not included: %w", hash.Hex(), err)
		}
		printReceipt(cmd, rt.chainID, receipt)
		return nil
	},
}

func printReceipt(cmd *cobra.Command, chainID *big.Int, receipt *bundler.UserOperationReceipt) {
	out := cmd.OutOrStdout()
	if receipt.Success {
		fmt.Fprintf(out, "✅ User operation %s succeeded\n", receipt.UserOpHash.Hex())
	} else {
		fmt.Fprintf(out, "❌ User operation %s reverted: %s\n", receipt.UserOpHash.Hex(), receipt.Reason)
	}
	if receipt.Receipt != nil {
		tx := receipt.Receipt.TransactionHash
		fmt.Fprintf(out, "   Transaction: %s\n", tx.Hex())
		if url := txURL(chainID, tx); url != "" {
			fmt.Fprintf(out, "🔗 %s\n", url)
		}
	}
	pp.Fprintln(out, receipt)
}

func txURL(chainID *big.Int, tx common.Hash) string {
	base := config.ChainEnvFor(chainID).EtherscanURL()
	if base == "" {
		return ""
	}
	return base + "/tx/" + tx.Hex()
}

func init() {
	addRequestFlags(sendCmd)
	sendCmd.Flags().Bool("wait", false, "wait for the operation to be included")
	sendCmd.Flags().Duration("timeout", 2*time.Minute, "how long --wait waits for inclusion")
	sendCmd.Flags().Bool("metrics", false, "serve prometheus metrics on eigen_metrics_ip_port_address while running")
	rootCmd.AddCommand(sendCmd)
}
