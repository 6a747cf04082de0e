package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/core/config"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the smart account",
	Long: `Derive the smart account address from the configured owner and factory,
then report whether it is deployed and its current entry point nonce.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		rt, err := newRuntime(ctx, configPath)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		acc := rt.account
		sender, err := acc.Address(ctx)
		if err != nil {
			describeError(cmd, err)
			return err
		}
		ep := acc.EntryPoint()
		fmt.Fprintf(out, "📮 Account: %s (%s)\n", sender.Hex(), acc.Name())
		fmt.Fprintf(out, "   Owner: %s\n", rt.cfg.OwnerAddress.Hex())
		fmt.Fprintf(out, "   EntryPoint %s: %s\n", ep.Version, ep.Address.Hex())
		fmt.Fprintf(out, "   Chain: %s (%s)\n", rt.chainID, config.ChainEnvFor(rt.chainID))

		deployed, err := acc.IsDeployed(ctx)
		if err != nil {
			return err
		}
		if deployed {
			fmt.Fprintf(out, "✅ Deployed\n")
		} else {
			fa, err := acc.FactoryArgs(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "🏗  Not deployed yet, the first operation deploys it through factory %s\n", fa.Factory.Hex())
		}

		nonce, err := acc.GetNonce(ctx, acc.NonceKey())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "🔢 Nonce (key %s): %s\n", acc.NonceKey(), nonce)

		if url := config.ChainEnvFor(rt.chainID).EtherscanURL(); url != "" {
			fmt.Fprintf(out, "🔗 %s/address/%s\n", url, sender.Hex())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
