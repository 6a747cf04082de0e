package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List user operations submitted from this machine",
	Long:  `List the user operations recorded in the local journal for the configured chain, oldest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		rt, err := newRuntime(ctx, configPath)
		if err != nil {
			return err
		}
		defer rt.Close()

		subs, err := rt.journal.List(rt.chainID)
		if err != nil {
			return err
		}
		total, err := rt.journal.Count(rt.chainID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "📊 %d user operations submitted on chain %s\n", total, rt.chainID)
		for _, sub := range subs {
			fmt.Fprintf(out, "  %s  %-8s  %s  nonce %s  EntryPoint %s\n",
				time.UnixMilli(sub.SubmittedAt).UTC().Format(time.RFC3339),
				sub.Status,
				sub.Hash.Hex(),
				sub.Nonce,
				sub.Version,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
