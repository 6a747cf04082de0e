package cmd

import (
	"fmt"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare a user operation without sending it",
	Long: `Fill the user operation for the given calls the same way send does and
print it in its JSON-RPC form. The signature is a stub of the right length.`,
	Example: `  ap-userop prepare --call 0xd73bab8f06db28c87932571f87d0d2c0fdf13d94,1000
  ap-userop prepare --call 0xd73b...,0 --call 0xfba3...,0,0xa9059cbb... --params nonce,gas`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		rt, err := newRuntime(ctx, configPath)
		if err != nil {
			return err
		}
		defer rt.Close()

		op, err := rt.client.PrepareUserOperation(ctx, req)
		if err != nil {
			describeError(cmd, err)
			return err
		}
		ep := rt.account.EntryPoint()
		rpcOp, err := op.ToRPC(ep.Version)
		if err != nil {
			return err
		}
		hash, err := rt.account.UserOperationHash(ctx, op)
		if err != nil {
			return err
		}

		calls, err := rt.account.DecodeCalls(op.CallData)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "📝 Prepared user operation for EntryPoint %s (%s)\n", ep.Version, ep.Address.Hex())
		fmt.Fprintf(out, "   Hash: %s\n", hash.Hex())
		printCalls(cmd, calls)
		pp.Fprintln(out, rpcOp)
		return nil
	},
}

func init() {
	addRequestFlags(prepareCmd)
	rootCmd.AddCommand(prepareCmd)
}
