package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/pkg/byte4"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/account"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-userop/pkg/erc4337/preset"
)

// parseCall reads "to[,value[,data]]". Value is decimal wei or 0x hex.
func parseCall(raw string) (account.Call, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > 3 {
		return account.Call{}, fmt.Errorf("call %q has more than 3 fields", raw)
	}
	to := strings.TrimSpace(parts[0])
	if !common.IsHexAddress(to) {
		return account.Call{}, fmt.Errorf("call %q: invalid target address", raw)
	}
	call := account.Call{To: common.HexToAddress(to), Value: new(big.Int)}

	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		value, ok := new(big.Int).SetString(strings.TrimSpace(parts[1]), 0)
		if !ok || value.Sign() < 0 {
			return account.Call{}, fmt.Errorf("call %q: invalid value", raw)
		}
		call.Value = value
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		data, err := hexutil.Decode(strings.TrimSpace(parts[2]))
		if err != nil {
			return account.Call{}, fmt.Errorf("call %q: invalid data: %w", raw, err)
		}
		call.Data = data
	}
	return call, nil
}

func parseCalls(raw []string) ([]account.Call, error) {
	if len(raw) == 0 {
		return nil, errors.New("at least one --call is required")
	}
	calls := make([]account.Call, 0, len(raw))
	for _, r := range raw {
		call, err := parseCall(r)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// addRequestFlags registers the flags shared by prepare and send.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("call", nil, "call to execute as to[,value[,data]], repeat for a batch")
	cmd.Flags().StringSlice("params", nil, "parameters to fill (factory,fees,gas,nonce,paymaster,signature,sidecars), default all")
	cmd.Flags().Bool("no-sponsor", false, "do not ask the paymaster even when one is configured")
	cmd.Flags().Bool("default-gas", false, "use fixed default gas limits instead of bundler estimation")
}

func requestFromFlags(cmd *cobra.Command) (preset.PrepareRequest, error) {
	rawCalls, _ := cmd.Flags().GetStringArray("call")
	calls, err := parseCalls(rawCalls)
	if err != nil {
		return preset.PrepareRequest{}, err
	}
	req := preset.PrepareRequest{Calls: calls}

	names, _ := cmd.Flags().GetStringSlice("params")
	if len(names) > 0 {
		names = lo.Map(names, func(n string, _ int) string { return strings.TrimSpace(n) })
		if req.Parameters, err = preset.ParseParameters(names); err != nil {
			return preset.PrepareRequest{}, err
		}
	}
	req.NoSponsor, _ = cmd.Flags().GetBool("no-sponsor")
	req.DefaultGas, _ = cmd.Flags().GetBool("default-gas")
	return req, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// describeError prints a failed operation with the pipeline stage and the
// bundler's classification when there is one.
func describeError(cmd *cobra.Command, err error) {
	out := cmd.ErrOrStderr()
	if stage, ok := bundler.StageOf(err); ok {
		fmt.Fprintf(out, "❌ %s failed: %v\n", stage, err)
	} else {
		fmt.Fprintf(out, "❌ %v\n", err)
	}
	var bErr *bundler.BundlerError
	if errors.As(err, &bErr) && bErr.Reason != "" {
		fmt.Fprintf(out, "💡 Entry point rejected the operation with %s (%s)\n", bErr.Reason, bErr.Kind)
	}
}

func printCalls(cmd *cobra.Command, calls []account.Call) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📦 %d call(s)\n", len(calls))
	for i, call := range calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		fmt.Fprintf(out, "   %d. %s value %s wei: %s\n", i+1, call.To.Hex(), value, byte4.Describe(call.Data))
	}
}
