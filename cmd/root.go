package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/userop.yaml"
	rootCmd    = &cobra.Command{
		Use:   "ap-userop",
		Short: "ERC-4337 user operation CLI",
		Long: `Prepare, sign and submit ERC-4337 user operations for a smart account.
The account, bundler and paymaster are read from the config file.

Such as "ap-userop address" or "ap-userop send --call 0xabc...,1000" and so on
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/userop.yaml", "Path to config file")
}
