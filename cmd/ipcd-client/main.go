package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ipcd-client",
		Short: "IPCD device client",
		Long: `ipcd-client connects simulated IPCD devices to an IPCD server.

Configuration is read from a YAML file (--config) and IPCD_* environment
variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(
		runCmd(&configPath),
		reportCmd(&configPath),
		discoverCmd(),
		mcpCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
