package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbocsi/ipcd/mcp"
)

func mcpCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Connect the configured devices and serve MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			// stdout carries the MCP protocol
			logCfg := cfg.LogConfig()
			logCfg.Output = os.Stderr
			logger := logCfg.Logger()
			slog.SetDefault(logger)

			a, q, err := buildApp(cfg, logCfg)
			if err != nil {
				return err
			}
			defer q.Close()

			if err := a.Client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer a.Client.Disconnect()

			return mcp.NewMCPServer(a.Client, logger).Run()
		},
	}
}
