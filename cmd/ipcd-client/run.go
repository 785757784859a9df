package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func runCmd(configPath *string) *cobra.Command {
	var tick time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the configured devices and simulate them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logCfg := cfg.LogConfig()
			slog.SetDefault(logCfg.Logger())

			a, q, err := buildApp(cfg, logCfg)
			if err != nil {
				return err
			}
			defer q.Close()

			a.Tick = tick
			if cfg.Metrics.Addr != "" {
				a.Addr = cfg.Metrics.Addr
				a.EnableMetrics()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("Starting ipcd-client", "endpoint", a.Client.Endpoint(), "devices", len(a.Client.Devices()))
			return a.Start(ctx)
		},
	}

	cmd.Flags().DurationVar(&tick, "tick", 5*time.Second, "Simulation step interval")
	return cmd
}
