package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/ipcd/client"
)

func reportCmd(configPath *string) *cobra.Command {
	var (
		serial  string
		payload string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "POST a one-off report for a configured device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var report map[string]any
			if err := json.Unmarshal([]byte(payload), &report); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}

			logCfg := cfg.LogConfig()
			hostname, err := resolveHostname(cfg, logCfg.Logger())
			if err != nil {
				return err
			}
			c, err := client.NewClientWithLogging(hostname, nil, logCfg)
			if err != nil {
				return err
			}
			c.SetVersion(cfg.IPCDVersion)

			var target *client.Device
			for _, d := range cfg.NewDevices() {
				if d.SerialNumber() == serial || (serial == "" && target == nil) {
					target = d
				}
			}
			if target == nil {
				return fmt.Errorf("no configured device with serial %q", serial)
			}
			if err := c.AddDevice(target); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := c.PostReport(ctx, target, report); err != nil {
				return err
			}
			fmt.Printf("Report for %s posted to %s\n", target.Identity(), c.ReportURL(target))
			return nil
		},
	}

	cmd.Flags().StringVar(&serial, "sn", "", "Serial number of the device (default: first configured device)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "Report payload as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}
