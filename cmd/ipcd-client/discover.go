package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/ipcd/client"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find an IPCD server on the local network over mDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := client.DiscoverServer(timeout)
			if err != nil {
				return err
			}
			fmt.Printf("Found %s\n", srv.ServiceName)
			fmt.Printf("  Hostname: %s\n", srv.Hostname())
			for _, txt := range srv.TXTRecords {
				fmt.Printf("  TXT:      %s\n", txt)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for an answer")
	return cmd
}
