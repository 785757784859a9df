package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/ipcdtest"
)

// ipcd-server runs the fake IPCD server for local development. Commands can
// be pushed to connected devices with POST /admin/command.
func main() {
	var (
		addr  string
		level string
	)

	rootCmd := &cobra.Command{
		Use:           "ipcd-server",
		Short:         "Fake IPCD server for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logCfg := client.DefaultLogConfig()
			l, err := client.ParseLevel(level)
			if err != nil {
				return err
			}
			logCfg.Level = l
			logger := logCfg.Logger()
			slog.SetDefault(logger)

			s := ipcdtest.NewServer()
			s.Logger = logger
			srv := &http.Server{Addr: addr, Handler: s.Handler()}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("Starting IPCD server", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("Shutting down IPCD server")
			s.DropConnections()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", "0.0.0.0:8080", "Listen address")
	rootCmd.Flags().StringVar(&level, "log-level", "debug", "Log level")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
