package main

import (
	"fmt"
	"log/slog"

	"github.com/mbocsi/ipcd/app"
	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/config"
)

// loadConfig reads path, or falls back to defaults plus environment when no
// file is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveHostname falls back to mDNS when no hostname is configured.
func resolveHostname(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Hostname != "" {
		return cfg.Hostname, nil
	}
	srv, err := client.DiscoverServer(cfg.Discovery.Timeout)
	if err != nil {
		return "", fmt.Errorf("no hostname configured and discovery failed: %w", err)
	}
	logger.Info("Discovered IPCD server", "name", srv.ServiceName, "hostname", srv.Hostname())
	return srv.Hostname(), nil
}

// buildApp wires a client and its simulated devices from cfg.
func buildApp(cfg *config.Config, logCfg client.LogConfig) (*app.App, client.Queue, error) {
	logger := logCfg.Logger()

	hostname, err := resolveHostname(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.NewClientWithLogging(hostname, nil, logCfg)
	if err != nil {
		return nil, nil, err
	}
	c.SetVersion(cfg.IPCDVersion)
	c.SetReconnect(cfg.Backoff())
	c.SetDispatchWorkers(cfg.Dispatch.Workers)

	q, err := cfg.OpenQueue()
	if err != nil {
		return nil, nil, err
	}
	c.SetQueue(q)

	a := app.NewApp(c, logger)
	for _, d := range cfg.NewDevices() {
		if _, err := a.AddThermostat(d); err != nil {
			q.Close()
			return nil, nil, err
		}
	}
	return a, q, nil
}
