package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbocsi/ipcd/client"
)

// App runs an IPCD client with simulated devices and an optional HTTP
// listener for status and metrics.
type App struct {
	Client    *client.Client
	Registery *DeviceRegistry
	Metrics   *prometheus.Registry

	// Addr of the status listener; empty disables it.
	Addr string
	// Tick is the simulation step interval.
	Tick time.Duration

	logger *slog.Logger
}

func NewApp(c *client.Client, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Client:    c,
		Registery: NewDeviceRegistery(),
		Tick:      5 * time.Second,
		logger:    logger,
	}
}

// AddThermostat registers a simulated thermostat with the client.
func (a *App) AddThermostat(d *client.Device) (*Thermostat, error) {
	if _, exists := a.Registery.Get(d.SerialNumber()); exists {
		return nil, errors.New("duplicate serial number " + d.SerialNumber())
	}
	t := NewThermostat(d, a.logger)
	if err := a.Client.AddDevice(d); err != nil {
		return nil, err
	}
	a.Registery.Store(t)
	return t, nil
}

// EnableMetrics registers client metrics with a fresh registry served on
// /metrics.
func (a *App) EnableMetrics() {
	a.Metrics = prometheus.NewRegistry()
	a.Client.SetMetrics(client.NewMetrics(a.Metrics))
}

// Start connects and blocks until ctx is done or the client gives up.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Client.Connect(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if a.Addr != "" {
		srv = &http.Server{Addr: a.Addr, Handler: a.Router()}
		go func() {
			a.logger.Info("Status listener started", "addr", a.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status listener failed", "error", err.Error())
			}
		}()
	}

	var wg sync.WaitGroup
	for _, t := range a.Registery.List() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.Run(ctx, a.Tick)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down client and listeners")
	case <-a.Client.Done():
		err = errors.New("client stopped")
	}

	cancel()
	wg.Wait()
	a.Client.Disconnect()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}
	return err
}
