package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/proto"
)

// Config is the root of the daemon configuration.
type Config struct {
	Hostname    string          `yaml:"hostname"`
	IPCDVersion string          `yaml:"ipcd_version"`
	Devices     []DeviceConfig  `yaml:"devices"`
	Queue       QueueConfig     `yaml:"queue"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
	Dispatch    DispatchConfig  `yaml:"dispatch"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
}

// DeviceConfig is one simulated device.
type DeviceConfig struct {
	Vendor       string `yaml:"vendor"`
	Model        string `yaml:"model"`
	SerialNumber string `yaml:"sn"`
}

// QueueConfig selects the outbound queue. An empty Path keeps messages in
// memory; Limit 0 means unbounded.
type QueueConfig struct {
	Path     string `yaml:"path"`
	Limit    int    `yaml:"limit"`
	Overflow string `yaml:"overflow"` // reject | drop-oldest
}

type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

type DispatchConfig struct {
	Workers int `yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the /metrics and /status listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		IPCDVersion: proto.Version,
		Queue: QueueConfig{
			Overflow: client.OverflowReject.String(),
		},
		Reconnect: ReconnectConfig{
			Enabled:      true,
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		},
		Dispatch: DispatchConfig{Workers: 4},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Discovery: DiscoveryConfig{Timeout: 5 * time.Second},
	}
}

// ApplyEnv overrides fields from IPCD_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("IPCD_HOSTNAME"); v != "" {
		c.Hostname = v
	}
	if v := os.Getenv("IPCD_VERSION"); v != "" {
		c.IPCDVersion = v
	}
	if v := os.Getenv("IPCD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IPCD_QUEUE_PATH"); v != "" {
		c.Queue.Path = v
	}
	if v := os.Getenv("IPCD_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate reports every problem at once. An empty hostname is accepted when
// discovery is enabled.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Hostname) == "" && !c.Discovery.Enabled {
		errs = append(errs, "hostname is required unless discovery is enabled")
	}
	if c.IPCDVersion == "" {
		errs = append(errs, "ipcd_version is required")
	}
	for i, d := range c.Devices {
		if d.Vendor == "" || d.Model == "" || d.SerialNumber == "" {
			errs = append(errs, fmt.Sprintf("devices[%d]: vendor, model and sn are required", i))
		}
	}
	if c.Queue.Limit < 0 {
		errs = append(errs, "queue.limit must not be negative")
	}
	if _, err := c.Queue.OverflowPolicy(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.InitialDelay <= 0 {
			errs = append(errs, "reconnect.initial_delay must be positive")
		}
		if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
			errs = append(errs, "reconnect.max_delay must not be below initial_delay")
		}
	}
	if c.Dispatch.Workers < 1 {
		errs = append(errs, "dispatch.workers must be at least 1")
	}
	if _, err := client.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	if len(errs) > 0 {
		return proto.NewError(proto.ErrCodeConfiguration, strings.Join(errs, "; "), nil)
	}
	return nil
}

func (q QueueConfig) OverflowPolicy() (client.OverflowPolicy, error) {
	switch q.Overflow {
	case "", client.OverflowReject.String():
		return client.OverflowReject, nil
	case client.OverflowDropOldest.String():
		return client.OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("queue.overflow must be %s or %s", client.OverflowReject, client.OverflowDropOldest)
	}
}

// LogConfig builds the client logging settings. Output goes to stdout.
func (c *Config) LogConfig() client.LogConfig {
	lc := client.DefaultLogConfig()
	if l, err := client.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = l
	}
	lc.Format = strings.ToLower(c.Logging.Format)
	return lc
}

// Backoff returns nil when reconnecting is disabled.
func (c *Config) Backoff() *client.Backoff {
	if !c.Reconnect.Enabled {
		return nil
	}
	return client.NewBackoff(c.Reconnect.InitialDelay, c.Reconnect.MaxDelay, c.Reconnect.Multiplier)
}

// OpenQueue opens the configured outbound queue.
func (c *Config) OpenQueue() (client.Queue, error) {
	if c.Queue.Path != "" {
		q, err := client.OpenSpoolQueue(c.Queue.Path)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	if c.Queue.Limit == 0 {
		return client.NewMemoryQueue(), nil
	}
	policy, err := c.Queue.OverflowPolicy()
	if err != nil {
		return nil, err
	}
	return client.NewBoundedMemoryQueue(c.Queue.Limit, policy), nil
}

func (c *Config) NewDevices() []*client.Device {
	out := make([]*client.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, client.NewDeviceWithVersion(d.Vendor, d.Model, d.SerialNumber, c.IPCDVersion))
	}
	return out
}
