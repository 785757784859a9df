package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/proto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
hostname: wss://ipcd.example.com
devices:
  - vendor: Acme
    model: Thermo
    sn: "0001"
  - vendor: Acme
    model: Plug
    sn: "0002"
queue:
  limit: 100
  overflow: drop-oldest
reconnect:
  initial_delay: 500ms
  max_delay: 30s
  multiplier: 1.5
dispatch:
  workers: 2
logging:
  level: debug
  format: json
metrics:
  addr: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://ipcd.example.com", cfg.Hostname)
	assert.Equal(t, proto.Version, cfg.IPCDVersion)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, DeviceConfig{Vendor: "Acme", Model: "Plug", SerialNumber: "0002"}, cfg.Devices[1])
	assert.Equal(t, 100, cfg.Queue.Limit)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)

	policy, err := cfg.Queue.OverflowPolicy()
	require.NoError(t, err)
	assert.Equal(t, client.OverflowDropOldest, policy)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ipcd.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "hostname: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IPCD_HOSTNAME", "ws://override:8080")
	t.Setenv("IPCD_VERSION", "2.0")
	t.Setenv("IPCD_LOG_LEVEL", "warn")
	t.Setenv("IPCD_QUEUE_PATH", "/var/lib/ipcd/spool")
	t.Setenv("IPCD_METRICS_ADDR", "127.0.0.1:9200")

	cfg, err := Load(writeConfig(t, "hostname: ws://from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "ws://override:8080", cfg.Hostname)
	assert.Equal(t, "2.0", cfg.IPCDVersion)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/ipcd/spool", cfg.Queue.Path)
	assert.Equal(t, "127.0.0.1:9200", cfg.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"missing hostname", func(c *Config) { c.Hostname = "" }, "hostname is required"},
		{"incomplete device", func(c *Config) {
			c.Devices = []DeviceConfig{{Vendor: "Acme", Model: "X1"}}
		}, "devices[0]"},
		{"negative limit", func(c *Config) { c.Queue.Limit = -1 }, "queue.limit"},
		{"bad overflow", func(c *Config) { c.Queue.Overflow = "explode" }, "queue.overflow"},
		{"zero delay", func(c *Config) { c.Reconnect.InitialDelay = 0 }, "reconnect.initial_delay"},
		{"max below initial", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }, "reconnect.max_delay"},
		{"no workers", func(c *Config) { c.Dispatch.Workers = 0 }, "dispatch.workers"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Hostname = "ws://localhost"
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, proto.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_DiscoveryWithoutHostname(t *testing.T) {
	cfg := Default()
	cfg.Discovery.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReconnectDisabled(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "ws://localhost"
	cfg.Reconnect = ReconnectConfig{}
	require.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.Backoff())
}

func TestConfig_ClientSettings(t *testing.T) {
	cfg := Default()
	cfg.Logging = LoggingConfig{Level: "debug", Format: "JSON"}
	cfg.Devices = []DeviceConfig{{Vendor: "Acme", Model: "X1", SerialNumber: "1"}}
	cfg.IPCDVersion = "1.1"

	lc := cfg.LogConfig()
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "DEBUG", lc.Level.String())

	b := cfg.Backoff()
	require.NotNil(t, b)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())

	devices := cfg.NewDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, "1.1", devices[0].IPCDVersion())
	assert.Equal(t, "Acme", devices[0].Vendor())
}

func TestConfig_OpenQueue(t *testing.T) {
	cfg := Default()
	q, err := cfg.OpenQueue()
	require.NoError(t, err)
	assert.IsType(t, &client.MemoryQueue{}, q)

	cfg.Queue.Limit = 1
	q, err = cfg.OpenQueue()
	require.NoError(t, err)
	require.NoError(t, q.Enqueue([]byte("a")))
	assert.ErrorIs(t, q.Enqueue([]byte("b")), client.ErrQueueFull)

	cfg.Queue.Path = filepath.Join(t.TempDir(), "spool")
	q, err = cfg.OpenQueue()
	require.NoError(t, err)
	defer q.Close()
	assert.IsType(t, &client.SpoolQueue{}, q)
}
