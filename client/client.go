package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/ipcd/proto"
)

const defaultWorkers = 4

// Client holds a set of devices and keeps them connected to one IPCD server.
type Client struct {
	hostname  string
	version   string
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	queue     Queue
	backoff   *Backoff
	workers   int

	httpClient *http.Client

	state     atomic.Int32
	sessionID atomic.Value // string

	mu      sync.Mutex
	devices []*Device
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient validates hostname and prepares a client. Nothing touches the
// network until Connect. A nil transport uses a WebSocketTransport.
func NewClient(hostname string, t Transport) (*Client, error) {
	return newClient(hostname, t, slog.Default())
}

func NewClientWithLogging(hostname string, t Transport, logCfg LogConfig) (*Client, error) {
	return newClient(hostname, t, logCfg.Logger())
}

func newClient(hostname string, t Transport, logger *slog.Logger) (*Client, error) {
	hostname, err := validateHostname(hostname)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = NewWebSocketTransport()
	}

	done := make(chan struct{})
	close(done)

	c := &Client{
		hostname:   hostname,
		version:    proto.Version,
		transport:  t,
		logger:     logger,
		queue:      NewMemoryQueue(),
		workers:    defaultWorkers,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		done:       done,
	}
	c.sessionID.Store("")
	return c, nil
}

func validateHostname(hostname string) (string, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return "", proto.NewError(proto.ErrCodeConfiguration, "hostname must be set", nil)
	}
	if _, err := url.Parse(hostname); err != nil {
		return "", proto.NewError(proto.ErrCodeConfiguration, "invalid hostname", err)
	}
	return strings.TrimRight(hostname, "/"), nil
}

func (c *Client) Hostname() string { return c.hostname }
func (c *Client) Version() string  { return c.version }

// Endpoint is the websocket URL sessions connect to.
func (c *Client) Endpoint() string {
	return c.hostname + "/ipcd/" + c.version
}

// SetVersion changes the protocol version. Devices added afterwards
// inherit it.
func (c *Client) SetVersion(v string) {
	if v != "" {
		c.version = v
	}
}

func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

// SetQueue replaces the outbound queue. Call before Connect and before any
// message is queued.
func (c *Client) SetQueue(q Queue) {
	if q != nil {
		c.queue = q
	}
}

// SetReconnect enables reconnecting with b between attempts. Nil disables.
func (c *Client) SetReconnect(b *Backoff) {
	c.backoff = b
}

// SetDispatchWorkers bounds how many commands are applied concurrently.
func (c *Client) SetDispatchWorkers(n int) {
	if n > 0 {
		c.workers = n
	}
}

func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

// AddDevice registers d. Devices are announced in the order they were
// added; the first one receives commands that do not name a device.
// Duplicate identities are not detected.
func (c *Client) AddDevice(d *Device) error {
	if d == nil {
		return errors.New("device must not be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrSessionActive
	}
	if err := d.bind(c); err != nil {
		return err
	}
	c.devices = append(c.devices, d)
	c.logger.Debug("Added device", "device", d.Identity().String(), "count", len(c.devices))
	return nil
}

func (c *Client) Devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Connect starts connecting in the background and returns immediately.
// It fails with ErrAlreadyConnected until the previous connection has
// fully stopped.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	devices := make([]*Device, len(c.devices))
	copy(devices, c.devices)

	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setState(StateConnecting)

	go c.supervise(ctx, devices, c.done)
	return nil
}

func (c *Client) supervise(ctx context.Context, devices []*Device, done chan struct{}) {
	defer func() {
		c.setState(StateClosed)
		c.sessionID.Store("")
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	for {
		s := newSession(c, devices)
		c.sessionID.Store(s.id)
		err := s.run(ctx)

		if ctx.Err() != nil {
			c.logger.Info("Disconnected", "session", s.id)
			return
		}
		if err != nil {
			c.logger.Error("Session ended", "session", s.id, "error", err.Error())
		} else {
			c.logger.Info("Session closed by server", "session", s.id)
		}

		if c.backoff == nil {
			return
		}
		delay := c.backoff.Next()
		c.setState(StateDisconnected)
		c.logger.Info("Reconnecting", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// Disconnect stops the current connection and waits for the reader, the
// writer and all in-flight command handlers to return. Queued messages
// are kept for the next Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
	return nil
}

// Done is closed once the client stops connecting, either after Disconnect
// or when a session ends without a reconnect policy.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("State changed", "from", old.String(), "to", s.String())
	}
}

// SessionID identifies the current connection in logs, empty when idle.
func (c *Client) SessionID() string {
	return c.sessionID.Load().(string)
}

// OnValueChange queues a value change report for d.
func (c *Client) OnValueChange(d *Device, changes any) error {
	return c.enqueue(proto.ValueChangeEnvelope(c.identity(d), changes))
}

// Send is OnValueChange under its older name.
func (c *Client) Send(d *Device, changes any) error {
	return c.OnValueChange(d, changes)
}

// Report queues a generic report for d.
func (c *Client) Report(d *Device, report any) error {
	return c.enqueue(proto.ReportEnvelope(c.identity(d), report))
}

// SendEvents queues device events such as onDownloadComplete.
func (c *Client) SendEvents(d *Device, events ...string) error {
	if len(events) == 0 {
		return errors.New("at least one event is required")
	}
	return c.enqueue(proto.EventEnvelope(c.identity(d), events...))
}

func (c *Client) identity(d *Device) proto.DeviceInfo {
	info := d.Identity()
	if info.IPCDVersion == "" {
		info.IPCDVersion = c.version
	}
	return info
}

func (c *Client) enqueue(env proto.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return proto.NewError(proto.ErrCodeSerialization, "failed to marshal envelope for "+env.Device.String(), err)
	}
	if err := c.queue.Enqueue(data); err != nil {
		return err
	}
	c.metrics.queued(1)
	c.logger.Debug("Queued message", "device", env.Device.String(), "size", len(data))
	return nil
}
