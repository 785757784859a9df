package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mbocsi/ipcd/proto"
)

// State of the client's connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const dispatchBuffer = 16

type inbound struct {
	device *Device
	data   []byte
}

// session is one connection attempt, from dial to socket close.
type session struct {
	id      string
	client  *Client
	devices []*Device
	routes  map[proto.Key]*Device
	logger  *slog.Logger

	conn Conn
}

func newSession(c *Client, devices []*Device) *session {
	id := uuid.NewString()
	routes := make(map[proto.Key]*Device, len(devices))
	for _, d := range devices {
		key := d.Identity().Key()
		// first registration wins on duplicate identities
		if _, exists := routes[key]; !exists {
			routes[key] = d
		}
	}
	return &session{
		id:      id,
		client:  c,
		devices: devices,
		routes:  routes,
		logger:  c.logger.With("session", id),
	}
}

// run blocks until the connection ends or ctx is cancelled. A nil error
// means the session was stopped through ctx.
func (s *session) run(ctx context.Context) error {
	c := s.client
	endpoint := c.Endpoint()

	c.setState(StateConnecting)
	s.logger.Info("Connecting", "endpoint", endpoint)
	conn, err := c.transport.Connect(ctx, endpoint)
	if err != nil {
		c.metrics.session("failed")
		if ctx.Err() != nil {
			return nil
		}
		return proto.NewError(proto.ErrCodeConnection, "failed to connect to "+endpoint, err)
	}
	s.conn = conn
	c.metrics.session("connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the socket is what unblocks the reader.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	c.setState(StateRegistering)
	if err := s.register(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.setState(StateActive)
	s.logger.Info("Session active", "devices", len(s.devices))
	if c.backoff != nil {
		c.backoff.Reset()
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		loopErr  error
		dispatch = make(chan inbound, dispatchBuffer)
	)
	fail := func(err error) {
		if err != nil {
			errOnce.Do(func() { loopErr = err })
		}
		cancel()
	}

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatchLoop(ctx, dispatch)
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(dispatch)
		fail(s.readLoop(ctx, dispatch))
	}()
	go func() {
		defer wg.Done()
		fail(s.writeLoop(ctx))
	}()

	wg.Wait()
	s.logger.Info("Session closed")
	return loopErr
}

// register announces every device, in registration order, before any
// other traffic.
func (s *session) register() error {
	for _, d := range s.devices {
		data, err := json.Marshal(proto.RegistrationEnvelope(d.Identity()))
		if err != nil {
			return proto.NewError(proto.ErrCodeSerialization, "failed to marshal registration", err)
		}
		if err := s.conn.Send(data); err != nil {
			return proto.NewError(proto.ErrCodeConnection, "failed to register "+d.Identity().String(), err)
		}
		s.client.metrics.sent()
		s.logger.Debug("Registered device", "device", d.Identity().String())
	}
	return nil
}

func (s *session) readLoop(ctx context.Context, dispatch chan<- inbound) error {
	for {
		data, err := s.conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return proto.NewError(proto.ErrCodeConnection, "read failed", err)
		}
		s.client.metrics.received()
		s.logger.Debug("Message received", "size", len(data))

		d, err := s.route(data)
		if err != nil {
			s.logger.Warn("Dropping inbound message", "error", err.Error(), "payload", string(data))
			continue
		}

		select {
		case dispatch <- inbound{device: d, data: data}:
		case <-ctx.Done():
			return nil
		}
	}
}

// route picks the device a message is for. Messages naming a device go to
// that device; messages without one go to the first registered device.
func (s *session) route(data []byte) (*Device, error) {
	var hdr proto.Inbound
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if hdr.Device != nil {
		d, ok := s.routes[hdr.Device.Key()]
		if !ok {
			return nil, fmt.Errorf("no registered device %s", hdr.Device.String())
		}
		return d, nil
	}
	if len(s.devices) == 0 {
		return nil, errors.New("no devices registered")
	}
	return s.devices[0], nil
}

func (s *session) writeLoop(ctx context.Context) error {
	q := s.client.queue
	for {
		e, err := q.Peek(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("outbound queue: %w", err)
		}

		if err := s.conn.Send(e.Data); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return proto.NewError(proto.ErrCodeConnection, "write failed", err)
		}
		if err := q.Remove(e); err != nil {
			s.logger.Warn("Failed to remove sent message from queue", "error", err.Error())
		}
		s.client.metrics.sent()
		s.client.metrics.queued(-1)
		s.logger.Debug("Message sent", "size", len(e.Data))
	}
}

func (s *session) dispatchLoop(ctx context.Context, in <-chan inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			s.dispatch(ctx, m)
		}
	}
}

func (s *session) dispatch(ctx context.Context, m inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Device handler panicked", "device", m.device.Identity().String(), "panic", r)
		}
	}()

	if err := m.device.HandleInbound(ctx, m.data); err != nil {
		s.logger.Warn("Command failed", "device", m.device.Identity().String(), "error", err.Error())
	}
}
