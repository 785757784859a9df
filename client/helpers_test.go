package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/ipcd/command"
)

// fakeConn is an in-memory Conn. Tests push server messages into inbox and
// inspect what the client sent.
type fakeConn struct {
	mu        sync.Mutex
	sent      [][]byte
	failAfter int // fail sends after this many succeeded, 0 = never

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	if c.failAfter > 0 && len(c.sent) >= c.failAfter {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, payload string) {
	t.Helper()
	select {
	case c.inbox <- []byte(payload):
	case <-time.After(time.Second):
		t.Fatal("Timed out pushing inbound message")
	}
}

func (c *fakeConn) Sent() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, data := range c.sent {
		var m map[string]any
		json.Unmarshal(data, &m)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeTransport hands out a new fakeConn per Connect.
type fakeTransport struct {
	mu       sync.Mutex
	dialErrs []error
	dials    int
	prepare  func(n int, c *fakeConn)
	conns    chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Connect(ctx context.Context, addr string) (Conn, error) {
	t.mu.Lock()
	n := t.dials
	t.dials++
	var err error
	if n < len(t.dialErrs) {
		err = t.dialErrs[n]
	}
	prepare := t.prepare
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	if prepare != nil {
		prepare(n, c)
	}
	t.conns <- c
	return c, nil
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) next(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case c := <-t.conns:
		return c
	case <-time.After(2 * time.Second):
		tb.Fatal("Timed out waiting for a connection")
		return nil
	}
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestClient(t *testing.T, tr Transport) *Client {
	t.Helper()
	c, err := NewClientWithLogging("ws://ipcd.test", tr, SuppressedLogConfig())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })
	return c
}

// testHandler implements a few command handler interfaces.
type testHandler struct {
	mu     sync.Mutex
	values map[string]any
	block  chan struct{}
}

func newTestHandler() *testHandler {
	return &testHandler{values: map[string]any{"temp": 70.0}}
}

func (h *testHandler) GetParameterValues(_ context.Context, names []string) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]any, len(h.values))
	for k, v := range h.values {
		out[k] = v
	}
	return out, nil
}

func (h *testHandler) SetParameterValues(_ context.Context, values map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, v := range values {
		h.values[k] = v
	}
	return nil
}

func (h *testHandler) Reboot(ctx context.Context) error {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *testHandler) FactoryReset(context.Context) error {
	panic("factory reset exploded")
}

func (h *testHandler) value(k string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.values[k]
}

var _ command.ParameterGetter = (*testHandler)(nil)

func deviceOf(m map[string]any) string {
	d, _ := m["device"].(map[string]any)
	if d == nil {
		return ""
	}
	return d["vendor"].(string) + "/" + d["model"].(string) + "/" + d["sn"].(string)
}

func eventsOf(m map[string]any) []any {
	ev, _ := m["events"].([]any)
	return ev
}

func requestTxn(m map[string]any) string {
	req, _ := m["request"].(map[string]any)
	if req == nil {
		return ""
	}
	s, _ := req["txnid"].(string)
	return s
}

func statusResult(m map[string]any) string {
	st, _ := m["status"].(map[string]any)
	if st == nil {
		return ""
	}
	s, _ := st["result"].(string)
	return s
}
