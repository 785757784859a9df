// Package ipcdtest provides an in-process IPCD server for tests and local
// development. It accepts device websockets on /ipcd/{version}, records
// everything devices send, accepts on-demand reports, and lets the caller
// push commands to connected devices.
package ipcdtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var ErrTimeout = errors.New("ipcdtest: timed out")

// Report is one request received on the report endpoint.
type Report struct {
	Version     string
	Vendor      string
	Model       string
	SN          string
	UserAgent   string
	ContentType string
	Body        json.RawMessage
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

type Server struct {
	Logger *slog.Logger

	router   chi.Router
	upgrader websocket.Upgrader
	http     *httptest.Server

	mu          sync.Mutex
	conns       map[*conn]struct{}
	accepted    int
	messages    []json.RawMessage
	reports     []Report
	changed     chan struct{}
	rejectUntil int
}

// NewServer builds an unstarted server. Use Handler to mount it, or Start
// to serve it on a loopback port.
func NewServer() *Server {
	s := &Server{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns:   make(map[*conn]struct{}),
		changed: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/ipcd/{version}", s.handleWebSocket)
	r.Post("/ipcd/{version}/report/{vendor}/{model}/{sn}", s.handleReport)
	r.Post("/admin/command", s.handleAdminCommand)
	r.Get("/admin/messages", s.handleAdminMessages)
	s.router = r
	return s
}

// Start serves on a random loopback port.
func Start() *Server {
	s := NewServer()
	s.http = httptest.NewServer(s.router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// URL is the websocket base URL to give a client as its hostname.
func (s *Server) URL() string {
	return "ws://" + strings.TrimPrefix(s.HTTPURL(), "http://")
}

func (s *Server) HTTPURL() string {
	if s.http == nil {
		return ""
	}
	return s.http.URL
}

func (s *Server) Close() {
	s.DropConnections()
	if s.http != nil {
		s.http.Close()
	}
}

// RejectConnections makes the next n websocket upgrades fail with 503.
func (s *Server) RejectConnections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectUntil = s.accepted + n
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.accepted < s.rejectUntil
	s.accepted++
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := &conn{ws: ws}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.signalLocked()
	s.mu.Unlock()

	version := chi.URLParam(r, "version")
	s.Logger.Info("Device connected", "addr", r.RemoteAddr, "ipcdver", version)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.signalLocked()
		s.mu.Unlock()
		ws.Close()
		s.Logger.Info("Device disconnected", "addr", r.RemoteAddr)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Warn("WebSocket connection error", "addr", r.RemoteAddr, "error", err)
			}
			return
		}
		if !json.Valid(data) {
			s.Logger.Warn("Invalid JSON message received", "data", string(data))
			continue
		}
		s.Logger.Debug("Device message", "addr", r.RemoteAddr, "data", string(data))

		s.mu.Lock()
		s.messages = append(s.messages, json.RawMessage(data))
		s.signalLocked()
		s.mu.Unlock()
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	rep := Report{
		Version:     chi.URLParam(r, "version"),
		Vendor:      chi.URLParam(r, "vendor"),
		Model:       chi.URLParam(r, "model"),
		SN:          chi.URLParam(r, "sn"),
		UserAgent:   r.UserAgent(),
		ContentType: r.Header.Get("Content-Type"),
		Body:        json.RawMessage(body),
	}

	s.mu.Lock()
	s.reports = append(s.reports, rep)
	s.signalLocked()
	s.mu.Unlock()

	s.Logger.Info("Report received", "vendor", rep.Vendor, "model", rep.Model, "sn", rep.SN)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAdminCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.SendRaw(body); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Messages())
}

// signalLocked wakes every waiter. Caller holds s.mu.
func (s *Server) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) waitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		ok := cond()
		ch := s.changed
		s.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-deadline:
			return ErrTimeout
		}
	}
}

// SendCommand marshals v and writes it to every connected device.
func (s *Server) SendCommand(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw writes data unchanged to every connected device.
func (s *Server) SendRaw(data []byte) error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		return errors.New("no devices connected")
	}
	var errs []error
	for _, c := range conns {
		if err := c.write(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DropConnections closes every device socket without a close handshake.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.ws.Close()
	}
}

func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) WaitForConnections(n int, timeout time.Duration) error {
	err := s.waitFor(timeout, func() bool { return len(s.conns) == n })
	if err != nil {
		return fmt.Errorf("waiting for %d connections (have %d): %w", n, s.Connections(), err)
	}
	return nil
}

// Messages returns every message received so far, across connections.
func (s *Server) Messages() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// WaitForMessages blocks until at least n messages have been received.
func (s *Server) WaitForMessages(n int, timeout time.Duration) ([]json.RawMessage, error) {
	err := s.waitFor(timeout, func() bool { return len(s.messages) >= n })
	msgs := s.Messages()
	if err != nil {
		return msgs, fmt.Errorf("waiting for %d messages (have %d): %w", n, len(msgs), err)
	}
	return msgs, nil
}

func (s *Server) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}

func (s *Server) WaitForReports(n int, timeout time.Duration) ([]Report, error) {
	err := s.waitFor(timeout, func() bool { return len(s.reports) >= n })
	reps := s.Reports()
	if err != nil {
		return reps, fmt.Errorf("waiting for %d reports (have %d): %w", n, len(reps), err)
	}
	return reps, nil
}
