//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbocsi/ipcd/app"
	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/ipcdtest"
)

// Test device registration and a command round trip over a real listener
func TestServerClientCommunication(t *testing.T) {
	srv, base := startServer(t)

	c := newQuietClient(t, base)
	a := app.NewApp(c, client.SuppressedLogConfig().Logger())
	if _, err := a.AddThermostat(client.NewDevice("Acme", "Thermo", "INT-1")); err != nil {
		t.Fatalf("AddThermostat failed: %v", err)
	}
	if _, err := a.AddThermostat(client.NewDevice("Acme", "Thermo", "INT-2")); err != nil {
		t.Fatalf("AddThermostat failed: %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	if _, err := srv.WaitForMessages(2, 2*time.Second); err != nil {
		t.Fatalf("Expected two registrations: %v", err)
	}

	// push a command through the admin route, addressed to the second device
	cmd := `{"command":"SetParameterValues","txnid":"int-1","values":{"setpoint":24},` +
		`"device":{"vendor":"Acme","model":"Thermo","sn":"INT-2"}}`
	resp, err := http.Post("http://"+hostOf(base)+"/admin/command", "application/json", bytes.NewBufferString(cmd))
	if err != nil {
		t.Fatalf("Admin command failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}

	// value change from the handler plus the command response
	msgs, err := srv.WaitForMessages(4, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected value change and response: %v", err)
	}
	var found bool
	for _, raw := range msgs[2:] {
		var m struct {
			Device struct {
				SN string `json:"sn"`
			} `json:"device"`
			Status *struct {
				Result string `json:"result"`
			} `json:"status"`
		}
		json.Unmarshal(raw, &m)
		if m.Status != nil {
			found = true
			if m.Device.SN != "INT-2" || m.Status.Result != "success" {
				t.Errorf("Unexpected response: %s", raw)
			}
		}
	}
	if !found {
		t.Error("Expected a command response")
	}
}

// Test that messages queued on disk survive a client restart
func TestSpoolSurvivesRestart(t *testing.T) {
	srv, base := startServer(t)
	path := filepath.Join(t.TempDir(), "spool")
	d := client.NewDevice("Acme", "Thermo", "INT-3")

	q, err := client.OpenSpoolQueue(path)
	if err != nil {
		t.Fatalf("OpenSpoolQueue failed: %v", err)
	}
	c := newQuietClient(t, base)
	c.SetQueue(q)
	c.AddDevice(d)
	for i := 0; i < 3; i++ {
		if err := c.OnValueChange(d, map[string]any{"seq": i}); err != nil {
			t.Fatalf("OnValueChange failed: %v", err)
		}
	}
	q.Close()

	q, err = client.OpenSpoolQueue(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer q.Close()
	c = newQuietClient(t, base)
	c.SetQueue(q)
	c.AddDevice(client.NewDevice("Acme", "Thermo", "INT-3"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	msgs, err := srv.WaitForMessages(4, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected registration and 3 spooled messages: %v", err)
	}
	for i, raw := range msgs[1:] {
		var m struct {
			ValueChanges map[string]float64 `json:"valueChanges"`
		}
		json.Unmarshal(raw, &m)
		if m.ValueChanges["seq"] != float64(i) {
			t.Errorf("Expected seq %d, got %s", i, raw)
		}
	}
}

// Test reconnect after the server restarts its connections
func TestReconnectAfterServerDrop(t *testing.T) {
	srv, base := startServer(t)

	c := newQuietClient(t, base)
	c.SetReconnect(client.NewBackoff(20*time.Millisecond, 200*time.Millisecond, 2))
	c.AddDevice(client.NewDevice("Acme", "Thermo", "INT-4"))
	c.Connect(context.Background())
	defer c.Disconnect()

	for round := 1; round <= 3; round++ {
		if _, err := srv.WaitForMessages(round, 2*time.Second); err != nil {
			t.Fatalf("Round %d: expected registration: %v", round, err)
		}
		if err := srv.WaitForConnections(1, 2*time.Second); err != nil {
			t.Fatalf("Round %d: %v", round, err)
		}
		srv.DropConnections()
	}
}

func startServer(t *testing.T) (*ipcdtest.Server, string) {
	t.Helper()
	addr := fmt.Sprintf("127.0.0.1:%d", getRandomPort(t))
	s := ipcdtest.NewServer()
	httpSrv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Server failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		s.DropConnections()
		httpSrv.Close()
	})

	deadline := time.Now().Add(time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return s, "ws://" + addr
}

func newQuietClient(t *testing.T, hostname string) *client.Client {
	t.Helper()
	c, err := client.NewClientWithLogging(hostname, nil, client.SuppressedLogConfig())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func hostOf(base string) string {
	return base[len("ws://"):]
}

func getRandomPort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to get port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}
