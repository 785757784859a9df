package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mbocsi/ipcd/ipcdtest"
	"github.com/mbocsi/ipcd/proto"
)

func decodeMessages(t *testing.T, raw []json.RawMessage) []map[string]any {
	t.Helper()
	out := make([]map[string]any, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			t.Fatalf("Invalid message %s: %v", r, err)
		}
	}
	return out
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv := ipcdtest.Start()
	defer srv.Close()

	c := newTestClient(t, NewWebSocketTransport())
	// newTestClient targets a placeholder host
	c.hostname = srv.URL()

	d := NewDevice("Acme", "Thermo", "E2E-1")
	h := newTestHandler()
	d.SetHandler(h)
	c.AddDevice(d)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := srv.WaitForConnections(1, 2*time.Second); err != nil {
		t.Fatalf("Server saw no connection: %v", err)
	}

	c.OnValueChange(d, map[string]any{"temp": 73})
	raw, err := srv.WaitForMessages(2, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected registration and value change: %v", err)
	}
	msgs := decodeMessages(t, raw)
	if ev := eventsOf(msgs[0]); len(ev) != 2 || ev[0] != proto.EventBoot {
		t.Errorf("Expected registration first, got %v", msgs[0])
	}
	if ev := eventsOf(msgs[1]); len(ev) != 1 || ev[0] != proto.EventValueChanges {
		t.Errorf("Expected value change second, got %v", msgs[1])
	}

	err = srv.SendCommand(map[string]any{
		"command": "SetParameterValues",
		"txnid":   "e2e",
		"values":  map[string]any{"temp": 65},
	})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	raw, err = srv.WaitForMessages(3, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected a response: %v", err)
	}
	resp := decodeMessages(t, raw)[2]
	if requestTxn(resp) != "e2e" || statusResult(resp) != proto.ResultSuccess {
		t.Errorf("Unexpected response: %v", resp)
	}
	if deviceOf(resp) != "Acme/Thermo/E2E-1" {
		t.Errorf("Expected response from the device, got %s", deviceOf(resp))
	}

	c.Disconnect()
	if c.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", c.State())
	}
}

func TestWebSocket_ReconnectAfterDrop(t *testing.T) {
	srv := ipcdtest.Start()
	defer srv.Close()
	srv.RejectConnections(1)

	c := newTestClient(t, NewWebSocketTransport())
	c.hostname = srv.URL()
	c.SetReconnect(NewBackoff(10*time.Millisecond, 50*time.Millisecond, 2))
	c.AddDevice(NewDevice("Acme", "Thermo", "E2E-2"))

	c.Connect(context.Background())
	if _, err := srv.WaitForMessages(1, 2*time.Second); err != nil {
		t.Fatalf("Expected registration after a rejected attempt: %v", err)
	}

	srv.DropConnections()
	if _, err := srv.WaitForMessages(2, 2*time.Second); err != nil {
		t.Fatalf("Expected a second registration after the drop: %v", err)
	}
	if err := srv.WaitForConnections(1, time.Second); err != nil {
		t.Errorf("Expected one live connection: %v", err)
	}
}
