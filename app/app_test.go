package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/ipcdtest"
)

func newTestApp(t *testing.T, hostname string) *App {
	t.Helper()
	c, err := client.NewClientWithLogging(hostname, nil, client.SuppressedLogConfig())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	a := NewApp(c, client.SuppressedLogConfig().Logger())
	if _, err := a.AddThermostat(client.NewDevice("Acme", "Thermo", "0001")); err != nil {
		t.Fatalf("AddThermostat failed: %v", err)
	}
	return a
}

func TestApp_DuplicateSerial(t *testing.T) {
	a := newTestApp(t, "ws://localhost")
	if _, err := a.AddThermostat(client.NewDevice("Other", "Thermo", "0001")); err == nil {
		t.Error("Expected error for duplicate serial number")
	}
	if len(a.Client.Devices()) != 1 {
		t.Errorf("Expected 1 client device, got %d", len(a.Client.Devices()))
	}
}

func TestApp_StatusRoutes(t *testing.T) {
	a := newTestApp(t, "ws://localhost")
	a.EnableMetrics()
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	var status map[string]any
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status["state"] != "disconnected" || status["devices"] != 1.0 {
		t.Errorf("Unexpected status: %v", status)
	}

	resp, _ = http.Get(srv.URL + "/devices/0001")
	var dev deviceStatus
	json.NewDecoder(resp.Body).Decode(&dev)
	resp.Body.Close()
	if dev.SerialNumber != "0001" || dev.Values["mode"] != "heat" {
		t.Errorf("Unexpected device: %+v", dev)
	}

	resp, _ = http.Get(srv.URL + "/devices/9999")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ipcd_queued_messages") {
		t.Errorf("Expected ipcd metrics, got %s", body)
	}
}

func TestApp_PostReportRoute(t *testing.T) {
	ipcd := ipcdtest.Start()
	defer ipcd.Close()

	a := newTestApp(t, ipcd.URL())
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/devices/0001/report", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	reports, err := ipcd.WaitForReports(1, time.Second)
	if err != nil {
		t.Fatalf("Expected a report: %v", err)
	}
	if reports[0].SN != "0001" {
		t.Errorf("Unexpected report: %+v", reports[0])
	}
}

func TestApp_Start(t *testing.T) {
	ipcd := ipcdtest.Start()
	defer ipcd.Close()

	a := newTestApp(t, ipcd.URL())
	a.Tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(ctx) }()

	// registration plus at least one simulated temperature change
	if _, err := ipcd.WaitForMessages(2, 2*time.Second); err != nil {
		t.Fatalf("Expected traffic from the simulator: %v", err)
	}

	err := ipcd.SendCommand(map[string]any{"command": "GetParameterValues", "txnid": "status"})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	waitForResponse(t, ipcd, "status")

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if a.Client.State() != client.StateClosed {
		t.Errorf("Expected closed client, got %s", a.Client.State())
	}
}

func waitForResponse(t *testing.T, srv *ipcdtest.Server, txn string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, raw := range srv.Messages() {
			var m struct {
				Request struct {
					TxnID string `json:"txnid"`
				} `json:"request"`
			}
			if json.Unmarshal(raw, &m) == nil && m.Request.TxnID == txn {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for response to %s", txn)
}
