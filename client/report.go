package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mbocsi/ipcd/proto"
)

const UserAgent = "Arcus IPCD Client 1.0"

// ReportURL is the on-demand report endpoint for d:
// <host>/ipcd/<ver>/report/<vendor>/<model>/<sn>, over http(s).
func (c *Client) ReportURL(d *Device) string {
	base := c.hostname
	switch {
	case strings.HasPrefix(base, "wss://"):
		base = "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		base = "http://" + strings.TrimPrefix(base, "ws://")
	case !strings.Contains(base, "://"):
		base = "http://" + base
	}
	return fmt.Sprintf("%s/ipcd/%s/report/%s/%s/%s", base, url.PathEscape(c.version),
		url.PathEscape(d.Vendor()), url.PathEscape(d.Model()), url.PathEscape(d.SerialNumber()))
}

// PostReport sends a report over a one-shot HTTP request instead of the
// session socket.
func (c *Client) PostReport(ctx context.Context, d *Device, report any) error {
	body, err := json.Marshal(proto.ReportEnvelope(c.identity(d), report))
	if err != nil {
		return proto.NewError(proto.ErrCodeSerialization, "failed to marshal report", err)
	}

	target := c.ReportURL(d)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return proto.NewError(proto.ErrCodeConfiguration, "invalid report URL", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return proto.NewError(proto.ErrCodeConnection, "report request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("report rejected by %s: %s", target, resp.Status)
	}
	c.logger.Debug("Posted report", "device", d.Identity().String(), "status", resp.StatusCode)
	return nil
}
