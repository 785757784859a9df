package client

import (
	"context"
	"errors"
	"sync"

	"github.com/mbocsi/ipcd/command"
	"github.com/mbocsi/ipcd/proto"
)

// Device is one physical or logical device announced over a client's
// session. Its identity cannot change once created.
type Device struct {
	vendor       string
	model        string
	serialNumber string

	mu      sync.RWMutex
	version string
	handler any
	client  *Client
}

// NewDevice creates a device that speaks the client's protocol version.
func NewDevice(vendor, model, serialNumber string) *Device {
	return &Device{vendor: vendor, model: model, serialNumber: serialNumber}
}

// NewDeviceWithVersion pins the protocol version announced for the device.
func NewDeviceWithVersion(vendor, model, serialNumber, version string) *Device {
	return &Device{vendor: vendor, model: model, serialNumber: serialNumber, version: version}
}

func (d *Device) Vendor() string       { return d.vendor }
func (d *Device) Model() string        { return d.model }
func (d *Device) SerialNumber() string { return d.serialNumber }

func (d *Device) IPCDVersion() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Identity is the device object placed in every envelope.
func (d *Device) Identity() proto.DeviceInfo {
	return proto.DeviceInfo{
		IPCDVersion:  d.IPCDVersion(),
		Vendor:       d.vendor,
		Model:        d.model,
		SerialNumber: d.serialNumber,
	}
}

// SetHandler installs the object server commands are applied to. It may
// implement any of the command package's handler interfaces; commands it
// does not implement are answered with a fail status.
func (d *Device) SetHandler(h any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Device) Handler() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler
}

// Client returns the client the device was added to, or nil.
func (d *Device) Client() *Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client
}

// bind attaches the device to c. A device belongs to at most one client,
// a second bind returns ErrAlreadyBound.
func (d *Device) bind(c *Client) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return ErrAlreadyBound
	}
	d.client = c
	if d.version == "" {
		d.version = c.version
	}
	return nil
}

func (d *Device) OnValueChange(changes any) error {
	c := d.Client()
	if c == nil {
		return ErrNotBound
	}
	return c.OnValueChange(d, changes)
}

func (d *Device) Report(report any) error {
	c := d.Client()
	if c == nil {
		return ErrNotBound
	}
	return c.Report(d, report)
}

// HandleInbound decodes a server payload, applies it to the handler and
// queues the response envelope. The returned error is for logging only, a
// response has already been queued when the command decoded.
func (d *Device) HandleInbound(ctx context.Context, payload []byte) error {
	c := d.Client()
	if c == nil {
		return ErrNotBound
	}

	cmd, err := command.Decode(payload)
	if err != nil {
		c.metrics.command("unknown", "malformed")
		return err
	}

	log := c.logger.With("device", d.Identity().String(), "command", cmd.Name(), "txnid", cmd.TxnID())
	log.Debug("Applying command")

	resp, applyErr := cmd.Apply(ctx, d.Handler())
	switch {
	case applyErr == nil:
		c.metrics.command(cmd.Name(), proto.ResultSuccess)
	case errors.Is(applyErr, proto.ErrUnsupportedCommand):
		c.metrics.command(cmd.Name(), "unsupported")
	default:
		c.metrics.command(cmd.Name(), proto.ResultFail)
	}

	env := proto.ResponseEnvelope(d.Identity(), cmd.Request(), resp, applyErr)
	if err := c.enqueue(env); err != nil {
		return errors.Join(applyErr, err)
	}
	return applyErr
}
