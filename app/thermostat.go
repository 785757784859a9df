package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/command"
	"github.com/mbocsi/ipcd/proto"
)

const FirmwareVersion = "1.0.0"

var (
	setpointFloor   = 10.0
	setpointCeiling = 32.0
)

var thermostatParameters = map[string]proto.ParameterInfo{
	"temp": {
		Type:        "number",
		Attrib:      "r",
		Unit:        "C",
		Description: "Measured temperature",
	},
	"setpoint": {
		Type:        "number",
		Attrib:      "rw",
		Unit:        "C",
		Floor:       &setpointFloor,
		Ceiling:     &setpointCeiling,
		Description: "Target temperature",
	},
	"mode": {
		Type:        "enum",
		Attrib:      "rw",
		Enum:        []string{"off", "heat", "cool"},
		Description: "Operating mode",
	},
	"name": {
		Type:        "string",
		Attrib:      "rw",
		Description: "User assigned name",
	},
}

func defaultThermostatValues() map[string]any {
	return map[string]any{
		"temp":     20.0,
		"setpoint": 21.0,
		"mode":     "heat",
		"name":     "",
	}
}

// Thermostat simulates an IPCD thermostat. It handles the server's commands
// and drifts its temperature towards the setpoint on every Step.
type Thermostat struct {
	device *client.Device
	logger *slog.Logger

	mu             sync.Mutex
	values         map[string]any
	reportInterval time.Duration
	reportParams   []string
	lastReport     time.Time
	booted         time.Time
}

// NewThermostat installs a simulated thermostat as d's command handler.
func NewThermostat(d *client.Device, logger *slog.Logger) *Thermostat {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Thermostat{
		device: d,
		logger: logger.With("device", d.Identity().String()),
		values: defaultThermostatValues(),
		booted: time.Now(),
	}
	d.SetHandler(t)
	return t
}

func (t *Thermostat) Device() *client.Device { return t.device }

func (t *Thermostat) GetDeviceInfo(ctx context.Context) (proto.DeviceDetails, error) {
	return proto.DeviceDetails{
		FirmwareVersion: FirmwareVersion,
		Connection:      "persistent",
		ActionList:      []string{"Report", "Event"},
		CommandList:     command.Registered(),
		Uptime:          int64(time.Since(t.startedAt()).Seconds()),
	}, nil
}

func (t *Thermostat) SetDeviceInfo(ctx context.Context, values map[string]any) error {
	name, ok := values["name"].(string)
	if !ok || len(values) != 1 {
		return fmt.Errorf("only name can be set")
	}
	return t.SetParameterValues(ctx, map[string]any{"name": name})
}

func (t *Thermostat) GetParameterValues(ctx context.Context, names []string) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(names) == 0 {
		return t.snapshotLocked(), nil
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		v, ok := t.values[n]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", n)
		}
		out[n] = v
	}
	return out, nil
}

// SetParameterValues validates every value before applying any of them and
// reports the applied changes as a value change.
func (t *Thermostat) SetParameterValues(ctx context.Context, values map[string]any) error {
	normalized := make(map[string]any, len(values))
	for name, v := range values {
		nv, err := validateParameter(name, v)
		if err != nil {
			return err
		}
		normalized[name] = nv
	}

	t.mu.Lock()
	for name, v := range normalized {
		t.values[name] = v
	}
	t.mu.Unlock()

	t.logger.Info("Parameters updated", "values", normalized)
	return t.device.OnValueChange(normalized)
}

func validateParameter(name string, v any) (any, error) {
	info, ok := thermostatParameters[name]
	if !ok {
		return nil, fmt.Errorf("unknown parameter %q", name)
	}
	if info.Attrib == "r" {
		return nil, fmt.Errorf("parameter %q is read only", name)
	}

	switch info.Type {
	case "number":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a number", name)
		}
		if (info.Floor != nil && f < *info.Floor) || (info.Ceiling != nil && f > *info.Ceiling) {
			return nil, fmt.Errorf("parameter %q out of range", name)
		}
		return f, nil
	case "enum":
		s, _ := v.(string)
		for _, e := range info.Enum {
			if s == e {
				return s, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be one of %v", name, info.Enum)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", name)
		}
		return s, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (t *Thermostat) GetParameterInfo(ctx context.Context) (map[string]proto.ParameterInfo, error) {
	return thermostatParameters, nil
}

func (t *Thermostat) GetReport(ctx context.Context) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reportLocked(), nil
}

func (t *Thermostat) reportLocked() map[string]any {
	if len(t.reportParams) == 0 {
		return t.snapshotLocked()
	}
	out := make(map[string]any, len(t.reportParams))
	for _, n := range t.reportParams {
		if v, ok := t.values[n]; ok {
			out[n] = v
		}
	}
	return out
}

func (t *Thermostat) SetReportConfiguration(ctx context.Context, cfg command.ReportConfiguration) error {
	for _, n := range cfg.Parameters {
		if _, ok := thermostatParameters[n]; !ok {
			return fmt.Errorf("unknown parameter %q", n)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.reportInterval = time.Duration(cfg.Interval) * time.Second
	t.reportParams = append([]string(nil), cfg.Parameters...)
	t.lastReport = time.Now()
	t.logger.Info("Report configuration updated", "interval", t.reportInterval, "parameters", cfg.Parameters)
	return nil
}

// Download pretends to fetch firmware and announces completion shortly after.
func (t *Thermostat) Download(ctx context.Context, req command.DownloadRequest) error {
	t.logger.Info("Download requested", "url", req.URL)
	time.AfterFunc(100*time.Millisecond, func() {
		if err := t.event(proto.EventDownloadDone); err != nil {
			t.logger.Error("Failed to queue download event", "error", err.Error())
		}
	})
	return nil
}

func (t *Thermostat) Reboot(ctx context.Context) error {
	t.mu.Lock()
	t.booted = time.Now()
	t.mu.Unlock()
	t.logger.Info("Rebooted")
	return nil
}

func (t *Thermostat) FactoryReset(ctx context.Context) error {
	t.mu.Lock()
	t.values = defaultThermostatValues()
	t.reportInterval = 0
	t.reportParams = nil
	t.mu.Unlock()

	t.logger.Info("Factory reset")
	return t.event(proto.EventFactoryReset)
}

func (t *Thermostat) event(name string) error {
	c := t.device.Client()
	if c == nil {
		return client.ErrNotBound
	}
	return c.SendEvents(t.device, name)
}

func (t *Thermostat) Leave(ctx context.Context) error {
	t.logger.Info("Asked to leave the platform")
	return nil
}

// Step advances the simulation by one tick: the temperature moves half a
// degree towards the setpoint and a periodic report is queued when due.
func (t *Thermostat) Step(now time.Time) error {
	t.mu.Lock()
	temp := t.values["temp"].(float64)
	setpoint := t.values["setpoint"].(float64)
	mode := t.values["mode"].(string)

	next := temp
	switch {
	case mode == "heat" && temp < setpoint:
		next = math.Min(temp+0.5, setpoint)
	case mode == "cool" && temp > setpoint:
		next = math.Max(temp-0.5, setpoint)
	}
	t.values["temp"] = next

	var report map[string]any
	if t.reportInterval > 0 && now.Sub(t.lastReport) >= t.reportInterval {
		report = t.reportLocked()
		t.lastReport = now
	}
	t.mu.Unlock()

	if next != temp {
		if err := t.device.OnValueChange(map[string]any{"temp": next}); err != nil {
			return err
		}
	}
	if report != nil {
		return t.device.Report(report)
	}
	return nil
}

// Run calls Step every interval until ctx is done.
func (t *Thermostat) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := t.Step(now); err != nil {
				t.logger.Warn("Simulation step failed", "error", err.Error())
			}
		}
	}
}

func (t *Thermostat) startedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.booted
}

func (t *Thermostat) snapshotLocked() map[string]any {
	out := make(map[string]any, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

var (
	_ command.DeviceInfoGetter    = (*Thermostat)(nil)
	_ command.DeviceInfoSetter    = (*Thermostat)(nil)
	_ command.ParameterGetter     = (*Thermostat)(nil)
	_ command.ParameterSetter     = (*Thermostat)(nil)
	_ command.ParameterInfoGetter = (*Thermostat)(nil)
	_ command.ReportGetter        = (*Thermostat)(nil)
	_ command.ReportConfigurer    = (*Thermostat)(nil)
	_ command.Downloader          = (*Thermostat)(nil)
	_ command.Rebooter            = (*Thermostat)(nil)
	_ command.FactoryResetter     = (*Thermostat)(nil)
	_ command.Leaver              = (*Thermostat)(nil)
)
