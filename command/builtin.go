package command

import (
	"context"
	"encoding/json"
)

// Wire names of the built-in commands.
const (
	NameGetDeviceInfo          = "GetDeviceInfo"
	NameSetDeviceInfo          = "SetDeviceInfo"
	NameGetParameterValues     = "GetParameterValues"
	NameSetParameterValues     = "SetParameterValues"
	NameGetParameterInfo       = "GetParameterInfo"
	NameGetReport              = "GetReport"
	NameSetReportConfiguration = "SetReportConfiguration"
	NameDownload               = "Download"
	NameReboot                 = "Reboot"
	NameFactoryReset           = "FactoryReset"
	NameLeave                  = "Leave"
)

func init() {
	Register(NameGetDeviceInfo, func(h Header, _ json.RawMessage) (Command, error) {
		return &GetDeviceInfo{Header: h}, nil
	})
	Register(NameSetDeviceInfo, decodeSetDeviceInfo)
	Register(NameGetParameterValues, decodeGetParameterValues)
	Register(NameSetParameterValues, decodeSetParameterValues)
	Register(NameGetParameterInfo, func(h Header, _ json.RawMessage) (Command, error) {
		return &GetParameterInfo{Header: h}, nil
	})
	Register(NameGetReport, func(h Header, _ json.RawMessage) (Command, error) {
		return &GetReport{Header: h}, nil
	})
	Register(NameSetReportConfiguration, decodeSetReportConfiguration)
	Register(NameDownload, decodeDownload)
	Register(NameReboot, func(h Header, _ json.RawMessage) (Command, error) {
		return &Reboot{Header: h}, nil
	})
	Register(NameFactoryReset, func(h Header, _ json.RawMessage) (Command, error) {
		return &FactoryReset{Header: h}, nil
	})
	Register(NameLeave, func(h Header, _ json.RawMessage) (Command, error) {
		return &Leave{Header: h}, nil
	})
}

// GetDeviceInfo asks for firmware, connection and capability details.
type GetDeviceInfo struct {
	Header
}

func (c *GetDeviceInfo) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(DeviceInfoGetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return h.GetDeviceInfo(ctx)
}

// SetDeviceInfo updates device-level settings such as connectUrl.
type SetDeviceInfo struct {
	Header
	Values map[string]any `json:"values"`
}

func decodeSetDeviceInfo(h Header, payload json.RawMessage) (Command, error) {
	c := &SetDeviceInfo{Header: h}
	if err := json.Unmarshal(payload, c); err != nil {
		return nil, malformed("SetDeviceInfo", err)
	}
	if len(c.Values) == 0 {
		return nil, malformed("SetDeviceInfo requires values", nil)
	}
	return c, nil
}

func (c *SetDeviceInfo) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(DeviceInfoSetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.SetDeviceInfo(ctx, c.Values)
}

// GetParameterValues reads parameters. An empty list means all.
type GetParameterValues struct {
	Header
	Parameters []string `json:"parameters"`
}

func decodeGetParameterValues(h Header, payload json.RawMessage) (Command, error) {
	c := &GetParameterValues{Header: h}
	if err := json.Unmarshal(payload, c); err != nil {
		return nil, malformed("GetParameterValues", err)
	}
	return c, nil
}

func (c *GetParameterValues) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(ParameterGetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return h.GetParameterValues(ctx, c.Parameters)
}

// SetParameterValues applies attribute values to the device.
type SetParameterValues struct {
	Header
	Values map[string]any `json:"values"`
}

func decodeSetParameterValues(h Header, payload json.RawMessage) (Command, error) {
	c := &SetParameterValues{Header: h}
	if err := json.Unmarshal(payload, c); err != nil {
		return nil, malformed("SetParameterValues", err)
	}
	if len(c.Values) == 0 {
		return nil, malformed("SetParameterValues requires values", nil)
	}
	return c, nil
}

func (c *SetParameterValues) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(ParameterSetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.SetParameterValues(ctx, c.Values)
}

type GetParameterInfo struct {
	Header
}

func (c *GetParameterInfo) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(ParameterInfoGetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return h.GetParameterInfo(ctx)
}

type GetReport struct {
	Header
}

func (c *GetReport) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(ReportGetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return h.GetReport(ctx)
}

// ReportConfiguration controls periodic reports. Interval is in seconds;
// zero disables periodic reporting.
type ReportConfiguration struct {
	Interval   int      `json:"interval"`
	Parameters []string `json:"parameters"`
}

type SetReportConfiguration struct {
	Header
	ReportConfiguration
}

func decodeSetReportConfiguration(h Header, payload json.RawMessage) (Command, error) {
	c := &SetReportConfiguration{Header: h}
	if err := json.Unmarshal(payload, &c.ReportConfiguration); err != nil {
		return nil, malformed("SetReportConfiguration", err)
	}
	if c.Interval < 0 {
		return nil, malformed("SetReportConfiguration interval must not be negative", nil)
	}
	return c, nil
}

func (c *SetReportConfiguration) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(ReportConfigurer)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.SetReportConfiguration(ctx, c.ReportConfiguration)
}

// DownloadRequest points the device at a firmware image.
type DownloadRequest struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type Download struct {
	Header
	DownloadRequest
}

func decodeDownload(h Header, payload json.RawMessage) (Command, error) {
	c := &Download{Header: h}
	if err := json.Unmarshal(payload, &c.DownloadRequest); err != nil {
		return nil, malformed("Download", err)
	}
	if c.URL == "" {
		return nil, malformed("Download requires url", nil)
	}
	return c, nil
}

func (c *Download) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(Downloader)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.Download(ctx, c.DownloadRequest)
}

type Reboot struct {
	Header
}

func (c *Reboot) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(Rebooter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.Reboot(ctx)
}

type FactoryReset struct {
	Header
}

func (c *FactoryReset) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(FactoryResetter)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.FactoryReset(ctx)
}

type Leave struct {
	Header
}

func (c *Leave) Apply(ctx context.Context, target any) (any, error) {
	h, ok := target.(Leaver)
	if !ok {
		return nil, unsupported(c.Name(), target)
	}
	return nil, h.Leave(ctx)
}
