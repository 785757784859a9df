package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbocsi/ipcd/client"
	"github.com/mbocsi/ipcd/proto"
)

func (s *MCPServer) registerDeviceTools() {
	listDevicesTool := mcp.NewTool("list_devices",
		mcp.WithDescription("List the devices this client registers with the IPCD server"),
	)
	s.Server.AddTool(listDevicesTool, s.handleListDevices)

	valueChangeTool := mcp.NewTool("send_value_change",
		mcp.WithDescription("Queue a value change report for a device"),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Serial number or vendor/model/sn of the device"),
		),
		mcp.WithObject("values",
			mcp.Required(),
			mcp.Description("Changed parameter values"),
		),
	)
	s.Server.AddTool(valueChangeTool, s.handleSendValueChange)

	reportTool := mcp.NewTool("send_report",
		mcp.WithDescription("Send a report for a device, over the session or the HTTP report endpoint"),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Serial number or vendor/model/sn of the device"),
		),
		mcp.WithObject("report",
			mcp.Required(),
			mcp.Description("Report payload"),
		),
		mcp.WithBoolean("http",
			mcp.Description("POST the report instead of queueing it on the session"),
		),
	)
	s.Server.AddTool(reportTool, s.handleSendReport)

	eventTool := mcp.NewTool("send_event",
		mcp.WithDescription("Queue a device event"),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Serial number or vendor/model/sn of the device"),
		),
		mcp.WithString("event",
			mcp.Required(),
			mcp.Description("Event name"),
			mcp.Enum(proto.EventDownloadDone, proto.EventUpdate, proto.EventFactoryReset),
		),
	)
	s.Server.AddTool(eventTool, s.handleSendEvent)
}

func (s *MCPServer) registerSessionTools() {
	statusTool := mcp.NewTool("get_session_status",
		mcp.WithDescription("Get the connection state of the IPCD client"),
	)
	s.Server.AddTool(statusTool, s.handleGetSessionStatus)
}

type deviceSummary struct {
	Vendor       string `json:"vendor"`
	Model        string `json:"model"`
	SerialNumber string `json:"sn"`
	IPCDVersion  string `json:"ipcdver"`
	Handler      bool   `json:"handler"`
}

func (s *MCPServer) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices := s.client.Devices()
	list := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		list = append(list, deviceSummary{
			Vendor:       d.Vendor(),
			Model:        d.Model(),
			SerialNumber: d.SerialNumber(),
			IPCDVersion:  d.IPCDVersion(),
			Handler:      d.Handler() != nil,
		})
	}

	result := map[string]any{
		"devices": list,
		"count":   len(list),
	}
	resultBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (s *MCPServer) handleSendValueChange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := s.requireDevice(request)
	if errResult != nil {
		return errResult, nil
	}
	values, ok := objectArgument(request, "values")
	if !ok {
		return mcp.NewToolResultError("values is required and must be an object"), nil
	}

	if err := s.client.OnValueChange(d, values); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to queue value change: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued value change for %s", d.Identity())), nil
}

func (s *MCPServer) handleSendReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := s.requireDevice(request)
	if errResult != nil {
		return errResult, nil
	}
	report, ok := objectArgument(request, "report")
	if !ok {
		return mcp.NewToolResultError("report is required and must be an object"), nil
	}

	if request.GetBool("http", false) {
		if err := s.client.PostReport(ctx, d, report); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to post report: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Posted report for %s to %s", d.Identity(), s.client.ReportURL(d))), nil
	}

	if err := s.client.Report(d, report); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to queue report: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued report for %s", d.Identity())), nil
}

func (s *MCPServer) handleSendEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := s.requireDevice(request)
	if errResult != nil {
		return errResult, nil
	}
	event, err := request.RequireString("event")
	if err != nil {
		return mcp.NewToolResultError("event is required and must be a string"), nil
	}

	if err := s.client.SendEvents(d, event); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to queue event: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued %s for %s", event, d.Identity())), nil
}

func (s *MCPServer) handleGetSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]any{
		"state":    s.client.State().String(),
		"session":  s.client.SessionID(),
		"endpoint": s.client.Endpoint(),
		"devices":  len(s.client.Devices()),
	}
	resultBytes, _ := json.Marshal(status)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

// requireDevice resolves the "device" argument against the client's devices.
func (s *MCPServer) requireDevice(request mcp.CallToolRequest) (*client.Device, *mcp.CallToolResult) {
	ref, err := request.RequireString("device")
	if err != nil {
		return nil, mcp.NewToolResultError("device is required and must be a string")
	}
	d := findDevice(s.client.Devices(), ref)
	if d == nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("No device matches %q", ref))
	}
	return d, nil
}

func findDevice(devices []*client.Device, ref string) *client.Device {
	for _, d := range devices {
		if d.SerialNumber() == ref || strings.EqualFold(d.Identity().String(), ref) {
			return d
		}
	}
	return nil
}

func objectArgument(request mcp.CallToolRequest, name string) (map[string]any, bool) {
	args, ok := request.GetRawArguments().(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := args[name].(map[string]any)
	return v, ok
}
