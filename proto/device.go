package proto

import (
	"errors"
	"fmt"
	"strings"
)

// Version is the IPCD protocol version spoken by this client.
const Version = "1.0"

// DeviceInfo is the identity object carried in every envelope.
type DeviceInfo struct {
	IPCDVersion  string `json:"ipcdver"`
	Vendor       string `json:"vendor"`
	Model        string `json:"model"`
	SerialNumber string `json:"sn"`
}

func (d DeviceInfo) Validate() error {
	if strings.TrimSpace(d.Vendor) == "" {
		return errors.New("device vendor is required")
	}
	if strings.TrimSpace(d.Model) == "" {
		return fmt.Errorf("device %q: model is required", d.Vendor)
	}
	if strings.TrimSpace(d.SerialNumber) == "" {
		return fmt.Errorf("device %s/%s: serial number is required", d.Vendor, d.Model)
	}
	return nil
}

// Key identifies a device independent of protocol version.
type Key struct {
	Vendor       string
	Model        string
	SerialNumber string
}

func (d DeviceInfo) Key() Key {
	return Key{Vendor: d.Vendor, Model: d.Model, SerialNumber: d.SerialNumber}
}

func (d DeviceInfo) String() string {
	return d.Vendor + "/" + d.Model + "/" + d.SerialNumber
}

// DeviceDetails is the response body of GetDeviceInfo.
type DeviceDetails struct {
	FirmwareVersion string   `json:"fwver,omitempty"`
	Connection      string   `json:"connection,omitempty"`
	ActionList      []string `json:"actions,omitempty"`
	CommandList     []string `json:"commands,omitempty"`
	ConnectURL      string   `json:"connectUrl,omitempty"`
	Uptime          int64    `json:"uptime,omitempty"`
}

// ParameterInfo describes one device parameter for GetParameterInfo.
type ParameterInfo struct {
	Type        string   `json:"type"` // "string", "number", "boolean", "enum"
	Attrib      string   `json:"attrib,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Floor       *float64 `json:"floor,omitempty"`
	Ceiling     *float64 `json:"ceiling,omitempty"`
	Enum        []string `json:"enumvalues,omitempty"`
	Description string   `json:"description,omitempty"`
}

var validParameterTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"enum":    true,
}

func (p ParameterInfo) Validate(name string) error {
	if !validParameterTypes[p.Type] {
		return fmt.Errorf("invalid parameter type %q for %s", p.Type, name)
	}
	if p.Type == "enum" && len(p.Enum) == 0 {
		return fmt.Errorf("enum parameter %s must define non-empty enumvalues", name)
	}
	if p.Floor != nil && p.Ceiling != nil && *p.Floor > *p.Ceiling {
		return fmt.Errorf("parameter %s floor is above ceiling", name)
	}
	return nil
}
