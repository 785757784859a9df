package proto

import (
	"encoding/json"
)

// Device events
const (
	EventBoot         = "onBoot"
	EventConnect      = "onConnect"
	EventValueChanges = "onValueChanges"
	EventDownloadDone = "onDownloadComplete"
	EventUpdate       = "onUpdate"
	EventFactoryReset = "onFactoryReset"
)

// Command response results
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
	ResultError   = "error"
)

// Envelope is every device-to-server message. Only the fields relevant to
// the message kind are set.
type Envelope struct {
	Device       DeviceInfo      `json:"device"`
	Events       []string        `json:"events,omitempty"`
	ValueChanges any             `json:"valueChanges,omitempty"`
	Report       any             `json:"report,omitempty"`
	Request      json.RawMessage `json:"request,omitempty"`
	Status       *Status         `json:"status,omitempty"`
	Response     any             `json:"response,omitempty"`
}

type Status struct {
	Result   string   `json:"result"`
	Messages []string `json:"messages,omitempty"`
}

func RegistrationEnvelope(d DeviceInfo) Envelope {
	return Envelope{Device: d, Events: []string{EventBoot, EventConnect}}
}

func ValueChangeEnvelope(d DeviceInfo, changes any) Envelope {
	return Envelope{Device: d, Events: []string{EventValueChanges}, ValueChanges: changes}
}

func ReportEnvelope(d DeviceInfo, report any) Envelope {
	return Envelope{Device: d, Report: report}
}

func EventEnvelope(d DeviceInfo, events ...string) Envelope {
	return Envelope{Device: d, Events: events}
}

// ResponseEnvelope answers a server command. A nil err yields a success
// status.
func ResponseEnvelope(d DeviceInfo, request json.RawMessage, response any, err error) Envelope {
	env := Envelope{Device: d, Request: request, Response: response}
	if err != nil {
		env.Status = &Status{Result: ResultFail, Messages: []string{err.Error()}}
		env.Response = nil
	} else {
		env.Status = &Status{Result: ResultSuccess}
	}
	return env
}

// Inbound is the addressing header of a server-to-device message. The full
// payload is decoded by the command package.
type Inbound struct {
	Command string          `json:"command"`
	TxnID   json.RawMessage `json:"txnid,omitempty"`
	Device  *DeviceInfo     `json:"device,omitempty"`
}
