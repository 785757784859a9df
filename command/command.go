// Package command decodes IPCD server-to-device payloads into typed commands
// and applies them to device handlers.
//
// Each command kind declares the handler interface it needs. A device handler
// opts into a command by implementing that interface; applying a command to a
// handler that does not implement it fails with proto.ErrUnsupportedCommand.
// New kinds are added with Register.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/mbocsi/ipcd/proto"
)

type Command interface {
	Name() string
	TxnID() string
	// Request is the payload the command was decoded from, echoed back in
	// the response envelope.
	Request() json.RawMessage
	Apply(ctx context.Context, target any) (any, error)
}

// Header is the part of an inbound payload shared by every command.
// Command types embed it to satisfy Name, TxnID and Request.
type Header struct {
	Kind string          `json:"-"`
	Txn  string          `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (h Header) Name() string             { return h.Kind }
func (h Header) TxnID() string            { return h.Txn }
func (h Header) Request() json.RawMessage { return h.Raw }

// DecodeFunc builds a command from its header and full payload.
type DecodeFunc func(h Header, payload json.RawMessage) (Command, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DecodeFunc)
)

// Register adds a command kind. Registering the same name twice panics.
func Register(name string, fn DecodeFunc) {
	if name == "" || fn == nil {
		panic("command: Register requires a name and a decoder")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("command: Register called twice for " + name)
	}
	registry[name] = fn
}

// Registered lists the known command names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Decode parses an inbound payload. Any payload that is not a JSON object
// with a known "command" field fails with proto.ErrMalformedCommand.
func Decode(payload []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, malformed("payload is not a JSON object", err)
	}

	rawName, ok := fields["command"]
	if !ok {
		return nil, malformed("missing command field", nil)
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, malformed("command field must be a string", err)
	}
	if name == "" {
		return nil, malformed("command field is empty", nil)
	}

	registryMu.RLock()
	fn, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, malformed(fmt.Sprintf("unknown command %q", name), nil)
	}

	h := Header{Kind: name, Txn: txnID(fields["txnid"]), Raw: json.RawMessage(payload)}
	return fn(h, json.RawMessage(payload))
}

// txnID accepts both string and numeric transaction ids.
func txnID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strconv.Quote(string(raw))
}

func malformed(msg string, cause error) error {
	return proto.NewError(proto.ErrCodeMalformed, "malformed command: "+msg, cause)
}

func unsupported(name string, target any) error {
	return proto.NewError(proto.ErrCodeUnsupported, fmt.Sprintf("unsupported command: %s is not handled by %T", name, target), nil)
}
