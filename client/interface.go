package client

import "context"

// Transport opens connections to an IPCD server.
type Transport interface {
	Connect(ctx context.Context, addr string) (Conn, error)
}

// Conn is one established connection. Send is called from a single goroutine
// at a time, Read from another. Close may be called concurrently with both
// and must unblock a pending Read.
type Conn interface {
	Send(data []byte) error
	Read() ([]byte, error)
	Close() error
}
